package p2p

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// RelayPolicy remembers recently handled block hashes so a block is appended
// and forwarded at most once, and never echoed to the peer it came from.
type RelayPolicy struct {
	seen *lru.Cache[string, struct{}]
}

// NewRelayPolicy creates a policy remembering up to size hashes.
func NewRelayPolicy(size int) (*RelayPolicy, error) {
	if size <= 0 {
		size = DefaultRelayCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &RelayPolicy{seen: seen}, nil
}

// Seen reports whether hash was already marked.
func (p *RelayPolicy) Seen(hash string) bool {
	return p.seen.Contains(hash)
}

// Mark records hash and reports whether it was new.
func (p *RelayPolicy) Mark(hash string) bool {
	found, _ := p.seen.ContainsOrAdd(hash, struct{}{})
	return !found
}

// Targets filters sessions down to those a block from origin should go to.
func (p *RelayPolicy) Targets(sessions []*Session, origin string) []*Session {
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID() == origin || s.State() != StateConnected {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (p *RelayPolicy) Len() int {
	return p.seen.Len()
}
