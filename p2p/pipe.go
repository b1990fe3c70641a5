package p2p

import (
	"sync"
)

// PipeEnd is one side of an in-memory transport pair. Sends are delivered
// synchronously to the session attached to the other end.
type PipeEnd struct {
	id     string
	remote *PipeEnd

	mu      sync.Mutex
	session *Session
	closed  bool
	sent    [][]byte
}

// NewPipe returns two connected ends named by the ids their peers will see.
func NewPipe(aID, bID string) (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{id: bID}
	b := &PipeEnd{id: aID}
	a.remote, b.remote = b, a
	return a, b
}

// Attach binds the session that receives data arriving at this end.
func (p *PipeEnd) Attach(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
}

func (p *PipeEnd) RemoteID() string {
	return p.id
}

func (p *PipeEnd) Send(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrSessionClosed
	}
	p.sent = append(p.sent, append([]byte(nil), data...))
	p.mu.Unlock()

	target := p.remote.attached()
	if target == nil {
		return ErrNotConnected
	}
	target.OnData(data)
	return nil
}

// Close shuts both ends and tells the remote session.
func (p *PipeEnd) Close() error {
	if !p.shut() {
		return nil
	}
	p.remote.shut()
	if remote := p.remote.attached(); remote != nil {
		remote.OnClose()
	}
	return nil
}

// Sent returns copies of every message written on this end.
func (p *PipeEnd) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *PipeEnd) attached() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *PipeEnd) shut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	return true
}

// ConnectPipe links two handlers through a fresh pipe. Both sessions are
// CONNECTED before either handler hears about it, so the initial CHAIN_SYNC
// of each side is delivered.
func ConnectPipe(aID string, a Handler, bID string, b Handler) (*Session, *Session) {
	endA, endB := NewPipe(aID, bID)
	sa := NewSession(endA, a)
	sb := NewSession(endB, b)
	endA.Attach(sa)
	endB.Attach(sb)

	sa.Dialing()
	sb.Dialing()
	okA := sa.markConnected()
	okB := sb.markConnected()
	if okA {
		sa.notifyConnect()
	}
	if okB {
		sb.notifyConnect()
	}
	return sa, sb
}
