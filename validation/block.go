package validation

import (
	"github.com/mezonai/peerchain/block"
)

// BlockPolicy configures ValidateBlockTransition. Use DefaultBlockPolicy as the
// starting point: the zero value disables the predecessor hash check.
type BlockPolicy struct {
	// VerifyPrevHash recomputes the predecessor's hash. Disable it when prev is
	// already trusted, e.g. the local tip.
	VerifyPrevHash bool
	// AllowTimeTravel permits next.Timestamp < prev.Timestamp.
	AllowTimeTravel bool
	// MaxTimeDrift bounds next.Timestamp - prev.Timestamp in milliseconds; 0 disables it.
	MaxTimeDrift int64
}

// DefaultBlockPolicy verifies the predecessor and requires non-decreasing time.
func DefaultBlockPolicy() BlockPolicy {
	return BlockPolicy{VerifyPrevHash: true}
}

// ValidateBlockTransition judges whether next may directly follow prev.
// Every violated rule is reported.
func ValidateBlockTransition(prev, next *block.Block, policy BlockPolicy) Verdict {
	var c Collector
	if prev == nil {
		c.Addf(MsgMissingBlock, "previous")
	}
	if next == nil {
		c.Addf(MsgMissingBlock, "next")
	}
	if prev == nil || next == nil {
		return c.Verdict()
	}

	structural := checkFields(&c, "Previous", prev)
	structural = checkFields(&c, "Next", next) || structural
	if structural {
		return c.Verdict()
	}

	if policy.VerifyPrevHash && !prev.HasValidHash() {
		c.Add(MsgPrevHashMismatch)
	}
	if next.Index != prev.Index+1 {
		c.Addf(MsgIndexNotSequential, prev.Index+1, next.Index)
	}
	if next.PreviousHash != prev.Hash {
		c.Addf(MsgPrevHashLink, prev.Hash, next.PreviousHash)
	}
	if !next.HasValidHash() {
		c.Add(MsgHashMismatch)
	}

	timesUsable := true
	if prev.Timestamp < 0 {
		c.Addf(MsgTimestampNegative, "Previous")
		timesUsable = false
	}
	if next.Timestamp < 0 {
		c.Addf(MsgTimestampNegative, "Next")
		timesUsable = false
	}
	if timesUsable {
		if !policy.AllowTimeTravel && next.Timestamp < prev.Timestamp {
			c.Addf(MsgTimestampDecreasing, prev.Timestamp, next.Timestamp)
		}
		if drift := next.Timestamp - prev.Timestamp; policy.MaxTimeDrift > 0 && drift > policy.MaxTimeDrift {
			c.Addf(MsgTimeDriftExceeded, drift, policy.MaxTimeDrift)
		}
	}

	return c.Verdict()
}

// checkFields reports missing required fields and whether any were missing.
// Index and timestamp are always present on a typed block.
func checkFields(c *Collector, label string, b *block.Block) bool {
	missing := false
	if len(b.Data) == 0 {
		c.Addf(MsgMissingField, label, "data")
		missing = true
	}
	if b.PreviousHash == "" {
		c.Addf(MsgMissingField, label, "previousHash")
		missing = true
	}
	if b.Hash == "" {
		c.Addf(MsgMissingField, label, "hash")
		missing = true
	}
	return missing
}
