package validation

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of a transition check. Reasons lists every violated
// rule in evaluation order and is empty when Valid is true.
type Verdict struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons"`
}

// Accept returns a passing verdict.
func Accept() Verdict {
	return Verdict{Valid: true, Reasons: []string{}}
}

// Reject returns a failing verdict with the given reasons.
func Reject(reasons ...string) Verdict {
	return Verdict{Valid: false, Reasons: reasons}
}

// Collector accumulates reasons while a validator walks its rules.
type Collector struct {
	reasons []string
}

func (c *Collector) Addf(format string, args ...interface{}) {
	c.reasons = append(c.reasons, fmt.Sprintf(format, args...))
}

func (c *Collector) Add(reason string) {
	c.reasons = append(c.reasons, reason)
}

func (c *Collector) Verdict() Verdict {
	if len(c.reasons) == 0 {
		return Accept()
	}
	return Reject(c.reasons...)
}

// Err converts a failing verdict into an error; nil when valid.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("invalid transition: %s", strings.Join(v.Reasons, "; "))
}
