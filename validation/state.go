package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/mezonai/peerchain/jsonx"
)

// Record is a plain keyed state record, e.g. a decoded JSON object.
type Record map[string]interface{}

// Predicate is a caller-supplied judge run before any built-in rule.
// Returning false or a non-nil error rejects the transition outright.
type Predicate func(prev, next Record) (bool, error)

// StatePolicy configures ValidateStateTransition.
type StatePolicy struct {
	ImmutableKeys       []string
	AllowDeletion       bool
	NumericIncreaseKeys []string
	CustomPredicate     Predicate
}

// ValidateStateTransition judges whether next may follow prev under policy.
// Rules run in order: custom predicate (short-circuits), immutable keys,
// deletions, numeric non-decrease.
func ValidateStateTransition(prev, next Record, policy StatePolicy) Verdict {
	if policy.CustomPredicate != nil {
		if ok, err := runPredicate(policy.CustomPredicate, prev, next); !ok || err != nil {
			if err != nil {
				return Reject(fmt.Sprintf(MsgCustomPredicateReason, err.Error()))
			}
			return Reject(MsgCustomPredicateFailed)
		}
	}

	var c Collector

	for _, key := range uniqueKeys(policy.ImmutableKeys) {
		prevVal, inPrev := prev[key]
		nextVal, inNext := next[key]
		if inPrev != inNext || !sameEncoding(prevVal, nextVal) {
			c.Addf(MsgImmutableChanged, key)
		}
	}

	if !policy.AllowDeletion {
		for _, key := range sortedKeys(prev) {
			if _, ok := next[key]; !ok {
				c.Addf(MsgKeyDeleted, key)
			}
		}
	}

	for _, key := range uniqueKeys(policy.NumericIncreaseKeys) {
		checkNumericIncrease(&c, key, prev, next)
	}

	return c.Verdict()
}

func runPredicate(p Predicate, prev, next Record) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return p(prev, next)
}

func checkNumericIncrease(c *Collector, key string, prev, next Record) {
	nextRaw, inNext := next[key]
	prevRaw, inPrev := prev[key]
	if !inNext {
		if inPrev {
			c.Addf(MsgNumericMissing, key)
		}
		return
	}

	nextVal, ok := toFloat(nextRaw)
	if !ok {
		c.Addf(MsgNumericNotNumber, key)
		return
	}
	if math.IsNaN(nextVal) || math.IsInf(nextVal, 0) {
		c.Addf(MsgNumericNotFinite, key)
		return
	}
	if !inPrev {
		return
	}

	prevVal, ok := toFloat(prevRaw)
	if !ok || math.IsNaN(prevVal) || math.IsInf(prevVal, 0) {
		// an unusable previous value cannot be compared against
		return
	}
	if nextVal < prevVal {
		c.Addf(MsgNumericDecreased, key, prevRaw, nextRaw)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sameEncoding(a, b interface{}) bool {
	ea, errA := jsonx.Marshal(a)
	eb, errB := jsonx.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
