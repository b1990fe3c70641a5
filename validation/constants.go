package validation

// Reason messages. Format verbs are filled by the validators.
const (
	MsgCustomPredicateFailed = "Custom predicate rejected the transition"
	MsgCustomPredicateReason = "Custom predicate rejected the transition: %s"
	MsgImmutableChanged      = "Immutable key '%s' changed"
	MsgKeyDeleted            = "Key '%s' was deleted"
	MsgNumericMissing        = "Numeric key '%s' is missing"
	MsgNumericNotNumber      = "Numeric key '%s' is not a number"
	MsgNumericNotFinite      = "Numeric key '%s' is not finite"
	MsgNumericDecreased      = "Numeric key '%s' decreased from %v to %v"

	MsgMissingBlock        = "Missing %s block"
	MsgMissingField        = "%s block is missing required field '%s'"
	MsgPrevHashMismatch    = "Previous block hash does not match its contents"
	MsgIndexNotSequential  = "Expected index %d, but found %d"
	MsgPrevHashLink        = "Previous hash mismatch: expected %s, but found %s"
	MsgHashMismatch        = "Block hash does not match its contents"
	MsgTimestampNegative   = "%s block timestamp must not be negative"
	MsgTimestampDecreasing = "Timestamp went backwards from %d to %d"
	MsgTimeDriftExceeded   = "Timestamp drift %dms exceeds maximum %dms"
)
