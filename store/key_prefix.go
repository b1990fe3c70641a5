package store

// Declare database key prefix for objects
const (
	PrefixBlock           = "blk:"
	PrefixChainMeta       = "chain_meta:"
	ChainMetaKeyLength    = "length"
	ChainMetaKeySavedAtMs = "saved_at_ms"
)
