package db

// DatabaseProvider is the key-value surface the chain store needs. A missing
// key is not an error: Get returns nil, nil.
type DatabaseProvider interface {
	Get(key []byte) ([]byte, error)
	// GetBatch reads keys consistently; missing keys are absent from the map.
	GetBatch(keys [][]byte) (map[string][]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// Batch starts a write set applied atomically by Write.
	Batch() DatabaseBatch
	Close() error
}

// IterableProvider adds ordered prefix scans, used to find block keys a
// snapshot no longer covers.
type IterableProvider interface {
	DatabaseProvider
	// IteratePrefix visits keys under prefix in byte order until callback
	// returns false. key and value are only valid during the callback.
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch collects puts and deletes for one atomic write.
type DatabaseBatch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
	Close()
}
