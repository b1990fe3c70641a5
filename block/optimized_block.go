package block

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sync"
)

// hashPool avoids allocating a SHA-256 state for every block during chain scans.
var hashPool = sync.Pool{
	New: func() interface{} {
		return sha256.New()
	},
}

func sumHex(preimage []byte) string {
	h := hashPool.Get().(hash.Hash)
	defer hashPool.Put(h)
	h.Reset()
	h.Write(preimage)

	var out [sha256.Size]byte
	return hex.EncodeToString(h.Sum(out[:0]))
}
