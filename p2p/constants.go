package p2p

const (
	// SyncProtocol is the libp2p stream protocol carrying envelopes.
	SyncProtocol = "/peerchain/sync/1.0.0"

	// DefaultRelayCacheSize bounds how many block hashes a node remembers as
	// already relayed.
	DefaultRelayCacheSize = 1024

	// MaxFrameSize caps one newline-delimited envelope on stream transports.
	MaxFrameSize = 16 * 1024 * 1024
)
