package config

import (
	"github.com/mezonai/peerchain/store"
)

// TransportType selects how a node reaches its peers.
type TransportType string

const (
	TransportTCP    TransportType = "tcp"
	TransportLibp2p TransportType = "libp2p"
)

// NodeConfig represents a node's configuration
type NodeConfig struct {
	ID         string        `yaml:"id"`
	ListenAddr string        `yaml:"listen_addr"`
	Transport  TransportType `yaml:"transport"`
	Peers      []string      `yaml:"peers"`
	APIAddr    string        `yaml:"api_addr"`
	// GenesisTimestampMs pins the genesis block so peers started apart agree on it
	GenesisTimestampMs *int64 `yaml:"genesis_timestamp_ms"`
}

// CodecConfig picks the chain encoding used on the wire.
type CodecConfig struct {
	Compress bool `yaml:"compress"`
}

// ConfigFile is the top-level structure of node.yml
type ConfigFile struct {
	Node  NodeConfig        `yaml:"node"`
	Store store.StoreConfig `yaml:"store"`
	Codec CodecConfig       `yaml:"codec"`
}

// BlockConfig is the [block] section of the tuning file.
type BlockConfig struct {
	AllowTimeTravel bool  `ini:"allow_time_travel"`
	MaxTimeDriftMs  int64 `ini:"max_time_drift_ms"`
}

// RelayConfig is the [relay] section of the tuning file.
type RelayConfig struct {
	SeenCacheSize int `ini:"seen_cache_size"`
}
