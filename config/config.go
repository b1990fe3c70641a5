package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/peerchain/codec"
	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/p2p"
	"github.com/mezonai/peerchain/store"
	"github.com/mezonai/peerchain/validation"
)

// Default returns a runnable single-node configuration with an in-memory store.
func Default() *ConfigFile {
	return &ConfigFile{
		Node: NodeConfig{
			ID:         "node",
			ListenAddr: "127.0.0.1:7070",
			Transport:  TransportTCP,
			APIAddr:    "127.0.0.1:8080",
		},
		Store: store.StoreConfig{Type: store.MemoryStoreType},
		Codec: CodecConfig{Compress: true},
	}
}

// LoadNodeConfig reads and parses a node.yml file. Missing fields keep the
// values of Default.
func LoadNodeConfig(path string) (*ConfigFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfgFile := Default()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfgFile); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfgFile.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded config | node=%s | transport=%s | peers=%d | store=%s",
		cfgFile.Node.ID, cfgFile.Node.Transport, len(cfgFile.Node.Peers), cfgFile.Store.Type))
	return cfgFile, nil
}

func (c *ConfigFile) Validate() error {
	switch c.Node.Transport {
	case TransportTCP, TransportLibp2p:
	default:
		return fmt.Errorf("unsupported transport: %q", c.Node.Transport)
	}
	if c.Node.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	return c.Store.Validate()
}

// ChainCodec returns the codec selected by the codec section.
func (c *ConfigFile) ChainCodec() codec.Codec {
	if c.Codec.Compress {
		return codec.DeflateCodec{}
	}
	return codec.JSONCodec{}
}

// LoadBlockConfig reads the [block] section from an .ini file
func LoadBlockConfig(path string) (*BlockConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	blockCfg := &BlockConfig{}
	if err := cfg.Section("block").MapTo(blockCfg); err != nil {
		return nil, err
	}
	return blockCfg, nil
}

// LoadRelayConfig reads the [relay] section from an .ini file
func LoadRelayConfig(path string) (*RelayConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	relayCfg := &RelayConfig{SeenCacheSize: p2p.DefaultRelayCacheSize}
	if err := cfg.Section("relay").MapTo(relayCfg); err != nil {
		return nil, err
	}
	return relayCfg, nil
}

// Policy converts the section into a block-transition policy.
func (b *BlockConfig) Policy() validation.BlockPolicy {
	p := validation.DefaultBlockPolicy()
	if b == nil {
		return p
	}
	p.AllowTimeTravel = b.AllowTimeTravel
	p.MaxTimeDrift = b.MaxTimeDriftMs
	return p
}
