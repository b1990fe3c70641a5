package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mezonai/peerchain/api"
	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/config"
	"github.com/mezonai/peerchain/events"
	"github.com/mezonai/peerchain/exception"
	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/monitoring"
	"github.com/mezonai/peerchain/p2p"
	"github.com/mezonai/peerchain/store"
	"github.com/mezonai/peerchain/validation"
)

const dialTimeout = 10 * time.Second

// nodeRuntime is everything a running node owns.
type nodeRuntime[T any] struct {
	cfg        *config.ConfigFile
	store      *store.ChainStore
	bus        *events.EventBus
	reconciler *p2p.Reconciler[T]
	api        *api.APIServer
	tcp        *p2p.TCPListener
	host       *p2p.Libp2pHost
}

// tuning holds the values read from the optional .ini file.
type tuning struct {
	policy    validation.BlockPolicy
	relaySize int
}

func loadTuning(path string) (tuning, error) {
	t := tuning{policy: validation.DefaultBlockPolicy(), relaySize: p2p.DefaultRelayCacheSize}
	if path == "" {
		return t, nil
	}
	blockCfg, err := config.LoadBlockConfig(path)
	if err != nil {
		return t, fmt.Errorf("failed to load block config: %w", err)
	}
	relayCfg, err := config.LoadRelayConfig(path)
	if err != nil {
		return t, fmt.Errorf("failed to load relay config: %w", err)
	}
	t.policy = blockCfg.Policy()
	t.relaySize = relayCfg.SeenCacheSize
	return t, nil
}

// startNode opens the store, restores the chain, starts the transport and
// dials the configured peers.
func startNode[T any](cfg *config.ConfigFile, tuningPath string, judge p2p.BlockJudge) (*nodeRuntime[T], error) {
	tn, err := loadTuning(tuningPath)
	if err != nil {
		return nil, err
	}

	cs, err := store.CreateStore(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain store: %w", err)
	}
	var chainOpts []chain.Option
	if cfg.Node.GenesisTimestampMs != nil {
		chainOpts = append(chainOpts, chain.WithGenesisTimestamp(*cfg.Node.GenesisTimestampMs))
	}
	local, err := store.LoadOrCreate[T](cs, chainOpts...)
	if err != nil {
		_ = cs.Close()
		return nil, fmt.Errorf("failed to restore chain: %w", err)
	}
	if err := store.SaveChain(cs, local); err != nil {
		_ = cs.Close()
		return nil, fmt.Errorf("failed to persist chain: %w", err)
	}
	logx.Info("NODE", fmt.Sprintf("Chain ready | length=%d | tip=%s", local.Len(), local.Tip().Hash))

	relay, err := p2p.NewRelayPolicy(tn.relaySize)
	if err != nil {
		_ = cs.Close()
		return nil, err
	}
	bus := events.NewEventBus()
	reconciler, err := p2p.NewReconciler(local,
		p2p.WithCodec(cfg.ChainCodec()),
		p2p.WithBlockPolicy(tn.policy),
		p2p.WithJudge(judge),
		p2p.WithRelayPolicy(relay),
		p2p.WithEventBus(bus),
		p2p.WithOnChange(func() {
			if err := store.SaveChain(cs, local); err != nil {
				logx.Error("NODE", "Failed to persist chain: ", err)
			}
		}),
	)
	if err != nil {
		_ = cs.Close()
		return nil, err
	}

	n := &nodeRuntime[T]{cfg: cfg, store: cs, bus: bus, reconciler: reconciler}
	monitoring.InitMetrics()

	if err := n.startTransport(); err != nil {
		n.Close()
		return nil, err
	}
	if cfg.Node.APIAddr != "" {
		n.api = api.NewAPIServer(local, reconciler, cfg.Node.APIAddr)
		if err := n.api.Start(); err != nil {
			n.Close()
			return nil, err
		}
	}
	n.dialPeers()
	return n, nil
}

func (n *nodeRuntime[T]) startTransport() error {
	switch n.cfg.Node.Transport {
	case config.TransportLibp2p:
		host, err := p2p.NewLibp2pHost([]string{n.cfg.Node.ListenAddr}, nil, n.reconciler)
		if err != nil {
			return err
		}
		n.host = host
		for _, addr := range host.Addrs() {
			logx.Info("NODE", "Dial me at ", addr)
		}
	default:
		ln, err := p2p.ListenTCP(n.cfg.Node.ListenAddr, n.reconciler)
		if err != nil {
			return err
		}
		n.tcp = ln
	}
	return nil
}

func (n *nodeRuntime[T]) dialPeers() {
	for _, peer := range n.cfg.Node.Peers {
		peer := peer
		exception.SafeGo("dial:"+peer, func() {
			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()
			var err error
			if n.host != nil {
				_, err = n.host.Dial(ctx, peer)
			} else {
				_, err = p2p.DialTCP(ctx, peer, n.reconciler)
			}
			if err != nil {
				logx.Warn("NODE", fmt.Sprintf("Failed to dial peer | addr=%s | err=%v", peer, err))
			}
		})
	}
}

// Close stops the transports and flushes the chain to the store.
func (n *nodeRuntime[T]) Close() {
	if n.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.api.Shutdown(ctx)
		cancel()
	}
	if n.tcp != nil {
		_ = n.tcp.Close()
	}
	if n.host != nil {
		_ = n.host.Close()
	}
	if err := store.SaveChain(n.store, n.reconciler.Chain()); err != nil {
		logx.Error("NODE", "Failed to persist chain on shutdown: ", err)
	}
	_ = n.store.Close()
}

// logEvents mirrors bus events into the log until the subscription closes.
func logEvents(ch <-chan events.ChainEvent) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.BlockAppended:
			logx.Info("EVENT", fmt.Sprintf("Block appended | index=%d | origin=%q", e.Block.Index, e.Origin))
		case *events.ChainReplaced:
			logx.Info("EVENT", fmt.Sprintf("Chain replaced | %d -> %d | origin=%s", e.OldLength, e.NewLength, e.Origin))
		case *events.MessageDropped:
			logx.Debug("EVENT", fmt.Sprintf("Message dropped | peer=%s | reason=%s", e.PeerID, e.Reason))
		default:
			logx.Debug("EVENT", string(ev.Type()))
		}
	}
}
