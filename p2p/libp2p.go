package p2p

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/mezonai/peerchain/exception"
	"github.com/mezonai/peerchain/logx"
)

// Libp2pHost carries sessions over libp2p streams speaking SyncProtocol.
type Libp2pHost struct {
	host    host.Host
	handler Handler
}

// NewLibp2pHost starts a host listening on listenAddrs. A nil key generates a
// fresh Ed25519 identity.
func NewLibp2pHost(listenAddrs []string, priv crypto.PrivKey, h Handler) (*Libp2pHost, error) {
	if priv == nil {
		var err error
		priv, _, err = crypto.GenerateKeyPairWithReader(crypto.Ed25519, -1, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	lh, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.DefaultSecurity,
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	p := &Libp2pHost{host: lh, handler: h}
	lh.SetStreamHandler(protocol.ID(SyncProtocol), p.handleStream)

	logx.Info("LIBP2P", fmt.Sprintf("Host started | id=%s | addrs=%v", lh.ID(), p.Addrs()))
	return p, nil
}

func (p *Libp2pHost) ID() string {
	return p.host.ID().String()
}

// Addrs returns dialable multiaddrs including the /p2p/ component.
func (p *Libp2pHost) Addrs() []string {
	self, err := multiaddr.NewMultiaddr("/p2p/" + p.host.ID().String())
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(p.host.Addrs()))
	for _, a := range p.host.Addrs() {
		out = append(out, a.Encapsulate(self).String())
	}
	return out
}

func (p *Libp2pHost) handleStream(stream network.Stream) {
	remote := stream.Conn().RemotePeer().String()
	t := NewStreamTransport(stream, remote)
	s := NewSession(t, p.handler)
	t.Serve(s)
}

// Dial opens a sync stream to the peer at addr (a multiaddr with /p2p/ id).
func (p *Libp2pHost) Dial(ctx context.Context, addr string) (*Session, error) {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid peer address %s: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("invalid peer address %s: %w", addr, err)
	}
	if err := p.host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("failed to connect to peer %s: %w", info.ID, err)
	}
	stream, err := p.host.NewStream(ctx, info.ID, protocol.ID(SyncProtocol))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream to peer %s: %w", info.ID, err)
	}

	t := NewStreamTransport(stream, info.ID.String())
	s := NewSession(t, p.handler)
	s.Dialing()
	exception.SafeGo("libp2p-session:"+info.ID.String(), func() { t.Serve(s) })
	return s, nil
}

func (p *Libp2pHost) Close() error {
	return p.host.Close()
}
