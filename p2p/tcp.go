package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mezonai/peerchain/exception"
	"github.com/mezonai/peerchain/logx"
)

// TCPListener accepts peer connections and serves each one as a session.
type TCPListener struct {
	ln      net.Listener
	handler Handler
}

// ListenTCP starts accepting on addr in the background.
func ListenTCP(addr string, h Handler) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &TCPListener{ln: ln, handler: h}
	exception.SafeGo("tcp-accept", l.acceptLoop)
	logx.Info("TCP", fmt.Sprintf("Listening | addr=%s", ln.Addr()))
	return l, nil
}

func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *TCPListener) Close() error {
	return l.ln.Close()
}

func (l *TCPListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logx.Error("TCP", fmt.Sprintf("Accept failed | err=%v", err))
			}
			return
		}
		t := NewStreamTransport(conn, conn.RemoteAddr().String())
		s := NewSession(t, l.handler)
		exception.SafeGo("tcp-session:"+s.ID(), func() { t.Serve(s) })
	}
}

// DialTCP connects to a listening peer. The returned session becomes
// CONNECTED once the stream is being served.
func DialTCP(ctx context.Context, addr string, h Handler) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	t := NewStreamTransport(conn, addr)
	s := NewSession(t, h)
	s.Dialing()
	exception.SafeGo("tcp-session:"+addr, func() { t.Serve(s) })
	return s, nil
}
