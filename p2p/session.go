package p2p

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mezonai/peerchain/logx"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrNotConnected  = errors.New("session is not connected")
)

// Transport is the collaborator that actually moves bytes to one remote peer.
// It must call the owning Session's OnConnect, OnData, OnClose and OnError.
type Transport interface {
	Send(data []byte) error
	Close() error
	RemoteID() string
}

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Handler receives the session lifecycle and its inbound messages.
type Handler interface {
	OnConnect(s *Session)
	OnMessage(s *Session, raw []byte)
	OnClose(s *Session)
	OnError(s *Session, err error)
}

// Session binds one transport to a handler and tracks the connection state.
type Session struct {
	id        string
	key       string
	transport Transport
	handler   Handler

	mu    sync.RWMutex
	state SessionState
}

// NewSession creates a DISCONNECTED session. The id is the transport's remote
// id, or a random one when the transport has none. Two sessions can share an
// id; Key is unique per session.
func NewSession(t Transport, h Handler) *Session {
	key := uuid.NewString()
	id := t.RemoteID()
	if id == "" {
		id = key
	}
	return &Session{id: id, key: key, transport: t, handler: h, state: StateDisconnected}
}

func (s *Session) ID() string {
	return s.id
}

// Key identifies this connection. It differs between a peer's reconnects.
func (s *Session) Key() string {
	return s.key
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dialing marks the transport as establishing its connection.
func (s *Session) Dialing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		s.state = StateConnecting
	}
}

// OnConnect moves the session to CONNECTED and notifies the handler.
func (s *Session) OnConnect() {
	if s.markConnected() {
		s.notifyConnect()
	}
}

func (s *Session) markConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected || s.state == StateClosed {
		return false
	}
	s.state = StateConnected
	return true
}

func (s *Session) notifyConnect() {
	logx.Info("SESSION", fmt.Sprintf("Connected | peer=%s", s.id))
	s.handler.OnConnect(s)
}

// OnData forwards one inbound message. Data arriving outside CONNECTED is dropped.
func (s *Session) OnData(raw []byte) {
	if st := s.State(); st != StateConnected {
		logx.Warn("SESSION", fmt.Sprintf("Dropping data in state %s | peer=%s", st, s.id))
		return
	}
	s.handler.OnMessage(s, raw)
}

// OnClose moves the session to CLOSED. Only the first call reaches the handler.
func (s *Session) OnClose() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	logx.Info("SESSION", fmt.Sprintf("Closed | peer=%s", s.id))
	s.handler.OnClose(s)
}

// OnError reports a transport error. The state is left to OnClose.
func (s *Session) OnError(err error) {
	logx.Warn("SESSION", fmt.Sprintf("Transport error | peer=%s | err=%v", s.id, err))
	s.handler.OnError(s, err)
}

// Send writes one message to the peer.
func (s *Session) Send(data []byte) error {
	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StateConnected:
	default:
		return ErrNotConnected
	}
	return s.transport.Send(data)
}

// Close tears the transport down and closes the session.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.OnClose()
	return err
}
