package p2p

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/mezonai/peerchain/exception"
)

// StreamTransport frames envelopes as newline-delimited JSON over a byte
// stream. TCP connections and libp2p streams both use it.
type StreamTransport struct {
	rw     io.ReadWriteCloser
	remote string

	wmu       sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func NewStreamTransport(rw io.ReadWriteCloser, remoteID string) *StreamTransport {
	return &StreamTransport{rw: rw, remote: remoteID, closed: make(chan struct{})}
}

func (t *StreamTransport) RemoteID() string {
	return t.remote
}

func (t *StreamTransport) Send(data []byte) error {
	if t.isClosed() {
		return ErrSessionClosed
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.rw.Write(frame)
	return err
}

func (t *StreamTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.rw.Close()
	})
	return err
}

func (t *StreamTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Serve connects s and pumps inbound frames into it until the stream ends,
// then closes the session. It blocks for the lifetime of the stream.
func (t *StreamTransport) Serve(s *Session) {
	if !s.markConnected() {
		return
	}
	done := make(chan struct{})
	exception.SafeGo("stream-reader:"+t.remote, func() {
		defer close(done)
		t.readLoop(s)
	})
	s.notifyConnect()
	<-done
	_ = t.Close()
	s.OnClose()
}

func (t *StreamTransport) readLoop(s *Session) {
	scanner := bufio.NewScanner(t.rw)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.OnData(append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil && !t.isClosed() && !errors.Is(err, net.ErrClosed) {
		s.OnError(err)
	}
}
