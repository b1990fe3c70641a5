package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mezonai/peerchain/block"
	apierrors "github.com/mezonai/peerchain/errors"
	"github.com/mezonai/peerchain/exception"
	"github.com/mezonai/peerchain/jsonx"
	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/monitoring"
)

// ChainView is the read side of a chain, whatever its payload type.
type ChainView interface {
	Blocks() []*block.Block
	Block(i int) (*block.Block, error)
	Verify() error
	Len() int
}

// PeerLister reports the currently connected peers.
type PeerLister interface {
	Peers() []string
}

type ChainResponse struct {
	Length int            `json:"length"`
	Blocks []*block.Block `json:"blocks"`
}

type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Error  string `json:"error,omitempty"`
}

type PeersResponse struct {
	Count int      `json:"count"`
	Peers []string `json:"peers"`
}

type APIServer struct {
	Chain      ChainView
	Peers      PeerLister
	ListenAddr string
	// per IP request limit
	Limiter *rateLimiter

	server *http.Server
}

func NewAPIServer(chain ChainView, peers PeerLister, addr string) *APIServer {
	return &APIServer{
		Chain:      chain,
		Peers:      peers,
		ListenAddr: addr,
		Limiter:    newRateLimiter(120, time.Minute),
	}
}

// Handler returns the routes of the status API.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chain", s.limit(s.handleChain))
	mux.HandleFunc("/chain/validate", s.limit(s.handleValidate))
	mux.HandleFunc("/chain/block", s.limit(s.handleBlock))
	mux.HandleFunc("/peers", s.limit(s.handlePeers))
	monitoring.RegisterMetrics(mux)
	return mux
}

func (s *APIServer) Start() error {
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.ListenAddr, err)
	}
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	logx.Info("API", fmt.Sprintf("API listen on %s", ln.Addr()))
	exception.SafeGo("api-server", func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Error("API", "Server stopped: ", err)
		}
	})
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *APIServer) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, apierrors.ErrCodeMethodNotAllowed, apierrors.ErrMsgMethodNotAllowed)
			return
		}
		clientIP := r.RemoteAddr
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientIP = ip
		}
		if s.Limiter != nil && !s.Limiter.Allow(clientIP) {
			logx.Warn("API", fmt.Sprintf("Rate limit exceeded for IP %s", clientIP))
			writeError(w, http.StatusTooManyRequests, apierrors.ErrCodeRateLimited, apierrors.ErrMsgRateLimited)
			return
		}
		next(w, r)
	}
}

func (s *APIServer) handleChain(w http.ResponseWriter, r *http.Request) {
	blocks := s.Chain.Blocks()
	writeJSON(w, http.StatusOK, ChainResponse{Length: len(blocks), Blocks: blocks})
}

func (s *APIServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	resp := ValidateResponse{Valid: true, Length: s.Chain.Len()}
	if err := s.Chain.Verify(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, apierrors.ErrMsgInvalidIndex)
		return
	}
	b, err := s.Chain.Block(index)
	if err != nil {
		writeError(w, http.StatusNotFound, apierrors.ErrCodeBlockNotFound, apierrors.ErrMsgBlockNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *APIServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := []string{}
	if s.Peers != nil {
		peers = append(peers, s.Peers.Peers()...)
	}
	writeJSON(w, http.StatusOK, PeersResponse{Count: len(peers), Peers: peers})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonx.NewEncoder(w).Encode(v); err != nil {
		logx.Error("API", "Failed to write response: ", err)
	}
}

func writeError(w http.ResponseWriter, status int, code apierrors.APIErrorCode, message string) {
	writeJSON(w, status, apierrors.APIError{Code: code, Message: message})
}

type rateLimiter struct {
	max     int
	window  time.Duration
	mu      sync.Mutex
	entries map[string][]time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *rateLimiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	arr := l.entries[key]
	// drop old
	kept := arr[:0]
	for _, t := range arr {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}
