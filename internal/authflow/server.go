package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"vbt-go/internal/vbt"
)

// maxCallbackBytes bounds the completion POST body.
const maxCallbackBytes = 64 << 10

// callbackPayload is the JSON body the portal's completion page POSTs.
type callbackPayload struct {
	Token string `json:"token"`
	State string `json:"state"`
}

// CallbackServer is the loopback listener that receives the portal's
// completion POST and relays it to the flow. Every request is answered 204
// no matter what, so probes learn nothing; CORS headers are only granted to
// the trusted origin, and the exchange itself runs off the request
// goroutine so a slow account API cannot stall the browser.
type CallbackServer struct {
	flow   *Flow
	logger vbt.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	addr   string
	server *http.Server
}

// NewCallbackServer creates a server that will listen on addr.
func NewCallbackServer(addr string, flow *Flow, logger vbt.Logger) *CallbackServer {
	if logger == nil {
		logger = vbt.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CallbackServer{
		flow:   flow,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		addr:   addr,
	}
}

// Start begins listening for callbacks.
func (s *CallbackServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.mu.Lock()
	addr := s.addr
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	// Keep the resolved address so tests can listen on port 0.
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("callback server stopped", "error", err)
		}
	}()
	s.logger.Debug("callback server listening", "addr", s.Addr())
	return nil
}

// Stop shuts the listener down and cancels any exchange still running.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Addr returns the resolved listen address.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && origin == s.flow.TrustedOrigin() {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
	}

	if r.Method == http.MethodPost {
		var payload callbackPayload
		if err := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBytes)).Decode(&payload); err != nil {
			s.logger.Debug("discarding malformed callback body", "error", err)
		} else {
			go s.flow.HandleCallback(s.ctx, origin, payload.Token, payload.State)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
