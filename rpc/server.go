package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxBodyBytes = 1 << 20
	maxBatch     = 100
)

// Server serves the kitty JSON-RPC API over HTTP. POST / accepts a single
// request or a batch array; GET /health reports the chain height.
type Server struct {
	handler   *Handler
	addr      string
	authToken string
	limiter   *rate.Limiter // nil: unlimited
	srv       *http.Server
	ln        net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit caps RPC calls at perSecond across all clients, with a burst
// of one second's worth. Zero or less disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		}
	}
}

// NewServer creates a Server on addr. A non-empty authToken must be sent as
// "Authorization: Bearer <token>" on every RPC call.
func NewServer(addr string, handler *Handler, authToken string, opts ...Option) *Server {
	s := &Server{handler: handler, addr: addr, authToken: authToken}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.Handle("POST /", s.throttle(s.requireAuth(http.HandlerFunc(s.serveRPC))))
	mux.HandleFunc("GET /health", s.serveHealth)
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	log.Printf("[rpc] listening on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[rpc] serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start, else the configured one.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop drains in-flight requests for up to five seconds.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errResponse(nil, CodeRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	want := []byte("Bearer " + s.authToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.serveBatch(w, body)
		return
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	writeJSON(w, s.call(req))
}

func (s *Server) serveBatch(w http.ResponseWriter, body []byte) {
	var reqs []Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatch {
		writeJSON(w, errResponse(nil, CodeInvalidRequest, "batch must hold 1 to 100 requests"))
		return
	}
	out := make([]Response, len(reqs))
	for i, req := range reqs {
		out[i] = s.call(req)
	}
	writeJSON(w, out)
}

func (s *Server) call(req Request) Response {
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'")
	}
	return s.handler.Dispatch(req)
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "height": s.handler.bc.Height()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[rpc] write response: %v", err)
	}
}
