// Package syncserver is the token-gated local HTTP service that exposes the
// shared hydration state to browser clients.
package syncserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/state"
	"github.com/rcliao/hydrosync/internal/transport"
)

// Tracker is the intake view the service reads and writes through.
type Tracker interface {
	Location() *time.Location
	Now() time.Time
	Today(ctx context.Context) float64
	AddOn(ctx context.Context, day time.Time, ml float64, source string) (float64, error)
	DayTotal(ctx context.Context, day time.Time) float64
	Month(ctx context.Context, day time.Time) map[string]float64
	Streaks(ctx context.Context) (model.Streaks, error)
	QuickAdd(ctx context.Context) model.QuickAdd
}

// Broadcaster publishes local changes to companion devices.
type Broadcaster interface {
	PushIntake(ctx context.Context) transport.Result
	PushGoal(ctx context.Context) transport.Result
}

// Options configures a Server.
type Options struct {
	Addr string

	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit int
	RateBurst int

	Logger *slog.Logger
}

// Server owns the listener. Start and Stop may be called repeatedly; at most
// one listener is open per Server.
type Server struct {
	tracker Tracker
	state   state.Store
	peers   Broadcaster
	opts    Options
	log     *slog.Logger
	hub     *Hub

	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu     sync.Mutex
	srv    *http.Server
	ln     net.Listener
	cancel context.CancelFunc
	unsub  func()
}

// New returns a stopped Server. peers may be nil when no transport is
// configured.
func New(tracker Tracker, st state.Store, peers Broadcaster, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		tracker: tracker,
		state:   st,
		peers:   peers,
		opts:    opts,
		log:     log,
		hub:     newHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = opts.RateLimit
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Start binds the listener and serves in the background. Calling Start on
// a running server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv, s.ln, s.cancel = srv, ln, cancel
	s.unsub = s.state.Subscribe(s.onChange)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("sync service stopped", "error", err)
			s.release(srv)
		}
	}()
	s.log.Info("sync service listening", "addr", ln.Addr().String())
	return nil
}

// Stop cancels in-flight request contexts, disconnects websocket clients
// and releases the port. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}

	s.cancel()
	s.unsub()
	s.hub.CloseAll()
	err := s.srv.Shutdown(ctx)
	s.srv, s.ln, s.cancel, s.unsub = nil, nil, nil, nil
	s.log.Info("sync service stopped")
	if err != nil {
		return fmt.Errorf("shutdown sync service: %w", err)
	}
	return nil
}

// release drops a server whose Serve loop died on its own, so Running turns
// false and a later Start binds again.
func (s *Server) release(srv *http.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != srv {
		return
	}
	s.cancel()
	s.unsub()
	s.hub.CloseAll()
	srv.Close()
	s.srv, s.ln, s.cancel, s.unsub = nil, nil, nil, nil
}

// Running reports whether the listener is open.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the bound address while running, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// Handler returns the full handler chain: rate limit, auth, routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/hydration", s.getHydration).Methods(http.MethodGet)
	r.HandleFunc("/hydration", s.postHydration).Methods(http.MethodPost)
	r.HandleFunc("/goal", s.getGoal).Methods(http.MethodGet)
	r.HandleFunc("/goal", s.postGoal).Methods(http.MethodPost)
	r.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/unit", s.getUnit).Methods(http.MethodGet)
	r.HandleFunc("/addHydrationAmounts", s.getQuickAdd).Methods(http.MethodGet)
	r.HandleFunc("/streaks", s.getStreaks).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = s.authenticate(r)
	if s.limiter != nil {
		h = s.rateLimit(h)
	}
	return h
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestToken extracts the token from "Authorization: Bearer <t>" or a bare
// header value. Websocket clients cannot set headers, so /ws also accepts a
// token query parameter.
func requestToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	if h == "" && r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return h
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := requestToken(r)
		if got == "" {
			writeError(w, http.StatusUnauthorized, "missing auth token")
			return
		}
		want, err := s.state.AuthToken(r.Context())
		if err != nil {
			s.log.Error("read auth token", "error", err)
			writeError(w, http.StatusInternalServerError, "could not verify token")
			return
		}
		if want == "" || got != want {
			writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// onChange forwards display-relevant changes to websocket clients. A new
// auth token disconnects everyone still holding the old one.
func (s *Server) onChange(c state.Change) {
	if c.Key == state.KeyAuthToken {
		s.hub.CloseAll()
		return
	}

	ctx := context.Background()
	unit, err := s.state.Unit(ctx)
	if err != nil {
		s.log.Warn("read unit", "error", err)
	}
	ev := Event{Key: string(c.Key), IsMetric: unit.IsMetric()}
	switch c.Key {
	case state.KeyGoal, state.KeyIntake:
		v, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return
		}
		v = unit.ToDisplay(v)
		ev.Value = &v
	case state.KeyUnit:
	default:
		return
	}
	s.hub.Broadcast(ev)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade", "error", err)
		return
	}
	s.hub.serve(conn)
}
