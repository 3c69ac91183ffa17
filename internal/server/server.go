package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yomogy/kikitori/internal/logger"
)

// Server is the local HTTP control server. It only ever listens on the
// loopback interface and serves the JSON API the tray menu and external
// tools talk to.
type Server struct {
	config     Config
	log        *logger.Logger
	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
	port       int
	mu         sync.Mutex
	running    bool
}

// Config holds server configuration
type Config struct {
	Port            int           // Listen port, 0 picks a random free port
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration // Grace period for in-flight requests on Stop
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		Port:            18765,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// New creates a new HTTP server. The mux exists from this point on, so
// routes can be registered before or after Start.
func New(config Config, log *logger.Logger) *Server {
	return &Server{
		config: config,
		log:    log,
		mux:    http.NewServeMux(),
		port:   config.Port,
	}
}

// GetMux returns the request mux for direct route registration
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// RegisterAPIHandler registers a handler at the given path. Safe to call
// while the server is running.
func (s *Server) RegisterAPIHandler(path string, handler http.Handler) error {
	if path == "" {
		return fmt.Errorf("empty handler path")
	}
	if handler == nil {
		return fmt.Errorf("nil handler for path %s", path)
	}

	s.mux.Handle(path, handler)
	return nil
}

// Start binds the loopback listener and begins serving in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on 127.0.0.1:%d: %w", s.port, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:      corsMiddleware(s.mux),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.httpServer = srv

	// srv と listener をローカルで捕まえて Stop との競合を避ける
	port := s.port
	go func() {
		s.log.Info("Control server listening on http://127.0.0.1:%d", port)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Control server error: %v", err)
		}
	}()

	s.running = true
	return nil
}

// Stop shuts the server down, waiting out in-flight requests. Calling
// Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Port returns the port the server is listening on
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns the full URL to the server
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port())
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// corsMiddleware allows cross-origin requests from local pages only and
// answers preflight requests directly
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); isLoopbackOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLoopbackOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1")
}
