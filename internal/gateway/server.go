package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftware/deskhand/internal/bus"
)

// Server exposes the run event stream over WebSocket. Clients are pure
// observers: the read side discards everything except control frames.
type Server struct {
	bus      *bus.Bus
	limiter  *RateLimiter
	serverID string

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

func NewServer(b *bus.Bus, rpm int) *Server {
	return &Server{
		bus:      b,
		limiter:  NewRateLimiter(rpm, 5),
		serverID: uuid.NewString(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local observability endpoint; origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
	}
}

// Start listens on addr and serves the /ws endpoint until Shutdown.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("gateway listening", "addr", addr)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting connections and closes existing clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.limiter.Allow(host) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, s)
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.run()
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
	}()
}
