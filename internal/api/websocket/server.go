package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fortuna/tipster/internal/publisher"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const relayRetryDelay = 5 * time.Second

// EventSource reads job events published by the workers
type EventSource interface {
	LatestJobEventID(ctx context.Context) (string, error)
	ReadJobEvents(ctx context.Context, lastID string, block time.Duration) ([]publisher.StreamMessage, string, error)
}

// Server streams job lifecycle events to websocket clients
type Server struct {
	hub    *Hub
	source EventSource

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a new WebSocket server. source may be nil, in which
// case only events passed to Broadcast reach clients.
func NewServer(source EventSource) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:    NewHub(),
		source: source,
		ctx:    ctx,
		cancel: cancel,
	}
	s.server = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the routes served by the websocket server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/jobs", s.handleJobs)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start starts the hub, the stream relay and the listener. It blocks until
// the listener stops.
func (s *Server) Start(port string) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server.Addr = fmt.Sprintf(":%s", port)
	srv := s.server
	s.mu.Unlock()

	go s.hub.Run(s.ctx)
	if s.source != nil {
		go s.relay(s.ctx)
	}

	log.Info().Str("port", port).Msg("websocket server listening")
	return srv.ListenAndServe()
}

// relay forwards every event on the job stream to the hub, starting after
// the newest event present when it began
func (s *Server) relay(ctx context.Context) {
	lastID, ok := s.startID(ctx)
	if !ok {
		return
	}
	for ctx.Err() == nil {
		msgs, next, err := s.source.ReadJobEvents(ctx, lastID, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("reading job stream failed")
			if !sleepCtx(ctx, relayRetryDelay) {
				return
			}
			continue
		}
		lastID = next
		for _, m := range msgs {
			s.hub.Broadcast(m.Data)
		}
	}
}

// startID resolves the stream position once so later reads use a concrete
// id. It reports false when ctx ends first.
func (s *Server) startID(ctx context.Context) (string, bool) {
	for {
		id, err := s.source.LatestJobEventID(ctx)
		if err == nil {
			return id, true
		}
		if ctx.Err() != nil {
			return "", false
		}
		log.Warn().Err(err).Msg("resolving job stream position failed")
		if !sleepCtx(ctx, relayRetryDelay) {
			return "", false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := newClient(s.hub, conn)
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// Broadcast sends a raw event to all connected clients
func (s *Server) Broadcast(data []byte) {
	s.hub.Broadcast(data)
}

// Shutdown gracefully shuts down the server. It is safe to call before or
// while Start runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	srv := s.server
	s.mu.Unlock()
	return srv.Shutdown(ctx)
}
