// Package opsserver exposes the service's operational surface: a health
// check, and a WebSocket stream that mirrors every alert as it is emitted,
// for a dashboard or other live consumer that does not want to subscribe
// to Redis directly.
package opsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"polysentry/internal/alerts"
	"polysentry/pkg/broadcaster"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the ops HTTP/WebSocket server.
type Server struct {
	logger      *zap.Logger
	broadcaster *broadcaster.Broadcaster
	httpServer  *http.Server
	stop        chan struct{}
}

// New builds a Server listening on addr (e.g. ":8900").
func New(addr string, logger *zap.Logger) *Server {
	s := &Server{
		logger:      logger.Named("opsserver"),
		broadcaster: broadcaster.NewBroadcaster(logger),
		stop:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// BroadcastAlert pushes a over the WebSocket stream to all connected clients.
func (s *Server) BroadcastAlert(a alerts.Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		s.logger.Error("alert broadcast marshal failed", zap.Error(err))
		return
	}
	s.broadcaster.Broadcast(payload)
}

// Run starts the broadcaster loop and the HTTP server. It blocks until the
// server stops (on Stop or a listener error).
func (s *Server) Run() error {
	go s.broadcaster.Run(s.stop)

	s.logger.Info("ops server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and the broadcaster loop.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stop)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s.broadcaster.Register(conn)

	go func() {
		defer s.broadcaster.Unregister(conn)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
