package broadcaster

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Broadcaster manages a set of WebSocket connections and broadcasts alert
// messages to them. Each alert is small and infrequent relative to a tick
// stream, so messages are written directly with no batching stage.
type Broadcaster struct {
	logger       *zap.Logger
	clients      map[*websocket.Conn]bool
	mu           sync.Mutex
	broadcastCh  chan []byte
	registerCh   chan *websocket.Conn
	unregisterCh chan *websocket.Conn
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		logger:       logger.Named("broadcaster"),
		clients:      make(map[*websocket.Conn]bool),
		broadcastCh:  make(chan []byte, 256),
		registerCh:   make(chan *websocket.Conn, 16),
		unregisterCh: make(chan *websocket.Conn, 16),
	}
}

// Run starts the broadcaster's main loop. It returns when stop is closed.
func (b *Broadcaster) Run(stop <-chan struct{}) {
	b.logger.Info("broadcaster started")
	for {
		select {
		case <-stop:
			b.logger.Info("broadcaster stopped")
			return

		case client := <-b.registerCh:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.Info("ws client registered", zap.String("remoteAddr", client.RemoteAddr().String()))

		case client := <-b.unregisterCh:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				client.Close()
				b.logger.Info("ws client unregistered", zap.String("remoteAddr", client.RemoteAddr().String()))
			}
			b.mu.Unlock()

		case message := <-b.broadcastCh:
			b.mu.Lock()
			for client := range b.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					b.logger.Error("write to client failed", zap.Error(err), zap.String("remoteAddr", client.RemoteAddr().String()))
					delete(b.clients, client)
					client.Close()
				}
			}
			b.mu.Unlock()
		}
	}
}

// Register adds a new client to the broadcaster.
func (b *Broadcaster) Register(client *websocket.Conn) {
	b.registerCh <- client
}

// Unregister removes a client from the broadcaster.
func (b *Broadcaster) Unregister(client *websocket.Conn) {
	b.unregisterCh <- client
}

// Broadcast sends message to every registered client.
func (b *Broadcaster) Broadcast(message []byte) {
	select {
	case b.broadcastCh <- message:
	default:
		b.logger.Warn("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of currently registered clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
