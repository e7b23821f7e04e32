package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

type client struct {
	conn   *websocket.Conn
	userID int64
}

type message struct {
	userID  int64
	payload []byte
}

// HubService fans progress events out to the websocket connections of the
// user who owns the run. Only the Run goroutine writes to connections.
type HubService struct {
	clients    map[*websocket.Conn]int64
	broadcast  chan message
	register   chan client
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]int64),
		broadcast:  make(chan message, 256),
		register:   make(chan client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and deliveries until ctx is done, then closes
// every connection.
func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			close(h.done)
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c.conn] = c.userID
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Progress client connected for user %d. Total: %d", c.userID, total)

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Progress client disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for conn, userID := range h.clients {
				if userID != msg.userID {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					h.logger.Error("Error sending progress: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register subscribes conn to userID's progress. After Run has stopped the
// connection is closed instead.
func (h *HubService) Register(conn *websocket.Conn, userID int64) {
	select {
	case h.register <- client{conn: conn, userID: userID}:
	case <-h.done:
		conn.Close()
	}
}

func (h *HubService) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// SendProgress queues p for userID's connections. It never blocks: when the
// queue is full the event is dropped.
func (h *HubService) SendProgress(userID int64, p model.Progress) {
	payload, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("Error encoding progress: %v", err)
		return
	}
	select {
	case h.broadcast <- message{userID: userID, payload: payload}:
	default:
		h.logger.Warning("Progress queue full, dropping event for run %s", p.RunID)
	}
}

// ProgressFor returns a callback that forwards a run's progress to userID.
func (h *HubService) ProgressFor(userID int64) model.ProgressFunc {
	return func(p model.Progress) { h.SendProgress(userID, p) }
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
