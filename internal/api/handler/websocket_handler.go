package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscription struct {
	conn      *websocket.Conn
	sessionID string
}

type outbound struct {
	sessionID string
	payload   []byte
}

// WebSocketManager fans intent updates out to the clients watching a session.
// A client connected without session_id receives every update.
type WebSocketManager struct {
	clients    map[*websocket.Conn]string
	register   chan subscription
	unregister chan *websocket.Conn
	broadcast  chan outbound
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	log        *zap.Logger
}

func NewWebSocketManager(log *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]string),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan outbound, 64),
		done:       make(chan struct{}),
		log:        logger.OrNop(log),
	}
}

// Start runs the hub until ctx is cancelled. Subscriptions arriving after
// that are closed immediately.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	defer wsm.stopOnce.Do(func() { close(wsm.done) })
	for {
		select {
		case <-ctx.Done():
			wsm.mutex.Lock()
			for client := range wsm.clients {
				client.Close()
				delete(wsm.clients, client)
			}
			wsm.mutex.Unlock()
			return

		case sub := <-wsm.register:
			wsm.mutex.Lock()
			wsm.clients[sub.conn] = sub.sessionID
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Debug("websocket client connected", zap.String("session_id", sub.sessionID), zap.Int("total", total))

		case client := <-wsm.unregister:
			wsm.mutex.Lock()
			if _, ok := wsm.clients[client]; ok {
				delete(wsm.clients, client)
				client.Close()
			}
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Debug("websocket client disconnected", zap.Int("total", total))

		case msg := <-wsm.broadcast:
			wsm.mutex.Lock()
			for client, sessionID := range wsm.clients {
				if sessionID != "" && sessionID != msg.sessionID {
					continue
				}
				if err := client.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					wsm.log.Warn("error writing to websocket client", zap.Error(err))
					client.Close()
					delete(wsm.clients, client)
				}
			}
			wsm.mutex.Unlock()
		}
	}
}

func (wsm *WebSocketManager) subscribe(sub subscription) bool {
	select {
	case wsm.register <- sub:
		return true
	case <-wsm.done:
		return false
	}
}

func (wsm *WebSocketManager) unsubscribe(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

func (wsm *WebSocketManager) ClientCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients)
}

// PublishIntentUpdate never blocks the caller; updates are dropped when the hub is saturated.
func (wsm *WebSocketManager) PublishIntentUpdate(update domain.IntentUpdate) {
	payload, err := json.Marshal(gin.H{"type": "intent_update", "data": update})
	if err != nil {
		wsm.log.Error("error marshaling intent update", zap.Error(err))
		return
	}

	select {
	case wsm.broadcast <- outbound{sessionID: update.SessionID, payload: payload}:
	default:
		wsm.log.Warn("broadcast channel is full, dropping intent update", zap.String("session_id", update.SessionID))
	}
}

type WebSocketHandler struct {
	wsManager *WebSocketManager
}

func NewWebSocketHandler(wsManager *WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager}
}

// HandleWebSocket upgrades GET /ws?session_id=<id>.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.wsManager.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	if !h.wsManager.subscribe(subscription{conn: conn, sessionID: c.Query("session_id")}) {
		h.wsManager.log.Debug("websocket hub stopped, closing new client")
		conn.Close()
		return
	}

	go func() {
		defer h.wsManager.unsubscribe(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.wsManager.log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()
}
