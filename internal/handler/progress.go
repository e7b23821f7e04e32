package handler

import (
	"net/http"

	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/service/auth"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressRegistry is implemented by websocket.HubService.
type ProgressRegistry interface {
	Register(conn *websocket.Conn, userID int64)
	Unregister(conn *websocket.Conn)
}

// ProgressWebsocketHandler subscribes the caller to progress events of their
// own runs until the connection closes.
func ProgressWebsocketHandler(hub ProgressRegistry, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection, user.ID)
		defer hub.Unregister(connection)

		logger.Info("Progress listener connected for user %s", user.Username)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Progress listener for user %s disconnected", user.Username)
				} else {
					logger.Warning("Progress listener for user %s dropped: %v", user.Username, err)
				}
				break
			}
		}
	}
}
