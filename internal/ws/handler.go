package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rohseh303/Paper/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to sync connections.
func Handler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}
		c := newClient(conn, log)
		log.Info("new connection", zap.String("conn", c.ID()), zap.String("remote", r.RemoteAddr))
		go c.writePump()
		// The request context dies when this handler returns; the pump
		// outlives it.
		go c.readPump(context.Background(), eng)
	}
}
