package kitchen

import (
	"log/slog"
	"net/http"
	"time"

	"cafe-pos/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // displays are authenticated by token, not origin
	},
}

// ServeWS upgrades the request and streams every hub event to the display
// until either side goes away.
func ServeWS(hub *Hub, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("kitchen.ws", c.GetString("requestID"), "failed to upgrade connection", err)
			return
		}

		sub := hub.Subscribe()
		log.Info("kitchen.ws", c.GetString("requestID"), "kitchen display connected",
			slog.Int("subscribers", hub.Subscribers()))

		go writePump(conn, sub)
		readPump(conn)

		hub.Unsubscribe(sub)
		log.Info("kitchen.ws", c.GetString("requestID"), "kitchen display disconnected")
	}
}

// readPump only services control frames; displays never send commands over
// the socket.
func readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
