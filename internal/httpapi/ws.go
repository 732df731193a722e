// ws.go — websocket 事件推流，gorilla/websocket 作为传输层。
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsKeepalive = 30 * time.Second

// wsHandler 把连接升级为 websocket 并把总线事件以 JSON 逐条推送给客户端。
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if s.log != nil {
			s.log.Error("websocket upgrade failed", "err", err)
		}
		return
	}
	defer conn.Close()

	id, ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	ticker := time.NewTicker(wsKeepalive)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
