package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"todosync/internal/ws"
)

type WSHandler struct {
	Hub    *ws.Hub
	Logger *zap.Logger
}

func (h *WSHandler) Register(r *gin.Engine) {
	r.GET("/ws", h.attach)
}

type wsCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// attach upgrades the request and registers the session under the
// caller's user id. The read loop only handles topic subscriptions and
// disconnect; all delivery flows through the hub.
func (h *WSHandler) attach(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		Error(c, http.StatusBadRequest, "missing user identity", nil)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws accept failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return
	}

	sess := h.Hub.Attach(userID, conn)
	defer h.Hub.Detach(sess)

	ctx := c.Request.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if cmd.Action == "subscribe" && cmd.Topic != "" {
			h.Hub.Subscribe(sess, cmd.Topic)
			h.ackSubscribe(ctx, conn, cmd.Topic)
		}
	}
}

func (h *WSHandler) ackSubscribe(ctx context.Context, conn *websocket.Conn, topic string) {
	payload, err := json.Marshal(gin.H{"subscribed": topic})
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
