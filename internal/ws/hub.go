// Package ws holds the live push channel: a registry of connected
// sessions addressed per user (`user:{id}` queues) or per topic
// (`topic:{name}` broadcast).
package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// conn is the slice of *websocket.Conn the hub writes through. Tests
// substitute a recording fake.
type conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type Session struct {
	UserID string
	conn   conn
}

// Hub tracks live sessions by user id and topic membership. Fanout holds
// the read lock only while snapshotting targets, so a slow write never
// blocks registration.
type Hub struct {
	mu       sync.RWMutex
	byUser   map[string][]*Session
	byTopic  map[string]map[*Session]struct{}
	logger   *zap.Logger
	writeTTL time.Duration
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		byUser:   map[string][]*Session{},
		byTopic:  map[string]map[*Session]struct{}{},
		logger:   logger,
		writeTTL: 5 * time.Second,
	}
}

func (h *Hub) Attach(userID string, c conn) *Session {
	if h == nil || c == nil {
		return nil
	}
	sess := &Session{UserID: userID, conn: c}
	h.mu.Lock()
	h.byUser[userID] = append(h.byUser[userID], sess)
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("ws session attached", zap.String("user_id", userID))
	}
	return sess
}

func (h *Hub) Detach(sess *Session) {
	if h == nil || sess == nil {
		return
	}
	h.mu.Lock()
	sessions := h.byUser[sess.UserID]
	for i, s := range sessions {
		if s == sess {
			h.byUser[sess.UserID] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(h.byUser[sess.UserID]) == 0 {
		delete(h.byUser, sess.UserID)
	}
	for _, members := range h.byTopic {
		delete(members, sess)
	}
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("ws session detached", zap.String("user_id", sess.UserID))
	}
}

func (h *Hub) Subscribe(sess *Session, topic string) {
	if h == nil || sess == nil || topic == "" {
		return
	}
	h.mu.Lock()
	if h.byTopic[topic] == nil {
		h.byTopic[topic] = map[*Session]struct{}{}
	}
	h.byTopic[topic][sess] = struct{}{}
	h.mu.Unlock()
}

// SendToUser writes payload to every live session of one user. A user with
// no sessions is not an error; the message simply has nowhere to go.
func (h *Hub) SendToUser(ctx context.Context, userID string, payload []byte) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	targets := append([]*Session(nil), h.byUser[userID]...)
	h.mu.RUnlock()
	return h.write(ctx, targets, payload)
}

func (h *Hub) SendToTopic(ctx context.Context, topic string, payload []byte) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.byTopic[topic]))
	for sess := range h.byTopic[topic] {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()
	return h.write(ctx, targets, payload)
}

func (h *Hub) write(ctx context.Context, targets []*Session, payload []byte) error {
	var firstErr error
	for _, sess := range targets {
		wctx, cancel := context.WithTimeout(ctx, h.writeTTL)
		err := sess.conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
