package ws

import (
	"context"
	"encoding/json"

	"github.com/weblab-class/pomo-dungeon/presence"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, session *presence.Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes and invokes the appropriate handler.
// Handlers run on the connection's read loop, so events from one
// connection are processed in arrival order.
func (r *Router) Dispatch(s *presence.Session, raw []byte) {
	var pkt presence.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("conn_id", s.ID),
			zap.Error(err))
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("conn_id", s.ID))
		return
	}

	if err := fn(context.Background(), s, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.String("conn_id", s.ID),
			zap.Error(err))
	}
}
