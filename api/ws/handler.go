package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/weblab-class/pomo-dungeon/config"
	"github.com/weblab-class/pomo-dungeon/presence"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	tracker  *presence.Tracker
	router   *Router
	cfg      config.PresenceConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket Handler and registers the presence
// event handlers on the router.
// allowedOrigins controls which WebSocket origins are accepted; an
// empty slice permits all origins (development only).
func NewHandler(tracker *presence.Tracker, router *Router, cfg config.PresenceConfig, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		tracker: tracker,
		router:  router,
		cfg:     cfg,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}

	router.On("user-online", h.handleUserOnline)
	router.On("latency-pong", h.handleLatencyPong)
	return h
}

// ServeWS handles GET /ws. No identity is required to connect; the
// client announces one with user-online once it has it.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := presence.NewSession(conn, h.cfg.SendBuf, h.cfg.LatencyPingInterval, h.logger)
	h.tracker.Register(sess)
	h.readPump(sess)
}

// readPump reads messages from the WebSocket connection and dispatches
// them. It blocks until the connection closes, then runs the disconnect
// path exactly once.
func (h *Handler) readPump(s *presence.Session) {
	reason := "closed"
	defer func() {
		h.tracker.Disconnect(context.Background(), s, reason)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				reason = "transport error"
				h.logger.Warn("ws unexpected close",
					zap.String("conn_id", s.ID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message.
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

type userOnlinePayload struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleUserOnline(ctx context.Context, s *presence.Session, payload json.RawMessage) error {
	var p userOnlinePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.UserID == "" {
		return nil
	}
	h.tracker.Announce(ctx, s, p.UserID)
	return nil
}

type latencyPongPayload struct {
	TS int64 `json:"ts"`
}

func (h *Handler) handleLatencyPong(_ context.Context, _ *presence.Session, payload json.RawMessage) error {
	var p latencyPongPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.TS == 0 {
		return nil
	}
	rtt := time.Duration(time.Now().UnixMilli()-p.TS) * time.Millisecond
	h.tracker.Metrics().RecordLatency(rtt)
	return nil
}
