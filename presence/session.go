package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultSendBuf  = 256
	writeDeadline   = 10 * time.Second
	readDeadlineDur = 60 * time.Second
	wsPingInterval  = 30 * time.Second // transport-level WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one open relay connection. A connection carries no
// identity until the client announces one with user-online; the claim
// is not verified.
type Session struct {
	ID          string
	Conn        *websocket.Conn
	SendChan    chan []byte
	Done        chan struct{}
	ConnectedAt time.Time

	mu     sync.Mutex
	userID string // normalized id claimed via user-online, empty until then

	pingInterval time.Duration
	logger       *zap.Logger
}

// NewSession creates a Session with its write goroutine started.
// pingInterval controls the application-level latency probe.
func NewSession(conn *websocket.Conn, sendBuf int, pingInterval time.Duration, logger *zap.Logger) *Session {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	if pingInterval <= 0 {
		pingInterval = 5 * time.Second
	}
	s := &Session{
		ID:           uuid.NewString(),
		Conn:         conn,
		SendChan:     make(chan []byte, sendBuf),
		Done:         make(chan struct{}),
		ConnectedAt:  time.Now(),
		pingInterval: pingInterval,
		logger:       logger,
	}
	go s.writePump()
	return s
}

type latencyPingPayload struct {
	TS int64 `json:"ts"`
}

func latencyPingPacket() []byte {
	payload, _ := json.Marshal(latencyPingPayload{TS: time.Now().UnixMilli()})
	data, _ := json.Marshal(&Packet{Type: "latency-ping", Payload: payload})
	return data
}

// writePump drains SendChan and writes to the WebSocket connection.
// It also sends the periodic latency probe (one immediately so a sample
// arrives quickly) and transport-level pings to detect dead connections.
func (s *Session) writePump() {
	probe := time.NewTicker(s.pingInterval)
	defer probe.Stop()
	wsPing := time.NewTicker(wsPingInterval)
	defer wsPing.Stop()
	defer s.Conn.Close()

	s.write(latencyPingPacket())

	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			if err := s.write(data); err != nil {
				s.logger.Warn("ws write error",
					zap.String("conn_id", s.ID),
					zap.Error(err))
				return
			}
		case <-probe.C:
			if err := s.write(latencyPingPacket()); err != nil {
				return
			}
		case <-wsPing.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) write(data []byte) error {
	_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (s *Session) Send(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.String("conn_id", s.ID))
		}
	}
}

// Close signals the writePump to shut down.
func (s *Session) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetUserID records the identity this connection announced.
func (s *Session) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// UserID returns the identity this connection announced, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// SetReadDeadline resets the WebSocket read deadline.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineDur))
}
