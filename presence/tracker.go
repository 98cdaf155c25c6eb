package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weblab-class/pomo-dungeon/cache"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// OnlineSetKey is the cache set mirroring currently-online user ids.
	OnlineSetKey = "presence:online"
	// StatusChannel carries cross-instance status-change messages.
	StatusChannel = "presence:status"

	dbWriteTimeout = 5 * time.Second
)

// StatusChange is the user-status-change payload broadcast to clients.
type StatusChange struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// relayMessage is the pub/sub envelope for cross-instance fan-out.
// Origin lets an instance skip its own messages.
type relayMessage struct {
	Origin string `json:"origin"`
	StatusChange
}

// Tracker owns the in-memory presence mapping: which connections exist,
// and which user each announced connection belongs to. A user is online
// iff their connection set is non-empty; the User row and the cache set
// are best-effort mirrors for out-of-band readers.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]*Session            // connID → session
	users map[string]map[string]struct{} // userID → set of connIDs

	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	events   *events.Service
	metrics  *Metrics
	instance string
	logger   *zap.Logger

	unsubscribe func()
}

// NewTracker creates a Tracker and starts the cross-instance relay loop.
func NewTracker(db *gorm.DB, c cache.Cache, ps cache.PubSub, ev *events.Service, metrics *Metrics, logger *zap.Logger) *Tracker {
	t := &Tracker{
		conns:    make(map[string]*Session),
		users:    make(map[string]map[string]struct{}),
		db:       db,
		cache:    c,
		pubsub:   ps,
		events:   ev,
		metrics:  metrics,
		instance: uuid.NewString(),
		logger:   logger,
	}
	t.startRelayLoop()
	return t
}

// Register adds a freshly-upgraded connection to the registry.
func (t *Tracker) Register(s *Session) {
	t.mu.Lock()
	t.conns[s.ID] = s
	t.mu.Unlock()
	t.metrics.ConnOpened()
	t.logger.Info("socket connected", zap.String("conn_id", s.ID))
}

// Announce marks the given connection as belonging to userID and, if
// this is the user's first connection, flips them online everywhere:
// User row, cache mirror, local broadcast, cross-instance publish.
// The id is whatever the client claimed; there is no verification.
func (t *Tracker) Announce(ctx context.Context, s *Session, userID string) {
	normalized := model.NormalizeUserID(userID)
	if normalized == "" {
		return
	}

	t.mu.Lock()
	set, ok := t.users[normalized]
	if !ok {
		set = make(map[string]struct{})
		t.users[normalized] = set
	}
	set[s.ID] = struct{}{}
	t.mu.Unlock()
	s.SetUserID(normalized)

	now := time.Now()
	t.mirrorStatus(ctx, normalized, true, now)
	t.broadcastStatus(StatusChange{UserID: normalized, IsOnline: true, LastSeen: now})
	t.events.Log(normalized, events.TypeUserOnline, map[string]interface{}{"connId": s.ID})

	t.logger.Info("user online",
		zap.String("user_id", normalized),
		zap.String("conn_id", s.ID))
}

// Disconnect removes the connection. If its user has no connections
// left, the user goes offline: mirror updated, offline event broadcast
// exactly once. The owning user is found by scanning the mapping, which
// is fine at current scale.
func (t *Tracker) Disconnect(ctx context.Context, s *Session, reason string) {
	s.Close()
	t.metrics.ConnClosed(time.Since(s.ConnectedAt), reason)

	var offlineUser string
	t.mu.Lock()
	delete(t.conns, s.ID)
	for userID, set := range t.users {
		if _, ok := set[s.ID]; ok {
			delete(set, s.ID)
			if len(set) == 0 {
				delete(t.users, userID)
				offlineUser = userID
			}
			break
		}
	}
	t.mu.Unlock()

	t.logger.Info("socket disconnected",
		zap.String("conn_id", s.ID),
		zap.String("reason", reason))

	if offlineUser == "" {
		return
	}

	now := time.Now()
	t.mirrorStatus(ctx, offlineUser, false, now)
	t.broadcastStatus(StatusChange{UserID: offlineUser, IsOnline: false, LastSeen: now})
	t.events.Log(offlineUser, events.TypeUserOffline, map[string]interface{}{"connId": s.ID})

	t.logger.Info("user offline", zap.String("user_id", offlineUser))
}

// IsOnline reports whether a user has at least one open connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.users[model.NormalizeUserID(userID)]
	return ok && len(set) > 0
}

// OnlineUsers returns a snapshot of currently-online user ids.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.users))
	for id := range t.users {
		out = append(out, id)
	}
	return out
}

// ConnCount returns the number of open connections.
func (t *Tracker) ConnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Metrics returns the relay metrics collector.
func (t *Tracker) Metrics() *Metrics {
	return t.metrics
}

// Broadcast sends a raw pre-encoded packet to every open connection.
// Non-blocking per connection so a slow client cannot stall the relay.
func (t *Tracker) Broadcast(data []byte) {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.conns))
	for _, s := range t.conns {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.SendRaw(data)
	}
}

// CloseAll closes every open connection (shutdown path).
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.conns))
	for _, s := range t.conns {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

// mirrorStatus writes the best-effort presence mirrors: the User row
// and the cache online set. Failures are logged, never propagated; the
// in-memory mapping stays the source of truth.
func (t *Tracker) mirrorStatus(ctx context.Context, userID string, online bool, at time.Time) {
	dbCtx, cancel := context.WithTimeout(ctx, dbWriteTimeout)
	defer cancel()
	err := t.db.WithContext(dbCtx).Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": at,
		}).Error
	if err != nil {
		t.logger.Error("presence mirror write failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err))
	}

	if online {
		err = t.cache.SAdd(ctx, OnlineSetKey, userID)
	} else {
		err = t.cache.SRem(ctx, OnlineSetKey, userID)
	}
	if err != nil {
		t.logger.Warn("presence cache mirror failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// broadcastStatus fans a status change out to local connections and
// publishes it for other instances.
func (t *Tracker) broadcastStatus(sc StatusChange) {
	payload, _ := json.Marshal(sc)
	data, _ := json.Marshal(&Packet{Type: "user-status-change", Payload: payload})
	t.Broadcast(data)

	msg, _ := json.Marshal(relayMessage{Origin: t.instance, StatusChange: sc})
	if err := t.pubsub.Publish(context.Background(), StatusChannel, string(msg)); err != nil {
		t.logger.Warn("status publish failed", zap.Error(err))
	}
}

// startRelayLoop relays status changes published by other instances to
// this instance's connections. Messages tagged with our own instance id
// are skipped; they were already delivered locally.
func (t *Tracker) startRelayLoop() {
	ch, cancel, err := t.pubsub.Subscribe(context.Background(), StatusChannel)
	if err != nil {
		t.logger.Error("presence subscribe failed", zap.Error(err))
		return
	}
	t.unsubscribe = cancel

	go func() {
		for msg := range ch {
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				t.logger.Warn("malformed relay message", zap.Error(err))
				continue
			}
			if rm.Origin == t.instance {
				continue
			}
			payload, _ := json.Marshal(rm.StatusChange)
			data, _ := json.Marshal(&Packet{Type: "user-status-change", Payload: payload})
			t.Broadcast(data)
		}
	}()
}
