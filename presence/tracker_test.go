package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/model"
	"github.com/weblab-class/pomo-dungeon/testutil"
	"go.uber.org/zap"
)

// testSession builds a Session without a transport. The write pump is
// not started, so packets accumulate in SendChan for inspection.
func testSession() *Session {
	return &Session{
		ID:          uuid.NewString(),
		SendChan:    make(chan []byte, 16),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		logger:      zap.NewNop(),
	}
}

func newTestTracker(t *testing.T) (*Tracker, func(userID string) *model.User) {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	ev := events.New(gdb, 50*time.Millisecond, testutil.Logger())
	t.Cleanup(func() { ev.Stop(nil) })

	tr := NewTracker(gdb, c, ps, ev, NewMetrics(0, 0), testutil.Logger())
	t.Cleanup(tr.CloseAll)

	require.NoError(t, gdb.Create(&model.User{
		UserID: "alice@example.com", Email: "alice@example.com",
	}).Error)

	loadUser := func(userID string) *model.User {
		var u model.User
		require.NoError(t, gdb.Where("user_id = ?", userID).First(&u).Error)
		return &u
	}
	return tr, loadUser
}

func TestUserStaysOnlineUntilLastConnCloses(t *testing.T) {
	tr, loadUser := newTestTracker(t)
	ctx := context.Background()

	s1 := testSession()
	s2 := testSession()
	tr.Register(s1)
	tr.Register(s2)
	assert.Equal(t, 2, tr.ConnCount())

	// Both tabs announce the same identity, unnormalized.
	tr.Announce(ctx, s1, " Alice@Example.com ")
	tr.Announce(ctx, s2, "alice@example.com")
	assert.True(t, tr.IsOnline("alice@example.com"))
	assert.Equal(t, []string{"alice@example.com"}, tr.OnlineUsers())
	assert.True(t, loadUser("alice@example.com").IsOnline)

	// Closing one tab keeps the user online.
	tr.Disconnect(ctx, s1, "closed")
	assert.True(t, tr.IsOnline("alice@example.com"))
	assert.True(t, loadUser("alice@example.com").IsOnline)

	// Closing the last tab flips them offline with a lastSeen stamp.
	tr.Disconnect(ctx, s2, "closed")
	assert.False(t, tr.IsOnline("alice@example.com"))
	assert.Empty(t, tr.OnlineUsers())
	u := loadUser("alice@example.com")
	assert.False(t, u.IsOnline)
	assert.NotNil(t, u.LastSeen)
	assert.Equal(t, 0, tr.ConnCount())
}

func TestDisconnectBeforeAnnounceIsSilent(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s := testSession()
	tr.Register(s)
	tr.Disconnect(ctx, s, "closed")

	assert.Empty(t, tr.OnlineUsers())
	assert.Equal(t, int64(1), tr.Metrics().Snapshot().DisconnectsTotal)
}

func TestAnnounceWithUnknownUserStillTracks(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	// Presence claims are not verified against the user table.
	s := testSession()
	tr.Register(s)
	tr.Announce(ctx, s, "stranger@example.com")
	assert.True(t, tr.IsOnline("stranger@example.com"))
	assert.Equal(t, "stranger@example.com", s.UserID())

	// Empty claims are ignored.
	s2 := testSession()
	tr.Register(s2)
	tr.Announce(ctx, s2, "   ")
	assert.Len(t, tr.OnlineUsers(), 1)
}

func readStatusChange(t *testing.T, s *Session) StatusChange {
	t.Helper()
	select {
	case data := <-s.SendChan:
		var pkt Packet
		require.NoError(t, json.Unmarshal(data, &pkt))
		require.Equal(t, "user-status-change", pkt.Type)
		var sc StatusChange
		require.NoError(t, json.Unmarshal(pkt.Payload, &sc))
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("no status change received")
		return StatusChange{}
	}
}

func TestStatusChangeBroadcastToAllConnections(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	watcher := testSession()
	tr.Register(watcher)

	s := testSession()
	tr.Register(s)
	tr.Announce(ctx, s, "alice@example.com")

	// The watcher never announced an identity but still hears about alice.
	sc := readStatusChange(t, watcher)
	assert.Equal(t, "alice@example.com", sc.UserID)
	assert.True(t, sc.IsOnline)

	// The announcing connection hears its own change too.
	sc = readStatusChange(t, s)
	assert.Equal(t, "alice@example.com", sc.UserID)

	tr.Disconnect(ctx, s, "closed")
	sc = readStatusChange(t, watcher)
	assert.Equal(t, "alice@example.com", sc.UserID)
	assert.False(t, sc.IsOnline)
}

func TestRelayDeliversRemoteStatusChanges(t *testing.T) {
	tr, _ := newTestTracker(t)

	watcher := testSession()
	tr.Register(watcher)

	// A message published by another instance reaches local connections.
	remote := relayMessage{
		Origin: "some-other-instance",
		StatusChange: StatusChange{
			UserID:   "bob@example.com",
			IsOnline: true,
			LastSeen: time.Now(),
		},
	}
	msg, err := json.Marshal(remote)
	require.NoError(t, err)
	require.NoError(t, tr.pubsub.Publish(context.Background(), StatusChannel, string(msg)))

	sc := readStatusChange(t, watcher)
	assert.Equal(t, "bob@example.com", sc.UserID)
	assert.True(t, sc.IsOnline)
}
