package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weblab-class/pomo-dungeon/model"
	"github.com/weblab-class/pomo-dungeon/testutil"
)

func TestLogFlushesInBatches(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, 20*time.Millisecond, testutil.Logger())
	t.Cleanup(func() { svc.Stop(nil) })

	svc.Log("alice@example.com", TypeFriendRequest, map[string]interface{}{"requestId": 1})
	svc.Log("bob@example.com", TypeUserOnline, nil)

	require.Eventually(t, func() bool {
		var count int64
		require.NoError(t, gdb.Model(&model.Event{}).Count(&count).Error)
		return count == 2
	}, 2*time.Second, 10*time.Millisecond)

	var ev model.Event
	require.NoError(t, gdb.Where("event_type = ?", TypeFriendRequest).First(&ev).Error)
	assert.Equal(t, "alice@example.com", ev.UserID)
	assert.JSONEq(t, `{"requestId":1}`, string(ev.Payload))
}

func TestStopDrainsPending(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, time.Hour, testutil.Logger())

	for i := 0; i < 10; i++ {
		svc.Log("alice@example.com", TypeQuestComplete, map[string]interface{}{"i": i})
	}
	svc.Stop(nil)

	var count int64
	require.NoError(t, gdb.Model(&model.Event{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)
}

func TestPruneKeepsRecentEvents(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, time.Hour, testutil.Logger())
	t.Cleanup(func() { svc.Stop(nil) })

	old := model.Event{UserID: "alice@example.com", EventType: TypeUserOffline}
	require.NoError(t, gdb.Create(&old).Error)
	require.NoError(t, gdb.Model(&model.Event{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)
	require.NoError(t, gdb.Create(&model.Event{
		UserID: "alice@example.com", EventType: TypeUserOnline,
	}).Error)

	svc.Prune(24 * time.Hour)

	var remaining []model.Event
	require.NoError(t, gdb.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, TypeUserOnline, remaining[0].EventType)
}
