package rest

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/model"
	"github.com/weblab-class/pomo-dungeon/testutil"
	"gorm.io/gorm"
)

func newProgressServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testutil.SetupTestDB(t)
	ev := events.New(gdb, 50*time.Millisecond, testutil.Logger())
	t.Cleanup(func() { ev.Stop(nil) })

	h := NewProgressHandler(gdb, ev, testutil.Logger())
	r := gin.New()
	r.POST("/api/sessions/start", h.StartSession)
	r.POST("/api/sessions/end", h.EndSession)
	r.POST("/api/quests/complete", h.CompleteQuest)
	r.GET("/api/stats/:userId", h.Stats)
	return r, gdb
}

func TestSessionRoundTrip(t *testing.T) {
	r, gdb := newProgressServer(t)

	w, out := doJSON(t, r, http.MethodPost, "/api/sessions/start",
		gin.H{"userId": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := out["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	// Starting a session lazily creates the user.
	var user model.User
	require.NoError(t, gdb.Where("user_id = ?", "alice@example.com").First(&user).Error)

	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/end",
		gin.H{"userId": "alice@example.com", "sessionId": sessionID, "durationSeconds": 300})
	require.Equal(t, http.StatusOK, w.Code)

	var sess model.FocusSession
	require.NoError(t, gdb.Where("session_id = ?", sessionID).First(&sess).Error)
	assert.Equal(t, int64(300), sess.DurationSeconds)
	assert.NotNil(t, sess.ClosedAt)

	require.NoError(t, gdb.Where("user_id = ?", "alice@example.com").First(&user).Error)
	assert.Equal(t, int64(300), user.TotalSecondsOnSite)
}

func TestEndSessionBackfillsUnknownID(t *testing.T) {
	r, gdb := newProgressServer(t)
	seedUser(t, gdb, "alice@example.com", "alice")

	w, out := doJSON(t, r, http.MethodPost, "/api/sessions/end",
		gin.H{"userId": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "userId and sessionId required", out["error"])

	w, out = doJSON(t, r, http.MethodPost, "/api/sessions/end",
		gin.H{"userId": "ghost@example.com", "sessionId": "lost-session"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", out["error"])

	// The client lost the start ack but its duration still counts.
	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/end",
		gin.H{"userId": "alice@example.com", "sessionId": "lost-session", "durationSeconds": 120})
	require.Equal(t, http.StatusOK, w.Code)

	var sess model.FocusSession
	require.NoError(t, gdb.Where("session_id = ?", "lost-session").First(&sess).Error)
	assert.Equal(t, int64(120), sess.DurationSeconds)
}

func TestCompleteQuestUpdatesTotals(t *testing.T) {
	r, gdb := newProgressServer(t)

	w, out := doJSON(t, r, http.MethodPost, "/api/quests/complete",
		gin.H{"userId": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "userId and questId required", out["error"])

	// Worked time is its own field, not derived from the duration.
	for i := 0; i < 2; i++ {
		w, _ = doJSON(t, r, http.MethodPost, "/api/quests/complete", gin.H{
			"userId":          "alice@example.com",
			"questId":         "q1",
			"name":            "write essay",
			"priority":        "boss",
			"durationSeconds": 60,
			"timeSpentMs":     90000,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	var user model.User
	require.NoError(t, gdb.Where("user_id = ?", "alice@example.com").First(&user).Error)
	assert.Equal(t, int64(2), user.TotalQuestsCompleted)
	assert.Equal(t, int64(2*90000), user.TotalTimeWorkedMs)
}

func TestNegativeCountersAreClamped(t *testing.T) {
	r, gdb := newProgressServer(t)
	seedUser(t, gdb, "alice@example.com", "alice")

	w, _ := doJSON(t, r, http.MethodPost, "/api/sessions/end",
		gin.H{"userId": "alice@example.com", "sessionId": "s1", "durationSeconds": -500})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/quests/complete", gin.H{
		"userId": "alice@example.com", "questId": "q1",
		"durationSeconds": -60, "timeSpentMs": -90000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var user model.User
	require.NoError(t, gdb.Where("user_id = ?", "alice@example.com").First(&user).Error)
	assert.Equal(t, int64(0), user.TotalSecondsOnSite)
	assert.Equal(t, int64(0), user.TotalTimeWorkedMs)
	assert.Equal(t, int64(1), user.TotalQuestsCompleted)

	var sess model.FocusSession
	require.NoError(t, gdb.Where("session_id = ?", "s1").First(&sess).Error)
	assert.Equal(t, int64(0), sess.DurationSeconds)

	var quest model.QuestRecord
	require.NoError(t, gdb.Where("user_id = ?", "alice@example.com").First(&quest).Error)
	assert.Equal(t, int64(0), quest.DurationSeconds)
}

func TestStatsLazyCreate(t *testing.T) {
	r, gdb := newProgressServer(t)

	// Unknown user gets zeros, not a 404.
	w, out := doJSON(t, r, http.MethodGet, "/api/stats/fresh@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh@example.com", out["userId"])
	assert.Equal(t, float64(0), out["totalQuestsCompleted"])
	assert.Empty(t, out["quests"])

	var user model.User
	require.NoError(t, gdb.Where("user_id = ?", "fresh@example.com").First(&user).Error)
	assert.Equal(t, "fresh@example.com", user.Email)

	w, _ = doJSON(t, r, http.MethodPost, "/api/quests/complete", gin.H{
		"userId": "fresh@example.com", "questId": "q1", "durationSeconds": 60,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, out = doJSON(t, r, http.MethodGet, "/api/stats/fresh@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["totalQuestsCompleted"])
	assert.Len(t, out["quests"], 1)
}
