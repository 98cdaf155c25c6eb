package rest

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weblab-class/pomo-dungeon/model"
	"github.com/weblab-class/pomo-dungeon/testutil"
	"gorm.io/gorm"
)

func newUserServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testutil.SetupTestDB(t)
	h := NewUserHandler(gdb, testutil.Logger())
	r := gin.New()
	r.POST("/api/users/upsert", h.Upsert)
	r.GET("/api/users/check-username", h.CheckUsername)
	r.POST("/api/users/username", h.ClaimUsername)
	r.GET("/api/users/summary/:userId", h.Summary)
	return r, gdb
}

func TestUpsertNormalizesAndRefreshes(t *testing.T) {
	r, gdb := newUserServer(t)

	w, out := doJSON(t, r, http.MethodPost, "/api/users/upsert", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "userId required", out["error"])

	// Email stands in for a missing userId, and both are normalized.
	w, out = doJSON(t, r, http.MethodPost, "/api/users/upsert",
		gin.H{"email": " Alice@Example.COM ", "name": "Alice A"})
	require.Equal(t, http.StatusOK, w.Code)
	user := out["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["userId"])
	assert.Equal(t, "Alice A", user["name"])

	// A second upsert updates in place rather than duplicating.
	w, out = doJSON(t, r, http.MethodPost, "/api/users/upsert",
		gin.H{"userId": "alice@example.com", "picture": "https://cdn/p.png"})
	require.Equal(t, http.StatusOK, w.Code)
	user = out["user"].(map[string]interface{})
	assert.Equal(t, "Alice A", user["name"])
	assert.Equal(t, "https://cdn/p.png", user["picture"])

	var count int64
	require.NoError(t, gdb.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCheckUsernameValidation(t *testing.T) {
	r, gdb := newUserServer(t)
	seedUser(t, gdb, "alice@example.com", "alice")

	cases := []struct {
		username string
		wantErr  string
	}{
		{"", "Username required"},
		{"ab", "Username must be at least 3 characters"},
		{"abcdefghijklmnopqrstu", "Username must be 20 characters or less"},
		{"has space", "Username can only contain letters, numbers, and underscores"},
		{"dash-ed", "Username can only contain letters, numbers, and underscores"},
	}
	for _, tc := range cases {
		w, out := doJSON(t, r, http.MethodGet,
			"/api/users/check-username?username="+url.QueryEscape(tc.username), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.username)
		assert.Equal(t, false, out["available"], tc.username)
		assert.Equal(t, tc.wantErr, out["error"], tc.username)
	}

	// Taken, case-insensitively.
	w, out := doJSON(t, r, http.MethodGet, "/api/users/check-username?username=ALICE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["available"])

	w, out = doJSON(t, r, http.MethodGet, "/api/users/check-username?username=bob_42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["available"])
}

func TestClaimUsername(t *testing.T) {
	r, gdb := newUserServer(t)
	seedUser(t, gdb, "alice@example.com", "alice")
	seedUser(t, gdb, "bob@example.com", "")

	// Taken by someone else.
	w, out := doJSON(t, r, http.MethodPost, "/api/users/username",
		gin.H{"userId": "bob@example.com", "username": "Alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Username already taken", out["error"])

	// Re-claiming your own name is idempotent.
	w, _ = doJSON(t, r, http.MethodPost, "/api/users/username",
		gin.H{"userId": "alice@example.com", "username": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Claim stores the lowercased form.
	w, out = doJSON(t, r, http.MethodPost, "/api/users/username",
		gin.H{"userId": "bob@example.com", "username": "Bob_42"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob_42", out["username"])

	var bob model.User
	require.NoError(t, gdb.Where("user_id = ?", "bob@example.com").First(&bob).Error)
	assert.Equal(t, "bob_42", bob.Username)

	// Unknown user.
	w, out = doJSON(t, r, http.MethodPost, "/api/users/username",
		gin.H{"userId": "ghost@example.com", "username": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", out["error"])
}

func TestUserSummary(t *testing.T) {
	r, gdb := newUserServer(t)
	require.NoError(t, gdb.Create(&model.User{
		UserID:               "alice@example.com",
		Email:                "alice@example.com",
		Username:             "alice",
		TotalQuestsCompleted: 3,
		TotalTimeWorkedMs:    90 * 60 * 1000, // 1h30m
	}).Error)

	w, out := doJSON(t, r, http.MethodGet, "/api/users/summary/Alice@Example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, float64(3), out["totalQuestsCompleted"])
	assert.Equal(t, "1h 30m", out["totalTimeWorkedFormatted"])

	w, out = doJSON(t, r, http.MethodGet, "/api/users/summary/ghost@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", out["error"])
}
