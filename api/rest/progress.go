package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/weblab-class/pomo-dungeon/apperror"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProgressHandler records focus sessions and completed quests, and
// serves the per-user stats rollup.
type ProgressHandler struct {
	db     *gorm.DB
	events *events.Service
	logger *zap.Logger
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(db *gorm.DB, ev *events.Service, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{db: db, events: ev, logger: logger}
}

// StartSession handles POST /api/sessions/start.
func (h *ProgressHandler) StartSession(c *gin.Context) {
	var req struct {
		UserID   string `json:"userId"`
		OpenedAt *int64 `json:"openedAt"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}
	if err := h.ensureUser(userID); err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	opened := time.Now()
	if req.OpenedAt != nil {
		opened = time.UnixMilli(*req.OpenedAt)
	}
	sess := model.FocusSession{
		SessionID: uuid.NewString(),
		UserID:    userID,
		OpenedAt:  &opened,
	}
	if err := h.db.Create(&sess).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.SessionID})
}

// EndSession handles POST /api/sessions/end. Unknown session ids are
// backfilled rather than rejected: the client may have lost the start
// ack but still holds real duration data.
func (h *ProgressHandler) EndSession(c *gin.Context) {
	var req struct {
		UserID          string `json:"userId"`
		SessionID       string `json:"sessionId"`
		ClosedAt        *int64 `json:"closedAt"`
		DurationSeconds int64  `json:"durationSeconds"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" || req.SessionID == "" {
		respondError(c, apperror.InvalidRequest("userId and sessionId required"))
		return
	}

	var user model.User
	err := h.db.Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperror.NotFound("User not found"))
		return
	}
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	closed := time.Now()
	if req.ClosedAt != nil {
		closed = time.UnixMilli(*req.ClosedAt)
	}
	duration := clampNonNegative(req.DurationSeconds)

	res := h.db.Model(&model.FocusSession{}).
		Where("session_id = ? AND user_id = ?", req.SessionID, userID).
		Updates(map[string]interface{}{
			"closed_at":        closed,
			"duration_seconds": duration,
		})
	if res.Error != nil {
		respondError(c, apperror.Unavailable(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		sess := model.FocusSession{
			SessionID:       req.SessionID,
			UserID:          userID,
			ClosedAt:        &closed,
			DurationSeconds: duration,
		}
		if err := h.db.Create(&sess).Error; err != nil {
			respondError(c, apperror.Unavailable(err))
			return
		}
	}

	err = h.db.Model(&model.User{}).Where("user_id = ?", userID).
		Update("total_seconds_on_site", gorm.Expr("total_seconds_on_site + ?", duration)).Error
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CompleteQuest handles POST /api/quests/complete.
func (h *ProgressHandler) CompleteQuest(c *gin.Context) {
	var req struct {
		UserID          string `json:"userId"`
		QuestID         string `json:"questId"`
		Name            string `json:"name"`
		Priority        string `json:"priority"`
		StartedAt       *int64 `json:"startedAt"`
		FinishedAt      *int64 `json:"finishedAt"`
		DurationSeconds int64  `json:"durationSeconds"`
		TimeSpentMs     int64  `json:"timeSpentMs"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" || req.QuestID == "" {
		respondError(c, apperror.InvalidRequest("userId and questId required"))
		return
	}
	if err := h.ensureUser(userID); err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	finished := time.Now()
	if req.FinishedAt != nil {
		finished = time.UnixMilli(*req.FinishedAt)
	}
	duration := clampNonNegative(req.DurationSeconds)
	quest := model.QuestRecord{
		UserID:          userID,
		QuestID:         req.QuestID,
		Name:            req.Name,
		Priority:        req.Priority,
		FinishedAt:      &finished,
		DurationSeconds: duration,
	}
	if req.StartedAt != nil {
		started := time.UnixMilli(*req.StartedAt)
		quest.StartedAt = &started
	}
	if err := h.db.Create(&quest).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	// Worked time is reported separately from the quest duration; the
	// timer may have been paused or run across multiple sittings.
	timeSpent := clampNonNegative(req.TimeSpentMs)
	err := h.db.Model(&model.User{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"total_quests_completed": gorm.Expr("total_quests_completed + 1"),
			"total_time_worked_ms":   gorm.Expr("total_time_worked_ms + ?", timeSpent),
		}).Error
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	h.events.Log(userID, events.TypeQuestComplete, gin.H{
		"questId":         req.QuestID,
		"durationSeconds": duration,
		"timeSpentMs":     timeSpent,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats handles GET /api/stats/:userId. The user row is created lazily
// so a brand-new client sees zeros instead of a 404.
func (h *ProgressHandler) Stats(c *gin.Context) {
	userID := model.NormalizeUserID(c.Param("userId"))
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}
	if err := h.ensureUser(userID); err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	var user model.User
	if err := h.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	var quests []model.QuestRecord
	if err := h.db.Where("user_id = ?", userID).Order("id DESC").Find(&quests).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	var sessions []model.FocusSession
	if err := h.db.Where("user_id = ?", userID).Order("id DESC").Find(&sessions).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":               user.UserID,
		"totalSecondsOnSite":   user.TotalSecondsOnSite,
		"totalHoursOnSite":     float64(user.TotalSecondsOnSite) / 3600,
		"totalQuestsCompleted": user.TotalQuestsCompleted,
		"totalTimeWorkedMs":    user.TotalTimeWorkedMs,
		"quests":               quests,
		"sessions":             sessions,
	})
}

// clampNonNegative guards the additive counters against client-supplied
// negative values.
func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// ensureUser creates the user row if it does not exist yet. Progress
// endpoints can legitimately fire before the profile upsert.
func (h *ProgressHandler) ensureUser(userID string) error {
	return h.db.Where(model.User{UserID: userID}).
		Attrs(model.User{Email: userID}).
		FirstOrCreate(&model.User{}).Error
}
