package rest

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/apperror"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// UserHandler implements account upsert and the username claim flow.
type UserHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(db *gorm.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, logger: logger}
}

// Upsert handles POST /api/users/upsert. The client sends whatever
// profile it has; the row is created on first sight and refreshed after.
func (h *UserHandler) Upsert(c *gin.Context) {
	var req struct {
		UserID  string `json:"userId"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" {
		userID = model.NormalizeUserID(req.Email)
	}
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = userID
	}

	var user model.User
	err := h.db.Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = model.User{UserID: userID, Email: email, Name: req.Name, Picture: req.Picture}
		if err := h.db.Create(&user).Error; err != nil {
			respondError(c, apperror.Unavailable(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": userResponse(&user)})
		return
	}
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	user.Email = email
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Picture != "" {
		user.Picture = req.Picture
	}
	if err := h.db.Save(&user).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userResponse(&user)})
}

// validateUsername normalizes and checks a candidate username. It
// returns the cleaned value or the client-facing validation message.
func validateUsername(raw string) (string, string) {
	username := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case username == "":
		return "", "Username required"
	case len(username) < 3:
		return "", "Username must be at least 3 characters"
	case len(username) > 20:
		return "", "Username must be 20 characters or less"
	case !usernamePattern.MatchString(username):
		return "", "Username can only contain letters, numbers, and underscores"
	}
	return username, ""
}

// CheckUsername handles GET /api/users/check-username?username=x.
func (h *UserHandler) CheckUsername(c *gin.Context) {
	username, msg := validateUsername(c.Query("username"))
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"available": false, "error": msg})
		return
	}

	var count int64
	if err := h.db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": count == 0})
}

// ClaimUsername handles POST /api/users/username. Uniqueness is
// enforced here rather than by a DB constraint because unset usernames
// are empty strings and would collide under a unique index.
func (h *UserHandler) ClaimUsername(c *gin.Context) {
	var req struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}
	username, msg := validateUsername(req.Username)
	if msg != "" {
		respondError(c, apperror.InvalidRequest(msg))
		return
	}

	var count int64
	err := h.db.Model(&model.User{}).
		Where("username = ? AND user_id <> ?", username, userID).
		Count(&count).Error
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	}

	res := h.db.Model(&model.User{}).Where("user_id = ?", userID).Update("username", username)
	if res.Error != nil {
		respondError(c, apperror.Unavailable(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, apperror.NotFound("User not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "username": username})
}

// Summary handles GET /api/users/summary/:userId.
func (h *UserHandler) Summary(c *gin.Context) {
	userID := model.NormalizeUserID(c.Param("userId"))
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
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

	totalMinutes := user.TotalTimeWorkedMs / 1000 / 60
	c.JSON(http.StatusOK, gin.H{
		"userId":                   user.UserID,
		"username":                 user.Username,
		"name":                     user.Name,
		"picture":                  user.Picture,
		"totalQuestsCompleted":     user.TotalQuestsCompleted,
		"totalTimeWorkedMs":        user.TotalTimeWorkedMs,
		"totalTimeWorkedFormatted": fmt.Sprintf("%dh %dm", totalMinutes/60, totalMinutes%60),
		"isOnline":                 user.IsOnline,
		"lastSeen":                 user.LastSeen,
	})
}

func userResponse(u *model.User) gin.H {
	return gin.H{
		"userId":   u.UserID,
		"email":    u.Email,
		"name":     u.Name,
		"picture":  u.Picture,
		"username": u.Username,
		"isOnline": u.IsOnline,
		"lastSeen": u.LastSeen,
	}
}
