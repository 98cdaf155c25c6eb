package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/apperror"
	"github.com/weblab-class/pomo-dungeon/events"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FriendHandler implements the friend-request lifecycle and friends
// list. Every mutation is a single conditional document operation, so
// concurrent duplicate calls race safely: the loser sees zero matched
// rows and reports not-found.
type FriendHandler struct {
	db     *gorm.DB
	events *events.Service
	logger *zap.Logger
}

// NewFriendHandler creates a FriendHandler.
func NewFriendHandler(db *gorm.DB, ev *events.Service, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{db: db, events: ev, logger: logger}
}

// SendRequest handles POST /api/friend-requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		UserID         string `json:"userId"`
		FriendUsername string `json:"friendUsername"`
	}
	_ = c.ShouldBindJSON(&req)

	requesterID := model.NormalizeUserID(req.UserID)
	friendUsername := strings.TrimSpace(req.FriendUsername)
	if requesterID == "" || friendUsername == "" {
		respondError(c, apperror.InvalidRequest("userId and friendUsername are required"))
		return
	}

	// Resolve the receiver: exact username first, then the lowercase
	// variant for clients that preserved the user's original casing.
	var receiver model.User
	err := h.db.Where("username = ?", friendUsername).First(&receiver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = h.db.Where("username = ?", strings.ToLower(friendUsername)).First(&receiver).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperror.NotFound("User not found"))
		return
	}
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	if requesterID == receiver.UserID {
		respondError(c, apperror.InvalidRequest("Cannot send friend request to yourself"))
		return
	}

	// At most one record per unordered pair, in either direction.
	var existing model.FriendRequest
	err = h.db.Where(
		"(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
		requesterID, receiver.UserID, receiver.UserID, requesterID,
	).First(&existing).Error
	if err == nil {
		if existing.Status == model.FriendStatusAccepted {
			respondError(c, apperror.Conflict("Already friends"))
		} else {
			respondError(c, apperror.Conflict("Friend request already pending"))
		}
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperror.Unavailable(err))
		return
	}

	fr := &model.FriendRequest{
		RequesterID: requesterID,
		ReceiverID:  receiver.UserID,
		Status:      model.FriendStatusPending,
	}
	if err := h.db.Create(fr).Error; err != nil {
		// Lost an insert race: the unique pair index caught a concurrent
		// duplicate the lookup above missed. Anything else is a real
		// store failure.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, apperror.Conflict("Friend request already pending"))
			return
		}
		respondError(c, apperror.Unavailable(err))
		return
	}

	h.events.Log(requesterID, events.TypeFriendRequest, gin.H{
		"receiverId": receiver.UserID,
		"requestId":  fr.ID,
	})
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"requestId": fr.ID,
		"message":   "Friend request sent",
	})
}

// receivedRequest is one entry in the pending-request listing.
type receivedRequest struct {
	ID                int64     `json:"id"`
	RequesterID       string    `json:"requesterId"`
	RequesterUsername string    `json:"requesterUsername"`
	ReceiverID        string    `json:"receiverId"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ListReceived handles GET /api/friend-requests/:userId.
func (h *FriendHandler) ListReceived(c *gin.Context) {
	userID := model.NormalizeUserID(c.Param("userId"))
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}

	var pending []model.FriendRequest
	err := h.db.Where("receiver_id = ? AND status = ?", userID, model.FriendStatusPending).
		Order("created_at DESC").
		Find(&pending).Error
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	result := make([]receivedRequest, 0, len(pending))
	for _, fr := range pending {
		// A deleted requester still shows up as the raw identifier.
		name := fr.RequesterID
		var requester model.User
		if err := h.db.Where("user_id = ?", fr.RequesterID).First(&requester).Error; err == nil {
			name = requester.DisplayName()
		}
		result = append(result, receivedRequest{
			ID:                fr.ID,
			RequesterID:       fr.RequesterID,
			RequesterUsername: name,
			ReceiverID:        fr.ReceiverID,
			Status:            fr.Status,
			CreatedAt:         fr.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"requests": result})
}

// Respond handles PATCH /api/friend-requests/:requestId.
// Wrong id, wrong receiver, and non-pending status collapse into one
// 404 so callers cannot probe other users' pending requests.
func (h *FriendHandler) Respond(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("requestId"), 10, 64)
	if err != nil {
		respondError(c, apperror.InvalidRequest("Invalid requestId format"))
		return
	}

	var req struct {
		UserID string `json:"userId"`
		Action string `json:"action"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	if userID == "" || req.Action == "" {
		respondError(c, apperror.InvalidRequest("userId and action are required"))
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		respondError(c, apperror.InvalidRequest(`Invalid action. Use "accept" or "reject"`))
		return
	}

	if req.Action == "accept" {
		res := h.db.Model(&model.FriendRequest{}).
			Where("id = ? AND receiver_id = ? AND status = ?", requestID, userID, model.FriendStatusPending).
			Update("status", model.FriendStatusAccepted)
		if res.Error != nil {
			respondError(c, apperror.Unavailable(res.Error))
			return
		}
		if res.RowsAffected == 0 {
			respondError(c, apperror.NotFound("Friend request not found or already processed"))
			return
		}
		h.events.Log(userID, events.TypeFriendAccept, gin.H{"requestId": requestID})
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Friend request accepted"})
		return
	}

	// Reject is a hard delete; the pair may re-request later.
	res := h.db.Where("id = ? AND receiver_id = ? AND status = ?", requestID, userID, model.FriendStatusPending).
		Delete(&model.FriendRequest{})
	if res.Error != nil {
		respondError(c, apperror.Unavailable(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, apperror.NotFound("Friend request not found or already processed"))
		return
	}
	h.events.Log(userID, events.TypeFriendReject, gin.H{"requestId": requestID})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Friend request rejected"})
}

// friendInfo is one entry in the friends listing. Presence is the User
// row snapshot, only as fresh as the relay's last mirror write.
type friendInfo struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// ListFriends handles GET /api/friends/:userId.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID := model.NormalizeUserID(c.Param("userId"))
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}

	var accepted []model.FriendRequest
	err := h.db.Where(
		"(requester_id = ? OR receiver_id = ?) AND status = ?",
		userID, userID, model.FriendStatusAccepted,
	).Find(&accepted).Error
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	otherIDs := make([]string, 0, len(accepted))
	for _, fr := range accepted {
		if fr.RequesterID == userID {
			otherIDs = append(otherIDs, fr.ReceiverID)
		} else {
			otherIDs = append(otherIDs, fr.RequesterID)
		}
	}

	usersByID := make(map[string]*model.User, len(otherIDs))
	if len(otherIDs) > 0 {
		var users []model.User
		if err := h.db.Where("user_id IN ?", otherIDs).Find(&users).Error; err != nil {
			respondError(c, apperror.Unavailable(err))
			return
		}
		for i := range users {
			usersByID[users[i].UserID] = &users[i]
		}
	}

	result := make([]friendInfo, 0, len(otherIDs))
	for _, id := range otherIDs {
		info := friendInfo{ID: id, Username: id}
		if u, ok := usersByID[id]; ok {
			info.Username = u.DisplayName()
			info.IsOnline = u.IsOnline
			info.LastSeen = u.LastSeen
		}
		result = append(result, info)
	}
	c.JSON(http.StatusOK, gin.H{"friends": result})
}

// Remove handles DELETE /api/friends.
func (h *FriendHandler) Remove(c *gin.Context) {
	var req struct {
		UserID   string `json:"userId"`
		FriendID string `json:"friendId"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	friendID := model.NormalizeUserID(req.FriendID)
	if userID == "" || friendID == "" {
		respondError(c, apperror.InvalidRequest("userId and friendId are required"))
		return
	}

	res := h.db.Where(
		"((requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)) AND status = ?",
		userID, friendID, friendID, userID, model.FriendStatusAccepted,
	).Delete(&model.FriendRequest{})
	if res.Error != nil {
		respondError(c, apperror.Unavailable(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, apperror.NotFound("Friendship not found"))
		return
	}

	h.events.Log(userID, events.TypeFriendRemove, gin.H{"friendId": friendID})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Friend removed successfully"})
}
