package model

import "time"

// Friend request lifecycle: pending → accepted, or deleted on reject /
// friend removal. There is no rejected terminal state; a rejected pair
// may re-request later.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)

// FriendRequest is a directed relationship record between two users.
// The composite unique index on the ordered pair, together with the
// bidirectional lookup before insert, keeps at most one record per
// unordered pair.
type FriendRequest struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID string    `gorm:"uniqueIndex:idx_friend_pair;index:idx_requester_status;size:191;not null" json:"requesterId"`
	ReceiverID  string    `gorm:"uniqueIndex:idx_friend_pair;index:idx_receiver_status;size:191;not null" json:"receiverId"`
	Status      string    `gorm:"index:idx_receiver_status;index:idx_requester_status;size:16;default:'pending'" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
