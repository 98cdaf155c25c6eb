package model

import (
	"time"

	"gorm.io/datatypes"
)

// Event records notable user and system actions (presence transitions,
// friend lifecycle, quest completions). Written asynchronously; pruned
// by the retention task.
type Event struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"index:idx_event_user;size:191;not null" json:"userId"`
	EventType string         `gorm:"index:idx_event_type;size:64;not null" json:"eventType"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"index:idx_event_created;autoCreateTime:milli" json:"createdAt"`
}
