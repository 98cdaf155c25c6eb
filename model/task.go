package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskRecord stores one user task ("quest" in the UI) as an opaque JSON
// document. The client owns the shape; the server only keys it by the
// client-assigned task id and merges partial updates over it.
type TaskRecord struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    string         `gorm:"uniqueIndex:idx_user_task;size:191;not null" json:"userId"`
	TaskID    string         `gorm:"uniqueIndex:idx_user_task;size:64;not null" json:"taskId"`
	Data      datatypes.JSON `json:"data"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}
