package model

import "time"

// FocusSession tracks one open-to-close visit to the app.
type FocusSession struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID       string     `gorm:"uniqueIndex;size:36;not null" json:"sessionId"`
	UserID          string     `gorm:"index;size:191;not null" json:"-"`
	OpenedAt        *time.Time `json:"openedAt"`
	ClosedAt        *time.Time `json:"closedAt"`
	DurationSeconds int64      `gorm:"default:0" json:"durationSeconds"`
}

// QuestRecord is one completed focus battle.
type QuestRecord struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID          string     `gorm:"index;size:191;not null" json:"-"`
	QuestID         string     `gorm:"size:64;not null" json:"questId"`
	Name            string     `gorm:"size:191" json:"name"`
	Priority        string     `gorm:"size:32" json:"priority"`
	StartedAt       *time.Time `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
	DurationSeconds int64      `gorm:"default:0" json:"durationSeconds"`
}
