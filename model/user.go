package model

import (
	"strings"
	"time"
)

// User is the identity anchor. UserID is the normalized form of the
// caller-supplied identifier (trimmed, lowercased email or subject) and
// is the lookup key everywhere else in the system.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    string `gorm:"uniqueIndex;size:191;not null" json:"userId"`
	Email     string `gorm:"size:191" json:"email"`
	Name      string `gorm:"size:128" json:"name"`
	Picture   string `gorm:"size:512" json:"picture"`
	// Username is the optional display handle. Uniqueness is enforced at
	// claim time, not by an index: most users never set one and the empty
	// string would collide.
	Username string `gorm:"index;size:20" json:"username"`

	IsOnline bool       `gorm:"default:false" json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`

	TotalSecondsOnSite   int64 `gorm:"default:0" json:"totalSecondsOnSite"`
	TotalQuestsCompleted int64 `gorm:"default:0" json:"totalQuestsCompleted"`
	TotalTimeWorkedMs    int64 `gorm:"default:0" json:"totalTimeWorkedMs"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// NormalizeUserID trims and lowercases a caller-supplied identifier.
func NormalizeUserID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// DisplayName resolves the best available display name: username, else
// profile name, else the raw identifier. First non-empty value wins.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	if u.Name != "" {
		return u.Name
	}
	return u.UserID
}
