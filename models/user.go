package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a platform participant. XP only grows; level is derived from XP and
// stored for leaderboard queries.
type User struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Username      string      `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Role          Role        `gorm:"size:16;not null;default:'player'" json:"role"`
	TeamID        *uint       `gorm:"index" json:"team_id"`
	XP            int64       `gorm:"not null;default:0;index" json:"xp"`
	Level         int         `gorm:"not null;default:1" json:"level"`
	CurrentStreak int         `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int         `gorm:"not null;default:0" json:"longest_streak"`
	LastSolveAt   *time.Time  `json:"last_solve_at"`
	IsBlocked     bool        `gorm:"not null;default:false" json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Badges        []UserBadge `gorm:"foreignKey:UserID" json:"badges,omitempty"`
}

// BeforeCreate fills the role and starting level when they were left empty.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RolePlayer
	}
	if u.Level == 0 {
		u.Level = 1
	}
	return nil
}

// UserBadge records one earned badge. Rows are never deleted.
type UserBadge struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_user_badge" json:"-"`
	BadgeID  string    `gorm:"size:64;not null;uniqueIndex:idx_user_badge" json:"badge_id"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// BadgeSet returns the badge ids of bs as a set.
func BadgeSet(bs []UserBadge) map[string]struct{} {
	set := make(map[string]struct{}, len(bs))
	for _, b := range bs {
		set[b.BadgeID] = struct{}{}
	}
	return set
}
