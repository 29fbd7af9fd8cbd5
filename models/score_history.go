package models

import "time"

// ScoreHistory is the append-only ledger that Team.ScorePoints is rebuilt from.
type ScoreHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    *uint     `gorm:"index" json:"team_id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName keeps the singular table name used by the event schema.
func (ScoreHistory) TableName() string {
	return "score_history"
}
