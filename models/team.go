package models

import "time"

// Team owns the shared hint currency. HintCurrency and FreeHintsLeft change
// only inside the transaction that resolves a hint request; ScorePoints only
// together with a ScoreHistory append.
type Team struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"size:150;not null;uniqueIndex" json:"name"`
	CaptainID     *uint      `json:"captain_id"`
	HintCurrency  int64      `gorm:"not null;default:0" json:"hint_currency"`
	FreeHintsLeft int        `gorm:"not null;default:0" json:"free_hints_left"`
	ScorePoints   int64      `gorm:"not null;default:0;index" json:"score_points"`
	Solves        int        `gorm:"not null;default:0" json:"solves"`
	LastSolveAt   *time.Time `json:"last_solve_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
