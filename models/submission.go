package models

import "time"

// Submission is an immutable record of one flag attempt.
type Submission struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index:idx_sub_user_correct,priority:1" json:"user_id"`
	TeamID        *uint     `gorm:"index" json:"team_id"`
	ChallengeID   uint      `gorm:"not null;index" json:"challenge_id"`
	Correct       bool      `gorm:"not null;index:idx_sub_user_correct,priority:2" json:"correct"`
	PointsAwarded int       `gorm:"not null;default:0" json:"points_awarded"`
	XPAwarded     int64     `gorm:"not null;default:0" json:"xp_awarded"`
	IsFirstBlood  bool      `gorm:"not null;default:false" json:"is_first_blood"`
	SolveSeconds  int       `gorm:"not null;default:0" json:"solve_seconds"`
	HintsUsed     int       `gorm:"not null;default:0" json:"hints_used"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

// SubmissionStats aggregates one user's correct submissions for badge rules
// and profile pages.
type SubmissionStats struct {
	CorrectSolves int
	FirstBloods   int
	SpeedSolves   int
	NoHintSolves  int
	TeamSolves    int
	// CategorySolved counts distinct solved challenges per category.
	CategorySolved map[string]int
	// CategoryTotals counts visible challenges per category.
	CategoryTotals map[string]int
}

// CompletedCategories lists categories where every visible challenge is solved.
func (s SubmissionStats) CompletedCategories() []string {
	var out []string
	for cat, total := range s.CategoryTotals {
		if cat == "" || total == 0 {
			continue
		}
		if s.CategorySolved[cat] >= total {
			out = append(out, cat)
		}
	}
	return out
}
