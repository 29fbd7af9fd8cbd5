package scoring

import (
	"sort"

	"github.com/cppla/heistctf/models"
)

// Badge ids.
const (
	BadgeFirstSolve     = "first_solve"
	BadgeSpeedDemon     = "speed_demon"
	BadgeStreakMaster   = "streak_master"
	BadgeTeamPlayer     = "team_player"
	BadgePerfectionist  = "perfectionist"
	BadgeMarathonRunner = "marathon_runner"
	BadgeCategoryMaster = "category_master"
)

// Badge is a catalogue entry shown to players.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var badgeCatalogue = []Badge{
	{BadgeFirstSolve, "Pioneer", "First to solve any challenge", "🏆"},
	{BadgeSpeedDemon, "Speed Demon", "Solve challenges in under 5 minutes", "⚡"},
	{BadgeStreakMaster, "Streak Master", "Maintain a 7-day solving streak", "🔥"},
	{BadgeTeamPlayer, "Team Player", "Help your team solve 10 challenges", "🤝"},
	{BadgePerfectionist, "Perfectionist", "Solve 10 challenges without hints", "💎"},
	{BadgeMarathonRunner, "Marathon Runner", "Solve 50 challenges", "🏃"},
	{BadgeCategoryMaster, "Category Master", "Solve every challenge in a category", "👑"},
}

// BadgeState is everything the badge predicates look at.
type BadgeState struct {
	Owned         map[string]struct{}
	CurrentStreak int
	Stats         models.SubmissionStats
}

// Badges returns the badge catalogue in display order.
func (e *Engine) Badges() []Badge {
	out := make([]Badge, len(badgeCatalogue))
	copy(out, badgeCatalogue)
	return out
}

func (e *Engine) badgeEarned(id string, st BadgeState) bool {
	c := e.cfg
	switch id {
	case BadgeFirstSolve:
		return st.Stats.FirstBloods >= 1
	case BadgeSpeedDemon:
		return st.Stats.SpeedSolves >= c.SpeedDemonSolves
	case BadgeStreakMaster:
		return st.CurrentStreak >= c.StreakMasterDays
	case BadgeTeamPlayer:
		return st.Stats.TeamSolves >= c.TeamPlayerSolves
	case BadgePerfectionist:
		return st.Stats.NoHintSolves >= c.PerfectionistSolves
	case BadgeMarathonRunner:
		return st.Stats.CorrectSolves >= c.MarathonSolves
	case BadgeCategoryMaster:
		return len(st.Stats.CompletedCategories()) > 0
	}
	return false
}

// CheckBadges returns the badges st newly satisfies, sorted. Owned badges are
// never returned, so applying the result twice awards nothing the second time.
func (e *Engine) CheckBadges(st BadgeState) []string {
	var out []string
	for _, b := range badgeCatalogue {
		if _, owned := st.Owned[b.ID]; owned {
			continue
		}
		if e.badgeEarned(b.ID, st) {
			out = append(out, b.ID)
		}
	}
	sort.Strings(out)
	return out
}
