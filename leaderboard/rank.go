// Package leaderboard ranks users and teams. Rank and RankTeams are pure; Board
// adds storage, caching and the per-user views built on top of them.
package leaderboard

import (
	"sort"

	"github.com/cppla/heistctf/store"
)

// Entry is one ranked user. Ranks are 1-based and ordinal: tied users still
// get distinct consecutive ranks, ordered by who reached the score first.
type Entry struct {
	Rank int `json:"rank"`
	store.UserStanding
}

// TeamEntry is one ranked team.
type TeamEntry struct {
	Rank int `json:"rank"`
	store.TeamStanding
}

// Rank orders standings and keeps the first limit entries. A non-positive
// limit keeps all of them. The input slice is not modified.
func Rank(standings []store.UserStanding, limit int) []Entry {
	sorted := make([]store.UserStanding, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return store.UserAhead(sorted[i], sorted[j]) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]Entry, len(sorted))
	for i, st := range sorted {
		out[i] = Entry{Rank: i + 1, UserStanding: st}
	}
	return out
}

// RankTeams is Rank for the team scoreboard.
func RankTeams(standings []store.TeamStanding, limit int) []TeamEntry {
	sorted := make([]store.TeamStanding, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return store.TeamAhead(sorted[i], sorted[j]) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]TeamEntry, len(sorted))
	for i, st := range sorted {
		out[i] = TeamEntry{Rank: i + 1, TeamStanding: st}
	}
	return out
}
