package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/models"
)

func TestMemoryTransactionRollback(t *testing.T) {
	s := NewMemoryStore()
	team := s.PutTeam(models.Team{Name: "red", HintCurrency: 50, FreeHintsLeft: 1})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Tx) error {
		if _, err := tx.LockTeam(ctx, team.ID); err != nil {
			return err
		}
		require.NoError(t, tx.DebitTeam(ctx, team.ID, models.Payment{Method: models.PaidCurrency, Amount: 30}))
		require.NoError(t, tx.DebitTeam(ctx, team.ID, models.Payment{Method: models.PaidFreeHint}))
		require.NoError(t, tx.AppendAuditLog(ctx, &models.AuditLog{Action: "test", TargetID: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.HintCurrency)
	assert.Equal(t, 1, got.FreeHintsLeft)
	assert.Empty(t, s.AuditLogs())
}

func TestMemoryDebitTeamGuards(t *testing.T) {
	s := NewMemoryStore()
	team := s.PutTeam(models.Team{Name: "blue", HintCurrency: 20})
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Tx) error {
		return tx.DebitTeam(ctx, team.ID, models.Payment{Method: models.PaidCurrency, Amount: 30})
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientCurrency)

	err = s.Transaction(ctx, func(tx Tx) error {
		return tx.DebitTeam(ctx, team.ID, models.Payment{Method: models.PaidFreeHint})
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientCurrency)

	got, _ := s.GetTeam(ctx, team.ID)
	assert.Equal(t, int64(20), got.HintCurrency)
}

func TestMemoryLockTimeout(t *testing.T) {
	s := NewMemoryStore()
	s.LockTimeout = 20 * time.Millisecond
	team := s.PutTeam(models.Team{Name: "green"})
	ctx := context.Background()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Transaction(ctx, func(tx Tx) error {
			if _, err := tx.LockTeam(ctx, team.ID); err != nil {
				return err
			}
			close(locked)
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}()
	<-locked

	err := s.Transaction(ctx, func(tx Tx) error {
		_, err := tx.LockTeam(ctx, team.ID)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
	assert.True(t, apperr.Retryable(err))
	<-done

	err = s.Transaction(ctx, func(tx Tx) error {
		_, err := tx.LockTeam(ctx, team.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryLockIsReentrantWithinTransaction(t *testing.T) {
	s := NewMemoryStore()
	s.LockTimeout = 20 * time.Millisecond
	user := s.PutUser(models.User{Username: "alice"})
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Tx) error {
		if _, err := tx.LockUser(ctx, user.ID); err != nil {
			return err
		}
		_, err := tx.LockUser(ctx, user.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryResolveHintRequestConditional(t *testing.T) {
	s := NewMemoryStore()
	req := s.PutHintRequest(models.HintRequest{TeamID: 1, ChallengeID: 2, HintID: 3, Status: models.HintRequestRejected})
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Tx) error {
		r := &models.HintRequest{ID: req.ID, Status: models.HintRequestApproved}
		return tx.ResolveHintRequest(ctx, r, models.HintRequestPending)
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, _ := s.GetHintRequest(ctx, req.ID)
	assert.Equal(t, models.HintRequestRejected, got.Status)
}

func TestMemoryListHintRequests(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		teamID := uint(1 + i%2)
		s.PutHintRequest(models.HintRequest{
			TeamID: teamID, ChallengeID: 7, HintID: 1,
			Status: models.HintRequestPending, RequestedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	team := uint(1)
	got, err := s.ListHintRequests(context.Background(), HintRequestFilter{TeamID: &team, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].RequestedAt.After(got[1].RequestedAt))
	for _, r := range got {
		assert.Equal(t, team, r.TeamID)
	}

	stale, err := s.StalePendingRequests(context.Background(), base.Add(150*time.Second), nil, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 3)
}

func TestMemoryStalePendingRequestsCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 4; i++ {
		// two pairs share a timestamp so the id breaks the tie
		r := s.PutHintRequest(models.HintRequest{
			TeamID: 1, ChallengeID: 7, HintID: 1,
			Status: models.HintRequestPending, RequestedAt: base.Add(time.Duration(i/2) * time.Minute),
		})
		ids = append(ids, r.ID)
	}
	cutoff := base.Add(time.Hour)

	first, err := s.StalePendingRequests(ctx, cutoff, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, ids[:3], []uint{first[0].ID, first[1].ID, first[2].ID})

	rest, err := s.StalePendingRequests(ctx, cutoff, &first[2], 3)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[3], rest[0].ID)

	done, err := s.StalePendingRequests(ctx, cutoff, &rest[0], 3)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestMemoryAddUserBadgesIdempotent(t *testing.T) {
	s := NewMemoryStore()
	user := s.PutUser(models.User{Username: "bob"})
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Transaction(ctx, func(tx Tx) error {
			return tx.AddUserBadges(ctx, user.ID, []string{"first_solve", "speed_demon"}, at)
		}))
	}
	badges, err := s.UserBadges(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, badges, 2)
}

func TestUserAheadOrdering(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	s := NewMemoryStore()
	a := s.PutUser(models.User{Username: "a", XP: 100, LastSolveAt: &late})
	b := s.PutUser(models.User{Username: "b", XP: 100, LastSolveAt: &early})
	c := s.PutUser(models.User{Username: "c", XP: 100})
	d := s.PutUser(models.User{Username: "d", XP: 300, LastSolveAt: &late})
	s.PutUser(models.User{Username: "blocked", XP: 900, IsBlocked: true})

	standings, err := s.ListUserStandings(context.Background(), 10)
	require.NoError(t, err)
	var order []uint
	for _, st := range standings {
		order = append(order, st.UserID)
	}
	assert.Equal(t, []uint{d.ID, b.ID, a.ID, c.ID}, order)

	ahead, err := s.CountUsersAhead(context.Background(), standings[2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), ahead)
}
