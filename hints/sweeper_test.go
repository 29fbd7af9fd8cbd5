package hints

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
)

func TestSweepAutoApprovesAfterThreshold(t *testing.T) {
	f := newFixture(t, 50, 0)
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 90*time.Second, 10)
	t0 := f.clock.Now()
	req := f.request(t, f.paid)

	f.clock.Advance(60 * time.Second)
	report, err := sweeper.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	f.clock.Advance(31 * time.Second)
	report, err = sweeper.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Approved)
	assert.NotEmpty(t, report.RunID)

	stored, err := f.store.GetHintRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HintRequestAutoApproved, stored.Status)
	assert.Nil(t, stored.ApprovedBy)
	require.NotNil(t, stored.AutoApprovedAt)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.AutoApprovedAt.Equal(t0.Add(91*time.Second)))
	assert.True(t, stored.ResolvedAt.Equal(*stored.AutoApprovedAt))
	assert.Equal(t, models.PaidCurrency, stored.PaidWith)
	assert.Equal(t, int64(20), f.teamRow(t).HintCurrency)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditHintAutoApproved, logs[0].Action)
	assert.Nil(t, logs[0].ActorID)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t, 100, 0)
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 90*time.Second, 10)
	f.request(t, f.paid)
	f.request(t, f.paid)
	f.clock.Advance(2 * time.Minute)

	first, err := sweeper.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Approved)

	second, err := sweeper.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Scanned)
	assert.Zero(t, second.Approved)
	assert.Equal(t, int64(40), f.teamRow(t).HintCurrency)
	assert.Len(t, f.store.AuditLogs(), 2)
}

func TestSweepClassifiesOutcomes(t *testing.T) {
	f := newFixture(t, 40, 0)
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 90*time.Second, 10)

	affordable := f.request(t, f.paid)
	f.clock.Advance(time.Second)
	unaffordable := f.request(t, f.paid)
	f.clock.Advance(time.Second)
	orphan := f.store.PutHintRequest(models.HintRequest{
		TeamID: f.team.ID, ChallengeID: f.challenge.ID, HintID: 9999,
		Status: models.HintRequestPending, RequestedAt: f.clock.Now(), PaidWith: models.PaidNothing,
	})
	f.clock.Advance(2 * time.Minute)

	report, err := sweeper.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Approved)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, 1, report.Failed)

	for id, want := range map[uint]models.HintRequestStatus{
		affordable.ID:   models.HintRequestAutoApproved,
		unaffordable.ID: models.HintRequestPending,
		orphan.ID:       models.HintRequestPending,
	} {
		got, err := f.store.GetHintRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "request %d", id)
	}
	assert.Equal(t, int64(10), f.teamRow(t).HintCurrency)
}

func TestSweepDefersLockedTeam(t *testing.T) {
	f := newFixture(t, 50, 0)
	f.store.LockTimeout = 50 * time.Millisecond
	ctx := context.Background()
	req := f.request(t, f.paid)
	f.clock.Advance(2 * time.Minute)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.Transaction(ctx, func(tx store.Tx) error {
			if _, err := tx.LockTeam(ctx, f.team.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	report, err := NewSweeper(f.svc, 90*time.Second, 10).RunSweepOnce(ctx)
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deferred)

	stored, _ := f.store.GetHintRequest(ctx, req.ID)
	assert.Equal(t, models.HintRequestPending, stored.Status)

	report, err = NewSweeper(f.svc, 90*time.Second, 10).RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Approved)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	f := newFixture(t, 1000, 0)
	for i := 0; i < 5; i++ {
		f.request(t, f.paid)
		f.clock.Advance(time.Second)
	}
	f.clock.Advance(2 * time.Minute)

	report, err := NewSweeper(f.svc, 90*time.Second, 2).RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Approved)
}

func TestSweepReachesRequestsBehindDeferredOnes(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()
	f.rival.HintCurrency = 1000
	f.store.PutTeam(f.rival)

	broke := []*models.HintRequest{f.request(t, f.paid), f.request(t, f.paid), f.request(t, f.paid)}
	f.clock.Advance(time.Second)
	funded, err := f.svc.Create(ctx, CreateInput{RequesterID: f.outsider.ID, ChallengeID: f.challenge.ID, HintID: f.paid.ID})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	sweeper := NewSweeper(f.svc, 90*time.Second, 2)
	approved := 0
	for i := 0; i < 3; i++ {
		report, err := sweeper.RunSweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Scanned, "sweep %d", i)
		approved += report.Approved
	}
	assert.Equal(t, 1, approved)

	stored, err := f.store.GetHintRequest(ctx, funded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HintRequestAutoApproved, stored.Status)
	for _, r := range broke {
		got, err := f.store.GetHintRequest(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HintRequestPending, got.Status)
	}
	assert.Equal(t, int64(970), f.rivalRow(t).HintCurrency)
}
