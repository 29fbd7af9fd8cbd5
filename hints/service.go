// Package hints runs the hint purchase workflow: teams request a hint, then
// exactly one of a captain, an admin or the auto-approval sweeper resolves the
// request and pays for it in the same transaction.
package hints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/catalog"
	"github.com/cppla/heistctf/ledger"
	"github.com/cppla/heistctf/metrics"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

// MaxNoteRunes caps the free-text note attached to a request.
const MaxNoteRunes = 500

// CreateInput is a team member's hint purchase request.
type CreateInput struct {
	RequesterID uint   `json:"-"`
	ChallengeID uint   `json:"challenge_id" binding:"required"`
	HintID      uint   `json:"hint_id" binding:"required"`
	Note        string `json:"note"`
}

// View is a request as shown to its team. Content is only filled in once the
// request has been approved.
type View struct {
	models.HintRequest
	Content string `json:"content,omitempty"`
}

// Service implements create, approve, reject and the read paths.
type Service struct {
	store   store.Store
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service.
func NewService(s store.Store, cat *catalog.Catalog, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{store: s, catalog: cat, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create records a pending request for the requester's team. No currency is
// touched until the request is approved.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.HintRequest, error) {
	user, err := s.store.GetUser(ctx, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, fmt.Errorf("%w: user %d is blocked", apperr.ErrPermissionDenied, user.ID)
	}
	if user.TeamID == nil {
		return nil, fmt.Errorf("%w: user %d is not in a team", apperr.ErrPermissionDenied, user.ID)
	}
	if _, err := s.catalog.Lookup(ctx, in.HintID, in.ChallengeID); err != nil {
		return nil, err
	}

	req := &models.HintRequest{
		TeamID:      *user.TeamID,
		ChallengeID: in.ChallengeID,
		HintID:      in.HintID,
		RequestedBy: user.ID,
		Status:      models.HintRequestPending,
		RequestedAt: s.now().UTC(),
		Note:        utils.SanitizeNote(in.Note, MaxNoteRunes),
		PaidWith:    models.PaidNothing,
	}
	if err := s.store.CreateHintRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("hint request created",
		zap.Uint("request_id", req.ID),
		zap.Uint("team_id", req.TeamID),
		zap.Uint("challenge_id", req.ChallengeID),
		zap.Uint("hint_id", req.HintID),
	)
	return req, nil
}

// Approve resolves a pending request as approved and charges the team.
func (s *Service) Approve(ctx context.Context, requestID uint, actor models.Actor) (*models.HintRequest, error) {
	return s.resolve(ctx, requestID, &actor, models.HintRequestApproved)
}

// Reject resolves a pending request as rejected. Nothing is charged.
func (s *Service) Reject(ctx context.Context, requestID uint, actor models.Actor) (*models.HintRequest, error) {
	return s.resolve(ctx, requestID, &actor, models.HintRequestRejected)
}

// AutoApprove is the sweeper's resolution: Approve without an actor.
func (s *Service) AutoApprove(ctx context.Context, requestID uint) (*models.HintRequest, error) {
	return s.resolve(ctx, requestID, nil, models.HintRequestAutoApproved)
}

// resolve locks the request then its team, rechecks that the request is
// still pending, authorizes, debits and transitions in one transaction.
// actor is nil for the sweeper.
func (s *Service) resolve(ctx context.Context, requestID uint, actor *models.Actor, to models.HintRequestStatus) (*models.HintRequest, error) {
	now := s.now().UTC()
	var out models.HintRequest
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		req, err := tx.LockHintRequest(ctx, requestID)
		if err != nil {
			return err
		}
		team, err := tx.LockTeam(ctx, req.TeamID)
		if err != nil {
			return err
		}
		if req.Status != models.HintRequestPending {
			return fmt.Errorf("%w: hint request %d already %s", apperr.ErrInvalidState, req.ID, req.Status)
		}
		if actor != nil && !actor.IsAdmin() && !actor.IsCaptainOf(team) {
			return fmt.Errorf("%w: user %d is not captain of team %d", apperr.ErrPermissionDenied, actor.UserID, team.ID)
		}

		payment := models.Payment{Method: models.PaidNothing}
		if to != models.HintRequestRejected {
			hint, err := s.catalog.Lookup(ctx, req.HintID, req.ChallengeID)
			if err != nil {
				return err
			}
			if payment, err = ledger.Charge(team, hint); err != nil {
				return err
			}
			if err := tx.DebitTeam(ctx, team.ID, payment); err != nil {
				return err
			}
		}

		var resolver *uint
		if actor != nil {
			uid := actor.UserID
			resolver = &uid
		}
		from := req.Status
		if err := req.Resolve(to, resolver, payment, now); err != nil {
			return err
		}
		if err := tx.ResolveHintRequest(ctx, req, from); err != nil {
			return err
		}

		details, err := json.Marshal(map[string]interface{}{
			"team_id":      team.ID,
			"challenge_id": req.ChallengeID,
			"hint_id":      req.HintID,
			"paid_with":    payment.Method,
			"amount_paid":  payment.Amount,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendAuditLog(ctx, &models.AuditLog{
			Action:    auditAction(to),
			ActorID:   resolver,
			TargetID:  req.ID,
			Details:   datatypes.JSON(details),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		out = *req
		return nil
	})
	if err != nil {
		s.metrics.HintFailed(err)
		s.logResolveError(requestID, to, err)
		return nil, err
	}

	s.metrics.HintResolved(string(out.Status), string(out.PaidWith))
	fields := []zap.Field{
		zap.Uint("request_id", out.ID),
		zap.Uint("team_id", out.TeamID),
		zap.String("status", string(out.Status)),
		zap.String("paid_with", string(out.PaidWith)),
		zap.Int64("amount_paid", out.AmountPaid),
	}
	if actor != nil {
		fields = append(fields, zap.Uint("actor_id", actor.UserID))
	}
	s.logger.Info("hint request resolved", fields...)
	return &out, nil
}

func (s *Service) logResolveError(requestID uint, to models.HintRequestStatus, err error) {
	fields := []zap.Field{zap.Uint("request_id", requestID), zap.String("to", string(to)), zap.Error(err)}
	switch {
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrPermissionDenied), errors.Is(err, apperr.ErrNotFound):
		s.logger.Debug("hint request not resolved", fields...)
	case apperr.Expected(err):
		s.logger.Warn("hint request not resolved", fields...)
	default:
		s.logger.Error("hint request resolution failed", fields...)
	}
}

func auditAction(to models.HintRequestStatus) string {
	switch to {
	case models.HintRequestApproved:
		return models.AuditHintApproved
	case models.HintRequestRejected:
		return models.AuditHintRejected
	}
	return models.AuditHintAutoApproved
}

// Get returns one request. Players only see their own team's requests.
func (s *Service) Get(ctx context.Context, requestID uint, actor models.Actor) (*View, error) {
	req, err := s.store.GetHintRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(req.TeamID) {
		return nil, fmt.Errorf("%w: hint request %d belongs to another team", apperr.ErrPermissionDenied, req.ID)
	}
	view := &View{HintRequest: *req}
	if req.Status == models.HintRequestApproved || req.Status == models.HintRequestAutoApproved {
		hint, err := s.catalog.Lookup(ctx, req.HintID, req.ChallengeID)
		if err != nil {
			return nil, err
		}
		view.Content = hint.Content
	}
	return view, nil
}

// List returns requests newest first. A player's filter is always narrowed
// to their own team, and a player without a team sees nothing.
func (s *Service) List(ctx context.Context, actor models.Actor, filter store.HintRequestFilter) ([]models.HintRequest, error) {
	if !actor.IsAdmin() {
		if actor.TeamID == nil {
			return []models.HintRequest{}, nil
		}
		teamID := *actor.TeamID
		filter.TeamID = &teamID
	}
	out, err := s.store.ListHintRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.HintRequest{}
	}
	return out, nil
}
