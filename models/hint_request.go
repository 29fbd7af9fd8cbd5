package models

import (
	"fmt"
	"time"

	"github.com/cppla/heistctf/apperr"
)

// HintRequestStatus is the closed set of request states. Pending is the only
// initial state; every other state is terminal.
type HintRequestStatus string

const (
	HintRequestPending      HintRequestStatus = "pending"
	HintRequestApproved     HintRequestStatus = "approved"
	HintRequestRejected     HintRequestStatus = "rejected"
	HintRequestAutoApproved HintRequestStatus = "auto_approved"
)

var hintRequestTransitions = map[HintRequestStatus][]HintRequestStatus{
	HintRequestPending:      {HintRequestApproved, HintRequestRejected, HintRequestAutoApproved},
	HintRequestApproved:     nil,
	HintRequestRejected:     nil,
	HintRequestAutoApproved: nil,
}

// Valid reports whether s is a known status.
func (s HintRequestStatus) Valid() bool {
	_, ok := hintRequestTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s HintRequestStatus) Terminal() bool {
	return s.Valid() && len(hintRequestTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is in the transition table.
func (s HintRequestStatus) CanTransitionTo(next HintRequestStatus) bool {
	for _, allowed := range hintRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod records what an approval consumed.
type PaymentMethod string

const (
	PaidNothing  PaymentMethod = "none"
	PaidFreeHint PaymentMethod = "free_hint"
	PaidCurrency PaymentMethod = "currency"
)

// Payment is the single debit applied when a request is approved. Amount is
// the currency spent and is zero unless Method is PaidCurrency.
type Payment struct {
	Method PaymentMethod `json:"method"`
	Amount int64         `json:"amount"`
}

// HintRequest is one team's purchase of one hint. It is resolved exactly once
// and never deleted.
type HintRequest struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	TeamID         uint              `gorm:"not null;index" json:"team_id"`
	ChallengeID    uint              `gorm:"not null;index:idx_hintreq_team_challenge" json:"challenge_id"`
	HintID         uint              `gorm:"not null" json:"hint_id"`
	RequestedBy    uint              `gorm:"not null;index" json:"requested_by"`
	Status         HintRequestStatus `gorm:"size:16;not null;default:'pending';index:idx_hintreq_status_requested,priority:1" json:"status"`
	ApprovedBy     *uint             `json:"approved_by"`
	RequestedAt    time.Time         `gorm:"not null;index:idx_hintreq_status_requested,priority:2" json:"requested_at"`
	ResolvedAt     *time.Time        `json:"resolved_at"`
	AutoApprovedAt *time.Time        `json:"auto_approved_at"`
	Note           string            `gorm:"type:text" json:"note,omitempty"`
	PaidWith       PaymentMethod     `gorm:"size:16;not null;default:'none'" json:"paid_with"`
	AmountPaid     int64             `gorm:"not null;default:0" json:"amount_paid"`
}

// Resolve moves a pending request to a terminal state and stamps the
// resolution fields. resolver is nil for the sweeper.
func (r *HintRequest) Resolve(to HintRequestStatus, resolver *uint, payment Payment, at time.Time) error {
	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: hint request %d is %s", apperr.ErrInvalidState, r.ID, r.Status)
	}
	resolvedAt := at
	r.Status = to
	r.ApprovedBy = resolver
	r.ResolvedAt = &resolvedAt
	if to == HintRequestAutoApproved {
		autoAt := at
		r.AutoApprovedAt = &autoAt
	}
	if payment.Method == "" {
		payment.Method = PaidNothing
	}
	r.PaidWith = payment.Method
	r.AmountPaid = payment.Amount
	return nil
}
