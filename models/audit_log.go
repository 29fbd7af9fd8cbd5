package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions written by this service.
const (
	AuditHintApproved     = "hint_request.approved"
	AuditHintRejected     = "hint_request.rejected"
	AuditHintAutoApproved = "hint_request.auto_approved"
)

// AuditLog records who resolved what. ActorID is nil for the sweeper.
type AuditLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Action    string         `gorm:"size:100;not null;index" json:"action"`
	ActorID   *uint          `json:"actor_id"`
	TargetID  uint           `gorm:"not null;index" json:"target_id"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}
