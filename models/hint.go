package models

// HintCostType is how a hint is paid for.
type HintCostType string

const (
	HintCostFree     HintCostType = "free"
	HintCostCurrency HintCostType = "currency"
	HintCostPoints   HintCostType = "points"
)

// Valid reports whether c is a known cost type.
func (c HintCostType) Valid() bool {
	switch c {
	case HintCostFree, HintCostCurrency, HintCostPoints:
		return true
	}
	return false
}

// RequiresPayment reports whether approving a hint of this type must consume
// a free hint or currency.
func (c HintCostType) RequiresPayment() bool {
	return c == HintCostCurrency || c == HintCostPoints
}

// Hint belongs to exactly one challenge and never changes after creation.
type Hint struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	ChallengeID uint         `gorm:"not null;index" json:"challenge_id"`
	HintNumber  int          `gorm:"not null" json:"hint_number"`
	Content     string       `gorm:"type:text;not null" json:"-"`
	CostType    HintCostType `gorm:"size:16;not null;default:'currency'" json:"cost_type"`
	CostAmount  int64        `gorm:"not null;default:0" json:"cost_amount"`
}
