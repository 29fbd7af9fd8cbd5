// Package ledger decides how a team pays for a hint. It only reads the locked
// team row; the debit itself is applied by store.Tx.DebitTeam in the same
// transaction so the balance check and the write cannot drift apart.
package ledger

import (
	"fmt"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/models"
)

// Charge picks the single payment for hint h. A free hint is always preferred
// over currency and the two are never combined. Payable hints with a zero
// cost are treated as free.
func Charge(team *models.Team, h *models.Hint) (models.Payment, error) {
	if !h.CostType.Valid() {
		return models.Payment{}, fmt.Errorf("hint %d has unknown cost type %q", h.ID, h.CostType)
	}
	// a zero-cost payable hint is free and leaves free_hints_left untouched
	if !h.CostType.RequiresPayment() || h.CostAmount <= 0 {
		return models.Payment{Method: models.PaidNothing}, nil
	}
	if team.FreeHintsLeft > 0 {
		return models.Payment{Method: models.PaidFreeHint}, nil
	}
	if team.HintCurrency >= h.CostAmount {
		return models.Payment{Method: models.PaidCurrency, Amount: h.CostAmount}, nil
	}
	return models.Payment{}, fmt.Errorf("%w: team %d has %d, hint %d costs %d",
		apperr.ErrInsufficientCurrency, team.ID, team.HintCurrency, h.ID, h.CostAmount)
}
