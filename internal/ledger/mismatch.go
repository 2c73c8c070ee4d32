package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/cardlink-dev/cardlink/internal/cycle"
	"github.com/cardlink-dev/cardlink/internal/model"
)

// ErrMismatchNotFound is returned when dismissing an unknown cycle.
var ErrMismatchNotFound = errors.New("no mismatch recorded for billing cycle")

// RecordMismatch upserts the mismatch marker for a billing cycle. A new
// mismatching import overwrites the previous one and clears the
// dismissed flag, so a stale dismissal never hides a fresh discrepancy.
func (s *Store) RecordMismatch(c cycle.Cycle, billPaymentID *uint, delta, unmatched decimal.Decimal) error {
	m := model.CycleMismatch{
		BillingCycle:    c.String(),
		BillPaymentID:   billPaymentID,
		Delta:           delta,
		UnmatchedAmount: unmatched,
		Dismissed:       false,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "billing_cycle"}},
		DoUpdates: clause.AssignmentColumns([]string{"bill_payment_id", "delta", "unmatched_amount", "dismissed", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("recording mismatch for cycle %s: %w", c, err)
	}
	return nil
}

// Mismatches returns all recorded mismatch markers, newest cycle first.
func (s *Store) Mismatches() ([]model.CycleMismatch, error) {
	var ms []model.CycleMismatch
	if err := s.db.Order("billing_cycle DESC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("querying mismatches: %w", err)
	}
	return ms, nil
}

// DismissMismatch flags a cycle's mismatch as dismissed. Pure UI state:
// ledger rows are untouched.
func (s *Store) DismissMismatch(c cycle.Cycle) error {
	res := s.db.Model(&model.CycleMismatch{}).
		Where("billing_cycle = ?", c.String()).
		Update("dismissed", true)
	if res.Error != nil {
		return fmt.Errorf("dismissing mismatch for cycle %s: %w", c, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMismatchNotFound, c)
	}
	return nil
}
