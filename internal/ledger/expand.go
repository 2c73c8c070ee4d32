package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cardlink-dev/cardlink/internal/model"
)

// Expand converts a standalone bill payment into itemized card
// transactions: one child per statement line except the
// payment-received line (which is the bill payment itself), the parent
// amount zeroed and its link status set to expanded. The whole
// transition is a single database transaction; concurrent expands of
// the same payment are serialized (row lock on Postgres, linkMu on
// SQLite) and the loser fails with ErrAlreadyExpanded.
//
// The returned payment is the row as it stood under the lock, before
// the amount was zeroed, so callers can compute deltas against the
// amount that was actually expanded.
//
// Child signs are normalized so the itemization carries the ledger's
// outflow convention: when the statement's signed sum disagrees in sign
// with the parent amount, every child is negated as a block. With a
// zero delta the children then sum exactly to the pre-expand amount.
func (s *Store) Expand(billPaymentID uint, lines []model.StatementLine, categoryID *uint) ([]uint, model.BillPayment, error) {
	if !s.rowLocking {
		s.linkMu.Lock()
		defer s.linkMu.Unlock()
	}

	var (
		created []uint
		prior   model.BillPayment
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var bp model.BillPayment
		err := s.lockForUpdate(tx).First(&bp, billPaymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrBillPaymentNotFound, billPaymentID)
		}
		if err != nil {
			return fmt.Errorf("locking bill payment %d: %w", billPaymentID, err)
		}
		if bp.LinkStatus != model.LinkStandalone {
			return fmt.Errorf("%w: id %d", ErrAlreadyExpanded, billPaymentID)
		}
		prior = bp

		children := ChildrenFromLines(lines, categoryID)
		if len(children) == 0 {
			return fmt.Errorf("%w: statement has no itemizable lines", ErrPartialImport)
		}

		if sum := statementSum(children); sum.Sign() != 0 && bp.Amount.Sign() != 0 &&
			sum.Sign() != bp.Amount.Sign() {
			negateAll(children)
		}
		for i := range children {
			id := billPaymentID
			children[i].ParentBillPaymentID = &id
		}

		if err := tx.Create(&children).Error; err != nil {
			return fmt.Errorf("%w: creating card transactions: %v", ErrPartialImport, err)
		}

		updates := map[string]interface{}{
			"amount":      decimal.Zero,
			"link_status": model.LinkExpanded,
		}
		if err := tx.Model(&model.BillPayment{}).Where("id = ?", billPaymentID).Updates(updates).Error; err != nil {
			return fmt.Errorf("%w: zeroing bill payment: %v", ErrPartialImport, err)
		}

		created = make([]uint, len(children))
		for i, c := range children {
			created[i] = c.ID
		}
		return nil
	})
	if err != nil {
		return nil, model.BillPayment{}, err
	}
	return created, prior, nil
}

// Collapse reverses an expand: every child is deleted and the parent
// amount restored to the signed sum of the deleted amounts — not a
// cached original, so collapse stays correct even if children were
// edited after the expand. Fails with ErrNotExpanded on a standalone
// payment and performs no mutation.
func (s *Store) Collapse(billPaymentID uint) (decimal.Decimal, error) {
	if !s.rowLocking {
		s.linkMu.Lock()
		defer s.linkMu.Unlock()
	}

	var restored decimal.Decimal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var bp model.BillPayment
		err := s.lockForUpdate(tx).First(&bp, billPaymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrBillPaymentNotFound, billPaymentID)
		}
		if err != nil {
			return fmt.Errorf("locking bill payment %d: %w", billPaymentID, err)
		}
		if bp.LinkStatus != model.LinkExpanded {
			return fmt.Errorf("%w: id %d", ErrNotExpanded, billPaymentID)
		}

		var children []model.CreditCardTransaction
		if err := tx.Where("parent_bill_payment_id = ?", billPaymentID).Find(&children).Error; err != nil {
			return fmt.Errorf("querying children of bill payment %d: %w", billPaymentID, err)
		}

		restored = decimal.Zero
		for _, c := range children {
			restored = restored.Add(c.Amount)
		}

		if err := tx.Where("parent_bill_payment_id = ?", billPaymentID).
			Delete(&model.CreditCardTransaction{}).Error; err != nil {
			return fmt.Errorf("deleting children of bill payment %d: %w", billPaymentID, err)
		}

		updates := map[string]interface{}{
			"amount":      restored,
			"link_status": model.LinkStandalone,
		}
		return tx.Model(&model.BillPayment{}).Where("id = ?", billPaymentID).Updates(updates).Error
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return restored, nil
}

// ChildrenFromLines builds card transactions from statement lines,
// skipping the payment-received line. Signs are kept as parsed.
func ChildrenFromLines(lines []model.StatementLine, categoryID *uint) []model.CreditCardTransaction {
	var children []model.CreditCardTransaction
	for _, l := range lines {
		if l.Classification == model.ClassPaymentReceived {
			continue
		}
		children = append(children, model.CreditCardTransaction{
			Date:             l.Date,
			Amount:           l.Amount,
			Description:      l.RawDescription,
			IsInstallment:    l.Classification == model.ClassInstallment,
			InstallmentIndex: l.InstallmentIndex,
			InstallmentTotal: l.InstallmentTotal,
			IsRefund:         l.Classification == model.ClassRefund,
			CategoryID:       categoryID,
		})
	}
	return children
}

func (s *Store) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if s.rowLocking {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func statementSum(txns []model.CreditCardTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount)
	}
	return sum
}

func negateAll(txns []model.CreditCardTransaction) {
	for i := range txns {
		txns[i].Amount = txns[i].Amount.Neg()
	}
}
