package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cardlink-dev/cardlink/internal/model"
)

// Operation-time failures. Both leave the ledger untouched: the
// surrounding transaction rolls back before they are returned.
var (
	ErrBillPaymentNotFound = errors.New("bill payment not found")
	ErrAlreadyExpanded     = errors.New("bill payment already expanded")
	ErrNotExpanded         = errors.New("bill payment is not expanded")
	ErrPartialImport       = errors.New("partial import failure")
)

// Store is the relational ledger for bill payments and their itemized
// card transactions.
type Store struct {
	db *gorm.DB
	// rowLocking is true on Postgres, where concurrent expands of the
	// same payment are serialized with SELECT ... FOR UPDATE. SQLite
	// has no row locks; linkMu serializes the link state machine
	// in-process instead, so the loser of a concurrent expand fails
	// its precondition check rather than a write.
	rowLocking bool
	linkMu     sync.Mutex
}

// Open connects to the ledger database and migrates the schema. A
// postgres:// or postgresql:// DSN selects Postgres; anything else is
// treated as a SQLite path.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	rowLocking := false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
		rowLocking = true
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger database: %w", err)
	}

	if err := db.AutoMigrate(&model.BillPayment{}, &model.CreditCardTransaction{}, &model.CycleMismatch{}); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}

	return &Store{db: db, rowLocking: rowLocking}, nil
}

// CreateBillPayment inserts a new standalone bill payment.
func (s *Store) CreateBillPayment(bp *model.BillPayment) error {
	if bp.LinkStatus == "" {
		bp.LinkStatus = model.LinkStandalone
	}
	if err := s.db.Create(bp).Error; err != nil {
		return fmt.Errorf("creating bill payment: %w", err)
	}
	return nil
}

// GetBillPayment fetches a bill payment by id.
func (s *Store) GetBillPayment(id uint) (model.BillPayment, error) {
	var bp model.BillPayment
	err := s.db.First(&bp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.BillPayment{}, fmt.Errorf("%w: id %d", ErrBillPaymentNotFound, id)
	}
	if err != nil {
		return model.BillPayment{}, fmt.Errorf("fetching bill payment %d: %w", id, err)
	}
	return bp, nil
}

// StandaloneByDate returns standalone bill payments dated on the given
// day, ordered by primary key ascending so that matching tie-breaks are
// deterministic.
func (s *Store) StandaloneByDate(day time.Time) ([]model.BillPayment, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var bps []model.BillPayment
	err := s.db.
		Where("link_status = ?", model.LinkStandalone).
		Where("date >= ? AND date < ?", start, end).
		Order("id ASC").
		Find(&bps).Error
	if err != nil {
		return nil, fmt.Errorf("querying standalone bill payments: %w", err)
	}
	return bps, nil
}

// ChildrenOf returns the card transactions owned by a bill payment.
func (s *Store) ChildrenOf(billPaymentID uint) ([]model.CreditCardTransaction, error) {
	var txns []model.CreditCardTransaction
	err := s.db.
		Where("parent_bill_payment_id = ?", billPaymentID).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("querying card transactions for bill payment %d: %w", billPaymentID, err)
	}
	return txns, nil
}

// CreateUnlinked persists card transactions with no owning bill payment
// (an unmatched import), all-or-nothing.
func (s *Store) CreateUnlinked(txns []model.CreditCardTransaction) ([]uint, error) {
	if len(txns) == 0 {
		return nil, nil
	}
	for i := range txns {
		txns[i].ParentBillPaymentID = nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&txns).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPartialImport, err)
	}

	ids := make([]uint, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	return ids, nil
}

// DeleteBillPayment removes a standalone bill payment. Deleting an
// expanded payment is refused: it must be collapsed first, since
// collapsing is what restores and releases the children.
func (s *Store) DeleteBillPayment(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var bp model.BillPayment
		err := tx.First(&bp, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrBillPaymentNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("fetching bill payment %d: %w", id, err)
		}
		if bp.LinkStatus == model.LinkExpanded {
			return fmt.Errorf("%w: collapse bill payment %d before deleting it", ErrAlreadyExpanded, id)
		}
		return tx.Delete(&model.BillPayment{}, id).Error
	})
}
