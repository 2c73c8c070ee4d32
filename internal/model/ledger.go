package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LinkStatus is the expand state of a BillPayment.
type LinkStatus string

const (
	// LinkStandalone means the payment is a single opaque ledger line.
	LinkStandalone LinkStatus = "standalone"
	// LinkExpanded means the payment's amount has been redistributed to
	// child CreditCardTransactions and is held at zero.
	LinkExpanded LinkStatus = "expanded"
)

// BillPayment is a lump-sum payment toward a credit card bill.
// Invariant: while expanded, Amount is zero and the payment owns at
// least one child; while standalone, it owns none.
type BillPayment struct {
	ID          uint            `json:"id" gorm:"primarykey"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Date        time.Time       `json:"date" gorm:"index;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Description string          `json:"description"`
	LinkStatus  LinkStatus      `json:"linkStatus" gorm:"type:varchar(16);not null;default:standalone;index"`
}

// CreditCardTransaction is one itemized purchase, installment or refund
// produced from a statement line. ParentBillPaymentID is nil for
// unmatched imports (no owning BillPayment).
type CreditCardTransaction struct {
	ID                  uint            `json:"id" gorm:"primarykey"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	ParentBillPaymentID *uint           `json:"parentBillPaymentId,omitempty" gorm:"index"`
	Date                time.Time       `json:"date" gorm:"not null"`
	Amount              decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Description         string          `json:"description"`
	IsInstallment       bool            `json:"isInstallment"`
	InstallmentIndex    int             `json:"installmentIndex,omitempty"`
	InstallmentTotal    int             `json:"installmentTotal,omitempty"`
	IsRefund            bool            `json:"isRefund"`
	CategoryID          *uint           `json:"categoryId,omitempty"`
}

// CycleMismatch records an unresolved disagreement between a statement
// and the ledger, scoped to one billing cycle. Dismissed is pure UI
// state; it never alters ledger rows and is cleared when a new
// mismatching import lands on the same cycle.
type CycleMismatch struct {
	ID              uint            `json:"id" gorm:"primarykey"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	BillingCycle    string          `json:"billingCycle" gorm:"uniqueIndex;type:varchar(7);not null"`
	BillPaymentID   *uint           `json:"billPaymentId,omitempty"`
	Delta           decimal.Decimal `json:"delta" gorm:"type:numeric(12,2)"`
	UnmatchedAmount decimal.Decimal `json:"unmatchedAmount" gorm:"type:numeric(12,2)"`
	Dismissed       bool            `json:"dismissed"`
}
