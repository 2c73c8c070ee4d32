package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineClass is the best-effort classification of a statement line.
type LineClass string

const (
	ClassPurchase        LineClass = "purchase"
	ClassInstallment     LineClass = "installment"
	ClassRefund          LineClass = "refund"
	ClassPaymentReceived LineClass = "payment-received"
)

// StatementLine is one normalized row of an uploaded card statement.
// Amounts keep the sign the bank exported: negative = purchase,
// positive = credit/refund/payment received (some banks invert this;
// the ledger normalizes at expand time, not here).
type StatementLine struct {
	Date             time.Time       `json:"date"`
	RawDescription   string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	Classification   LineClass       `json:"classification,omitempty"`
	InstallmentIndex int             `json:"installmentIndex,omitempty"`
	InstallmentTotal int             `json:"installmentTotal,omitempty"`
}

// ImportBatch is the ephemeral result of one statement upload. It is
// never persisted; the import decision either commits ledger rows or
// discards the batch.
type ImportBatch struct {
	ID             uuid.UUID
	Lines          []StatementLine
	DetectedFormat string
	// BillingCycle is the "YYYY-MM" anchor derived from the
	// payment-received line, empty when the statement has none.
	BillingCycle string
}

// PaymentReceivedLine returns the first payment-received line, if any.
func (b *ImportBatch) PaymentReceivedLine() (StatementLine, bool) {
	for _, l := range b.Lines {
		if l.Classification == ClassPaymentReceived {
			return l, true
		}
	}
	return StatementLine{}, false
}
