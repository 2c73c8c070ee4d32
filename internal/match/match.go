package match

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardlink-dev/cardlink/internal/model"
)

// NetTotal is the statement's net purchase total: the magnitude of the
// signed sum over purchases, installments and refunds. Refunds enter at
// their stated sign and so reduce the total; the payment-received line
// is excluded (it is the BillPayment itself, not a statement item).
func NetTotal(lines []model.StatementLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Classification == model.ClassPaymentReceived {
			continue
		}
		sum = sum.Add(l.Amount)
	}
	return sum.Abs()
}

// AnchorDate is the date used to search for candidate BillPayments: the
// payment-received line's date when present, otherwise the latest line
// date in the batch. ok is false for an empty batch.
func AnchorDate(lines []model.StatementLine) (time.Time, bool) {
	var latest time.Time
	for _, l := range lines {
		if l.Classification == model.ClassPaymentReceived {
			return l.Date, true
		}
		if l.Date.After(latest) {
			latest = l.Date
		}
	}
	if latest.IsZero() {
		return time.Time{}, false
	}
	return latest, true
}

// Delta is the candidate disagreement: |amount| − netTotal. Non-zero
// deltas are surfaced, not rejected.
func Delta(candidate model.BillPayment, netTotal decimal.Decimal) decimal.Decimal {
	return candidate.Amount.Abs().Sub(netTotal)
}

// Best picks the candidate whose |delta| is smallest. Candidates must
// already share the anchor date and be ordered by primary key
// ascending; on an exact |delta| tie the earliest-created record wins,
// because only a strictly smaller |delta| replaces the current best.
// ok is false when candidates is empty (NoMatch).
func Best(candidates []model.BillPayment, netTotal decimal.Decimal) (best model.BillPayment, delta decimal.Decimal, ok bool) {
	for _, c := range candidates {
		d := Delta(c, netTotal)
		if !ok || d.Abs().LessThan(delta.Abs()) {
			best, delta, ok = c, d, true
		}
	}
	return best, delta, ok
}
