package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cardlink-dev/cardlink/internal/model"
	"github.com/cardlink-dev/cardlink/internal/statement"
)

// installmentMarker matches "<label> N/M", e.g. "Hospital - Parcela 1/3".
var installmentMarker = regexp.MustCompile(`(?:^|\s)(\d{1,3})/(\d{1,3})(?:\s|$)`)

// Rules classify statement lines by description, first match wins:
// payment received, refund, installment marker, otherwise purchase.
// This is a best-effort heuristic; a miss only affects labels shown
// downstream, never whether the import proceeds.
type Rules struct {
	PaymentReceived []string
	Refund          []string
}

// DefaultRules returns the pt-BR phrase set with English fallbacks.
func DefaultRules() Rules {
	return Rules{
		PaymentReceived: []string{"pagamento recebido", "payment received"},
		Refund:          []string{"estorno de compra", "estorno", "purchase refund"},
	}
}

// Classify assigns a classification to a single line. Refund signs are
// taken as-is from the statement, never inverted.
func (r Rules) Classify(line model.StatementLine) model.StatementLine {
	desc := statement.Normalize(line.RawDescription)

	for _, phrase := range r.PaymentReceived {
		if phraseIn(desc, phrase) {
			line.Classification = model.ClassPaymentReceived
			return line
		}
	}

	for _, phrase := range r.Refund {
		if phraseIn(desc, phrase) {
			line.Classification = model.ClassRefund
			return line
		}
	}

	if idx, total, ok := installmentOf(line.RawDescription); ok {
		line.Classification = model.ClassInstallment
		line.InstallmentIndex = idx
		line.InstallmentTotal = total
		return line
	}

	line.Classification = model.ClassPurchase
	return line
}

// Apply classifies every line of a batch in order.
func (r Rules) Apply(lines []model.StatementLine) []model.StatementLine {
	out := make([]model.StatementLine, len(lines))
	for i, l := range lines {
		out[i] = r.Classify(l)
	}
	return out
}

func phraseIn(normalizedDesc, phrase string) bool {
	needle := statement.Normalize(phrase)
	return needle != "" && strings.Contains(normalizedDesc, needle)
}

// installmentOf extracts N and M from an "N/M" marker. Requires
// 1 <= N <= M so stray date-like fragments are less likely to match.
func installmentOf(desc string) (index, total int, ok bool) {
	m := installmentMarker.FindStringSubmatch(desc)
	if m == nil {
		return 0, 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	if index < 1 || index > total {
		return 0, 0, false
	}
	return index, total, true
}
