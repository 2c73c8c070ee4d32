// Package importer orchestrates the three-step statement import
// protocol: ParsePreview and MatchPreview are strictly read-only;
// Confirm and Collapse are the only mutating operations.
package importer

import (
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cardlink-dev/cardlink/internal/classify"
	"github.com/cardlink-dev/cardlink/internal/cycle"
	"github.com/cardlink-dev/cardlink/internal/ledger"
	"github.com/cardlink-dev/cardlink/internal/match"
	"github.com/cardlink-dev/cardlink/internal/model"
	"github.com/cardlink-dev/cardlink/internal/statement"
)

// Service wires the parser, classifier, matching engine and ledger into
// the import protocol.
type Service struct {
	store   *ledger.Store
	formats *statement.Registry
	rules   classify.Rules
	maxRows int
	log     zerolog.Logger
}

// NewService creates an import service. maxRows bounds uploads; 0
// disables the bound.
func NewService(store *ledger.Store, formats *statement.Registry, rules classify.Rules, maxRows int, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		formats: formats,
		rules:   rules,
		maxRows: maxRows,
		log:     log,
	}
}

// PreviewResult is the outcome of step 1 of the import protocol.
type PreviewResult struct {
	BatchID        uuid.UUID             `json:"batchId"`
	Lines          []model.StatementLine `json:"lines"`
	DetectedFormat string                `json:"detectedFormat"`
	BillingCycle   string                `json:"billingCycle,omitempty"`
}

// ParsePreview parses and classifies an uploaded statement without
// touching the ledger.
func (s *Service) ParsePreview(r io.Reader, opts statement.ParseOptions) (*PreviewResult, error) {
	if opts.MaxRows == 0 {
		opts.MaxRows = s.maxRows
	}

	res, err := statement.Parse(r, s.formats, opts)
	if err != nil {
		return nil, err
	}

	lines := s.rules.Apply(res.Lines)
	batch := model.ImportBatch{ID: uuid.New(), Lines: lines, DetectedFormat: res.DetectedFormat}
	if pr, ok := batch.PaymentReceivedLine(); ok {
		batch.BillingCycle = cycle.FromTime(pr.Date).String()
	}

	out := &PreviewResult{
		BatchID:        batch.ID,
		Lines:          batch.Lines,
		DetectedFormat: batch.DetectedFormat,
		BillingCycle:   batch.BillingCycle,
	}

	s.log.Debug().
		Str("batch", batch.ID.String()).
		Int("lines", len(lines)).
		Str("format", res.DetectedFormat).
		Msg("statement parsed")
	return out, nil
}

// MatchResult is the outcome of step 2. Candidate is nil on NoMatch,
// which is a valid result, not an error; UnmatchedAmount then carries
// the statement's uncovered purchase total.
type MatchResult struct {
	Candidate       *model.BillPayment `json:"candidate,omitempty"`
	Delta           decimal.Decimal    `json:"delta"`
	NetTotal        decimal.Decimal    `json:"netTotal"`
	UnmatchedAmount decimal.Decimal    `json:"unmatchedAmount"`
	BillingCycle    string             `json:"billingCycle,omitempty"`
}

// MatchPreview computes the statement's net total and searches for the
// best candidate standalone bill payment. Read-only.
func (s *Service) MatchPreview(lines []model.StatementLine) (*MatchResult, error) {
	netTotal := match.NetTotal(lines)
	out := &MatchResult{
		NetTotal:        netTotal,
		Delta:           decimal.Zero,
		UnmatchedAmount: decimal.Zero,
	}
	if c, ok := billingCycleOf(lines); ok {
		out.BillingCycle = c.String()
	}

	anchor, ok := match.AnchorDate(lines)
	if !ok {
		out.UnmatchedAmount = netTotal
		return out, nil
	}

	candidates, err := s.store.StandaloneByDate(anchor)
	if err != nil {
		return nil, err
	}

	best, delta, found := match.Best(candidates, netTotal)
	if !found {
		out.UnmatchedAmount = netTotal
		return out, nil
	}

	out.Candidate = &best
	out.Delta = delta
	return out, nil
}

// ConfirmResult is the outcome of step 3.
type ConfirmResult struct {
	CreatedTransactionIDs []uint `json:"createdTransactionIds"`
	BillingCycle          string `json:"billingCycle,omitempty"`
}

// Confirm commits the import. With a bill payment id the matched
// payment is expanded (the caller has accepted any delta upstream, so a
// non-zero delta is recorded with the mismatch tracker and the expand
// proceeds). Without one, unlinked card transactions are created and
// the full net total is tracked as unmatched.
func (s *Service) Confirm(lines []model.StatementLine, billPaymentID *uint, categoryID *uint) (*ConfirmResult, error) {
	netTotal := match.NetTotal(lines)
	billingCycle, hasCycle := billingCycleOf(lines)

	out := &ConfirmResult{}
	if hasCycle {
		out.BillingCycle = billingCycle.String()
	}

	if billPaymentID == nil {
		children := ledger.ChildrenFromLines(lines, categoryID)
		normalizeUnlinked(children)
		ids, err := s.store.CreateUnlinked(children)
		if err != nil {
			return nil, err
		}
		out.CreatedTransactionIDs = ids

		c, haveCycle := billingCycle, hasCycle
		if !haveCycle {
			if anchor, ok := match.AnchorDate(lines); ok {
				c, haveCycle = cycle.FromTime(anchor), true
			}
		}
		if haveCycle {
			if err := s.store.RecordMismatch(c, nil, decimal.Zero, netTotal); err != nil {
				return nil, err
			}
		}

		s.log.Info().Int("transactions", len(out.CreatedTransactionIDs)).Msg("unmatched import committed")
		return out, nil
	}

	ids, prior, err := s.store.Expand(*billPaymentID, lines, categoryID)
	if err != nil {
		return nil, err
	}
	out.CreatedTransactionIDs = ids

	// Delta against the amount the expand actually zeroed, not an
	// earlier read that a concurrent edit could have outdated.
	delta := match.Delta(prior, netTotal)
	if !delta.IsZero() {
		c := billingCycle
		if !hasCycle {
			c = cycle.FromTime(prior.Date)
		}
		if err := s.store.RecordMismatch(c, billPaymentID, delta, decimal.Zero); err != nil {
			return nil, err
		}
		s.log.Warn().
			Uint("billPayment", *billPaymentID).
			Str("delta", delta.String()).
			Msg("expanded with mismatch")
	}

	s.log.Info().
		Uint("billPayment", *billPaymentID).
		Int("transactions", len(ids)).
		Msg("bill payment expanded")
	return out, nil
}

// Collapse reverses an expand and reports the restored amount.
func (s *Service) Collapse(billPaymentID uint) (decimal.Decimal, error) {
	restored, err := s.store.Collapse(billPaymentID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	s.log.Info().
		Uint("billPayment", billPaymentID).
		Str("restoredAmount", restored.String()).
		Msg("bill payment collapsed")
	return restored, nil
}

// billingCycleOf derives the batch's billing cycle from its
// payment-received line.
func billingCycleOf(lines []model.StatementLine) (cycle.Cycle, bool) {
	for _, l := range lines {
		if l.Classification == model.ClassPaymentReceived {
			return cycle.FromTime(l.Date), true
		}
	}
	return cycle.Cycle{}, false
}

// normalizeUnlinked flips an all-positive statement so unmatched
// imports land as outflow, matching the ledger convention.
func normalizeUnlinked(txns []model.CreditCardTransaction) {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount)
	}
	if sum.Sign() > 0 {
		for i := range txns {
			txns[i].Amount = txns[i].Amount.Neg()
		}
	}
}
