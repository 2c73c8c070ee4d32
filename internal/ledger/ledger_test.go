package ledger

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlink-dev/cardlink/internal/cycle"
	"github.com/cardlink-dev/cardlink/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return s
}

func seedBillPayment(t *testing.T, s *Store, amount string, d int) model.BillPayment {
	t.Helper()
	bp := model.BillPayment{Date: day(d), Amount: dec(amount), Description: "Fatura cartão"}
	require.NoError(t, s.CreateBillPayment(&bp))
	return bp
}

func purchaseLines() []model.StatementLine {
	return []model.StatementLine{
		{Date: day(5), RawDescription: "Mercado", Amount: dec("-300.00"), Classification: model.ClassPurchase},
		{Date: day(8), RawDescription: "Farmácia", Amount: dec("-200.00"), Classification: model.ClassPurchase},
		{Date: day(20), RawDescription: "Pagamento recebido", Amount: dec("-500.00"), Classification: model.ClassPaymentReceived},
	}
}

func TestStandaloneByDate(t *testing.T) {
	s := testStore(t)
	seedBillPayment(t, s, "-500.00", 20)
	seedBillPayment(t, s, "-250.00", 20)
	seedBillPayment(t, s, "-99.00", 21)

	bps, err := s.StandaloneByDate(day(20))
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Less(t, bps[0].ID, bps[1].ID, "ordered by primary key")
}

func TestExpand_CreatesChildrenAndZeroesParent(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	ids, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "payment-received line has no ledger representation")

	got, err := s.GetBillPayment(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkExpanded, got.LinkStatus)
	assert.True(t, got.Amount.IsZero())

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	sum := decimal.Zero
	for _, c := range children {
		sum = sum.Add(c.Amount)
		require.NotNil(t, c.ParentBillPaymentID)
		assert.Equal(t, bp.ID, *c.ParentBillPaymentID)
	}
	assert.True(t, sum.Equal(dec("-500.00")), "children sum to the pre-expand amount, got %s", sum)
}

func TestExpand_NormalizesPositiveStatements(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	// Nubank-style export: purchases positive.
	lines := []model.StatementLine{
		{Date: day(5), RawDescription: "Mercado", Amount: dec("300.00"), Classification: model.ClassPurchase},
		{Date: day(8), RawDescription: "Farmácia", Amount: dec("200.00"), Classification: model.ClassPurchase},
	}
	_, _, err := s.Expand(bp.ID, lines, nil)
	require.NoError(t, err)

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, c := range children {
		sum = sum.Add(c.Amount)
	}
	assert.True(t, sum.Equal(dec("-500.00")), "signs flipped to the ledger's outflow convention")
}

func TestExpand_AlreadyExpanded(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	_, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)

	_, _, err = s.Expand(bp.ID, purchaseLines(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExpanded))

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2, "second expand must not double the children")
}

func TestExpand_ConcurrentSecondCallerLoses(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.Expand(bp.ID, purchaseLines(), nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyExpanded), "loser fails its precondition, got %v", err)
	}
	require.Equal(t, 1, winners, "exactly one expand wins")

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2, "the losing expand leaves no children behind")

	got, err := s.GetBillPayment(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkExpanded, got.LinkStatus)
	assert.True(t, got.Amount.IsZero())
}

func TestExpand_ReturnsAmountAtExpandTime(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	// The payment is edited after being picked as a candidate.
	require.NoError(t, s.db.Model(&model.BillPayment{}).
		Where("id = ?", bp.ID).Update("amount", dec("-480.00")).Error)

	_, prior, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)
	assert.True(t, prior.Amount.Equal(dec("-480.00")), "prior amount reflects the row under the lock, got %s", prior.Amount)
}

func TestExpand_ChildInsertFailureRollsBack(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	// Force the child insert to fail mid-transaction.
	require.NoError(t, s.db.Migrator().DropTable(&model.CreditCardTransaction{}))

	_, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialImport))

	got, err := s.GetBillPayment(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkStandalone, got.LinkStatus, "failed expand performs no mutation")
	assert.True(t, got.Amount.Equal(dec("-500.00")))
}

func TestExpand_NotFound(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Expand(12345, purchaseLines(), nil)
	assert.True(t, errors.Is(err, ErrBillPaymentNotFound))
}

func TestExpand_CategoryTagging(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	category := uint(7)
	_, _, err := s.Expand(bp.ID, purchaseLines(), &category)
	require.NoError(t, err)

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	for _, c := range children {
		require.NotNil(t, c.CategoryID)
		assert.Equal(t, uint(7), *c.CategoryID)
	}
}

func TestCollapse_RestoresAmount(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	_, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)

	restored, err := s.Collapse(bp.ID)
	require.NoError(t, err)
	assert.True(t, restored.Equal(dec("-500.00")))

	got, err := s.GetBillPayment(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LinkStandalone, got.LinkStatus)
	assert.True(t, got.Amount.Equal(dec("-500.00")), "expand then collapse is the identity")

	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestCollapse_UsesCurrentChildAmounts(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	_, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)

	// Edit one child after the expand; collapse restores the edited sum,
	// not a cached original.
	children, err := s.ChildrenOf(bp.ID)
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&children[0]).Update("amount", dec("-250.00")).Error)

	restored, err := s.Collapse(bp.ID)
	require.NoError(t, err)
	assert.True(t, restored.Equal(dec("-450.00")), "got %s", restored)
}

func TestCollapse_StandalonePreconditionFails(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	_, err := s.Collapse(bp.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotExpanded))

	got, err := s.GetBillPayment(bp.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("-500.00")), "failed collapse performs no mutation")
}

func TestDeleteBillPayment_RefusedWhileExpanded(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	_, _, err := s.Expand(bp.ID, purchaseLines(), nil)
	require.NoError(t, err)

	err = s.DeleteBillPayment(bp.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExpanded))

	_, err = s.GetBillPayment(bp.ID)
	assert.NoError(t, err, "payment must survive the refused delete")
}

func TestDeleteBillPayment_Standalone(t *testing.T) {
	s := testStore(t)
	bp := seedBillPayment(t, s, "-500.00", 20)

	require.NoError(t, s.DeleteBillPayment(bp.ID))
	_, err := s.GetBillPayment(bp.ID)
	assert.True(t, errors.Is(err, ErrBillPaymentNotFound))
}

func TestCreateUnlinked(t *testing.T) {
	s := testStore(t)

	txns := []model.CreditCardTransaction{
		{Date: day(5), Amount: dec("-30.00"), Description: "Mercado"},
		{Date: day(6), Amount: dec("-20.00"), Description: "Padaria"},
	}
	ids, err := s.CreateUnlinked(txns)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestMismatch_UpsertResetsDismissal(t *testing.T) {
	s := testStore(t)
	c := cycle.Cycle{Year: 2025, Month: time.January}

	require.NoError(t, s.RecordMismatch(c, nil, dec("12.00"), decimal.Zero))
	require.NoError(t, s.DismissMismatch(c))

	ms, err := s.Mismatches()
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.True(t, ms[0].Dismissed)

	// A fresh mismatching import on the same cycle clears the flag.
	require.NoError(t, s.RecordMismatch(c, nil, dec("-3.50"), decimal.Zero))

	ms, err = s.Mismatches()
	require.NoError(t, err)
	require.Len(t, ms, 1, "one marker per cycle")
	assert.False(t, ms[0].Dismissed)
	assert.True(t, ms[0].Delta.Equal(dec("-3.50")))
}

func TestDismissMismatch_UnknownCycle(t *testing.T) {
	s := testStore(t)
	err := s.DismissMismatch(cycle.Cycle{Year: 2030, Month: time.June})
	assert.True(t, errors.Is(err, ErrMismatchNotFound))
}
