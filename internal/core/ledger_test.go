package core_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/core"
	"fuel-ledger/internal/store/memory"
)

type ledgerFixture struct {
	store  *memory.Store
	ledger *core.Ledger
	cash   *core.Account
	sales  *core.Account
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	cash, err := reg.Resolve(context.Background(), store, orgID, core.CashAccount())
	require.NoError(t, err)
	sales, err := reg.Resolve(context.Background(), store, orgID, core.SalesRevenueAccount("Pertalite"))
	require.NoError(t, err)
	return &ledgerFixture{store: store, ledger: core.NewLedger(store, quietLog()), cash: cash, sales: sales}
}

func (f *ledgerFixture) request(debit, credit string) core.RecordRequest {
	return core.RecordRequest{
		OrgID:       orgID,
		Date:        day("2024-01-15"),
		Description: "cash sale",
		Type:        core.TxCash,
		CreatedBy:   "sari",
		Entries: []core.EntryLine{
			{AccountID: f.cash.ID, Debit: dec(debit)},
			{AccountID: f.sales.ID, Credit: dec(credit)},
		},
	}
}

func (f *ledgerFixture) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	balances, err := f.ledger.Balances(context.Background(), orgID, day("2024-12-31"))
	require.NoError(t, err)
	for _, b := range balances {
		if b.Account.ID == accountID {
			return b.Balance()
		}
	}
	t.Fatalf("no balance for account %d", accountID)
	return decimal.Zero
}

func TestRecord_UnbalancedPersistsNothing(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.ledger.Record(context.Background(), f.request("100", "90"))

	var unbalanced *core.UnbalancedLedgerError
	require.ErrorAs(t, err, &unbalanced)
	assert.True(t, dec("100").Equal(unbalanced.Debit))
	assert.True(t, dec("90").Equal(unbalanced.Credit))
	assert.True(t, core.IsPermanent(err))

	lines, err := f.store.Transactions().Lines(context.Background(), orgID, day("2024-01-01"), day("2025-01-01"))
	require.NoError(t, err)
	assert.Empty(t, lines)
	_, err = f.store.Transactions().Get(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecord_ExactDecimalBalance(t *testing.T) {
	f := newLedgerFixture(t)
	req := f.request("0.1", "0.1")
	req.Entries = append(req.Entries, core.EntryLine{AccountID: f.cash.ID, Debit: dec("0.2")}, core.EntryLine{AccountID: f.sales.ID, Credit: dec("0.2")})

	tx, err := f.ledger.Record(context.Background(), req)

	require.NoError(t, err)
	assertBalanced(t, tx)
	assert.Len(t, tx.Entries, 4)
}

func TestRecord_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	tests := []struct {
		name   string
		mutate func(r *core.RecordRequest)
		want   error
	}{
		{"no entries", func(r *core.RecordRequest) { r.Entries = nil }, core.ErrEmptyTransaction},
		{"no description", func(r *core.RecordRequest) { r.Description = "  " }, core.ErrInvalidInput},
		{"no date", func(r *core.RecordRequest) { r.Date = day("0001-01-01") }, core.ErrInvalidInput},
		{"negative amount", func(r *core.RecordRequest) {
			r.Entries[0].Debit = dec("-100")
			r.Entries[1].Credit = dec("-100")
		}, core.ErrInvalidInput},
		{"zero line", func(r *core.RecordRequest) {
			r.Entries = append(r.Entries, core.EntryLine{AccountID: f.cash.ID})
		}, core.ErrInvalidInput},
		{"rejected status", func(r *core.RecordRequest) { r.Status = core.StatusRejected }, core.ErrInvalidInput},
		{"unknown account", func(r *core.RecordRequest) { r.Entries[0].AccountID = 999 }, core.ErrMissingAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("100", "100")
			tt.mutate(&req)
			_, err := f.ledger.Record(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecord_AccountOfAnotherOrganisation(t *testing.T) {
	f := newLedgerFixture(t)
	other, err := core.NewAccountRegistry(quietLog()).Resolve(context.Background(), f.store, 2, core.CashAccount())
	require.NoError(t, err)
	req := f.request("100", "100")
	req.Entries[0].AccountID = other.ID

	_, err = f.ledger.Record(context.Background(), req)

	var missing *core.MissingAccountError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, other.ID, missing.AccountID)
}

func TestRecord_InactiveAccount(t *testing.T) {
	f := newLedgerFixture(t)
	require.NoError(t, core.NewAccountRegistry(quietLog()).Deactivate(context.Background(), f.store, f.sales.ID))

	_, err := f.ledger.Record(context.Background(), f.request("100", "100"))

	assert.ErrorIs(t, err, core.ErrInactiveAccount)
}

func TestRecord_DuplicateIdempotencyKey(t *testing.T) {
	f := newLedgerFixture(t)
	req := f.request("100", "100")
	req.IdempotencyKey = "sale-1"

	_, err := f.ledger.Record(context.Background(), req)
	require.NoError(t, err)
	_, err = f.ledger.Record(context.Background(), req)

	assert.ErrorIs(t, err, core.ErrDuplicateTransaction)
}

func TestApprovalGatesBalances(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	tx, err := f.ledger.Record(ctx, f.request("100", "100"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, tx.Status)
	assert.True(t, f.balance(t, f.cash.ID).IsZero(), "pending transactions do not count")

	require.NoError(t, f.ledger.Approve(ctx, tx.ID, "manager"))
	assert.True(t, dec("100").Equal(f.balance(t, f.cash.ID)))
	assert.True(t, dec("100").Equal(f.balance(t, f.sales.ID)), "revenue is credit-normal")

	assert.ErrorIs(t, f.ledger.Approve(ctx, tx.ID, "manager"), core.ErrInvalidTransition)
	assert.ErrorIs(t, f.ledger.Reject(ctx, tx.ID, "manager"), core.ErrInvalidTransition)
	assert.ErrorIs(t, f.ledger.Approve(ctx, tx.ID, ""), core.ErrInvalidInput)
}

func TestReject(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	tx, err := f.ledger.Record(ctx, f.request("100", "100"))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Reject(ctx, tx.ID, "manager"))

	got, err := f.store.Transactions().Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, got.Status)
	assert.True(t, f.balance(t, f.cash.ID).IsZero())
}

func TestBalances_AsOfIsInclusive(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	req := f.request("100", "100")
	req.Status = core.StatusApproved
	_, err := f.ledger.Record(ctx, req)
	require.NoError(t, err)

	before, err := f.ledger.Balances(ctx, orgID, day("2024-01-14"))
	require.NoError(t, err)
	on, err := f.ledger.Balances(ctx, orgID, day("2024-01-15"))
	require.NoError(t, err)

	for _, b := range before {
		assert.True(t, b.Balance().IsZero())
	}
	for _, b := range on {
		assert.True(t, dec("100").Equal(b.Balance()), "%s", b.Account.Name)
	}
}

func TestStatement(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	for _, d := range []string{"2024-01-05", "2024-01-15", "2024-01-20"} {
		req := f.request("100", "100")
		req.Date = day(d)
		req.Status = core.StatusApproved
		_, err := f.ledger.Record(ctx, req)
		require.NoError(t, err)
	}
	p, err := core.NewPeriod(day("2024-01-10"), day("2024-01-31"))
	require.NoError(t, err)

	stmt, err := f.ledger.Statement(ctx, orgID, f.cash.ID, p)

	require.NoError(t, err)
	assert.True(t, dec("100").Equal(stmt.OpeningBalance))
	require.Len(t, stmt.Lines, 2)
	assert.True(t, dec("200").Equal(stmt.Lines[0].Balance))
	assert.True(t, dec("300").Equal(stmt.ClosingBalance))

	_, err = f.ledger.Statement(ctx, 2, f.cash.ID, p)
	assert.ErrorIs(t, err, core.ErrMissingAccount)
}
