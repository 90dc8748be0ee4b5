package core_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/core"
	"fuel-ledger/internal/store/memory"
)

func TestAccountRefName(t *testing.T) {
	tests := []struct {
		ref      core.AccountRef
		name     string
		category core.AccountCategory
	}{
		{core.InventoryAccount("Pertalite"), "Inventory Pertalite", core.Asset},
		{core.StorageShrinkageAccount("Pertalite"), "Shrinkage Pertalite", core.COGS},
		{core.TransitShrinkageAccount("Solar"), "Transit Shrinkage Solar", core.Expense},
		{core.GoodsInTransitAccount("PO-7"), "Goods In Transit PO-7", core.Asset},
		{core.BankAccount("BCA"), "Bank BCA", core.Asset},
		{core.CustodialAccount("PT Maju"), "Custodial Liability PT Maju", core.Liability},
		{core.FreeFuelAccount(), "Free Fuel Expense", core.Expense},
		{core.RealtimeProfitLossAccount(), "Realtime Profit/Loss", core.Equity},
		{core.RetainedEarningsAccount(), "Retained Earnings", core.Equity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := tt.ref.Name()
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.category, tt.ref.Category())
		})
	}
}

func TestAccountRefName_Qualifier(t *testing.T) {
	_, err := core.InventoryAccount("  ").Name()
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = core.AccountRef{Kind: core.KindCash, Qualifier: "petty"}.Name()
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = core.AccountRef{Kind: "nonsense"}.Name()
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestResolve_CustodianNamedLikeFixedAccount(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	for _, fixed := range []core.AccountRef{core.CustodialAdjustmentAccount(), core.CustodialMarkupAccount()} {
		acc, err := reg.Resolve(ctx, store, orgID, fixed)
		require.NoError(t, err)
		assert.Equal(t, core.Expense, acc.Category)
	}
	for _, custodian := range []string{"Adjustment", "Markup Expense"} {
		acc, err := reg.Resolve(ctx, store, orgID, core.CustodialAccount(custodian))
		require.NoError(t, err, custodian)
		assert.Equal(t, core.Liability, acc.Category)
		assert.Equal(t, "Custodial Liability "+custodian, acc.Name)
	}
}

func TestFindOrCreate_Idempotent(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	first, err := reg.FindOrCreate(ctx, store, orgID, "Cash", core.Asset, "")
	require.NoError(t, err)
	second, err := reg.FindOrCreate(ctx, store, orgID, " Cash ", core.Asset, "other description")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, core.AccountActive, second.Status)
	accounts, err := reg.List(ctx, store, orgID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestFindOrCreate_ScopedPerOrganisation(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	a, err := reg.FindOrCreate(ctx, store, 1, "Cash", core.Asset, "")
	require.NoError(t, err)
	b, err := reg.FindOrCreate(ctx, store, 2, "Cash", core.Asset, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestFindOrCreate_CategoryMismatch(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	_, err := reg.FindOrCreate(ctx, store, orgID, "Shrinkage Pertalite", core.COGS, "")
	require.NoError(t, err)
	_, err = reg.FindOrCreate(ctx, store, orgID, "Shrinkage Pertalite", core.Expense, "")

	var mismatch *core.AccountCategoryMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, core.COGS, mismatch.Existing)
	assert.Equal(t, core.Expense, mismatch.Declared)
	assert.ErrorIs(t, err, core.ErrAccountCategoryMismatch)
}

func TestFindOrCreate_RejectsBadInput(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())

	_, err := reg.FindOrCreate(context.Background(), store, orgID, "", core.Asset, "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = reg.FindOrCreate(context.Background(), store, orgID, "Cash", "income", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFindOrCreate_ConcurrentCallersConverge(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, err := reg.Resolve(ctx, store, orgID, core.InventoryAccount("Pertalite"))
			if assert.NoError(t, err) {
				ids[i] = acc.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	accounts, err := reg.List(ctx, store, orgID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestLookup_Missing(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())

	_, err := reg.Lookup(context.Background(), store, orgID, core.CashAccount())

	var missing *core.MissingAccountError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Cash", missing.Name)
}

func TestDeactivate(t *testing.T) {
	store := memory.New()
	reg := core.NewAccountRegistry(quietLog())
	ctx := context.Background()

	acc, err := reg.Resolve(ctx, store, orgID, core.CashAccount())
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, store, acc.ID))

	got, err := store.Accounts().Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AccountInactive, got.Status)

	assert.ErrorIs(t, reg.Deactivate(ctx, store, 999), core.ErrNotFound)
}
