package core_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/core"
	"fuel-ledger/internal/core/mocks"
)

func (s *station) service() *core.Station {
	return core.NewStation(s.store, core.NewLocalLocker(time.Minute), quietLog())
}

func account(t *testing.T, st *core.Station, s *station, ref core.AccountRef) *core.Account {
	t.Helper()
	acc, err := st.Accounts().Lookup(context.Background(), s.store, orgID, ref)
	require.NoError(t, err)
	return acc
}

func assertEntry(t *testing.T, e core.JournalEntry, debit, credit string) {
	t.Helper()
	assert.True(t, dec(debit).Equal(e.Debit), "debit: want %s, got %s", debit, e.Debit)
	assert.True(t, dec(credit).Equal(e.Credit), "credit: want %s, got %s", credit, e.Credit)
}

func TestApproveTankReading_BooksShrinkage(t *testing.T) {
	s := newStation(t, "10000")
	reading := s.store.AddReading(core.TankReading{TankID: s.tank.ID, Date: day("2024-01-02"), LiterValue: dec("9950")})
	st := s.service()

	result, err := st.ApproveTankReading(context.Background(), reading.ID, "manager")

	require.NoError(t, err)
	assert.True(t, dec("10000").Equal(result.BookStock))
	assert.True(t, dec("-50").Equal(result.Variance))
	require.NotNil(t, result.Transaction)
	tx := result.Transaction
	assertBalanced(t, tx)
	assert.Equal(t, day("2024-01-02"), tx.Date)
	assert.Equal(t, core.StatusApproved, tx.Status)

	shrink := account(t, st, s, core.StorageShrinkageAccount("Pertalite"))
	assert.Equal(t, core.COGS, shrink.Category)
	assertEntry(t, entryFor(t, tx, shrink.ID), "425000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "0", "425000")

	_, err = st.ApproveTankReading(context.Background(), reading.ID, "manager")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestApproveTankReading_NoVarianceNoTransaction(t *testing.T) {
	s := newStation(t, "10000")
	reading := s.store.AddReading(core.TankReading{TankID: s.tank.ID, Date: day("2024-01-02"), LiterValue: dec("10000")})

	result, err := s.service().ApproveTankReading(context.Background(), reading.ID, "manager")

	require.NoError(t, err)
	assert.Nil(t, result.Transaction)
	got, err := s.store.Tanks().GetReading(context.Background(), reading.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, got.Status)
	require.NotNil(t, got.Variance)
	assert.True(t, got.Variance.IsZero())
}

// depositStation sells Pertalite and Solar from two tanks in one shift.
func depositStation(t *testing.T, deposit core.Deposit) (*station, core.Shift) {
	t.Helper()
	s := newStation(t, "10000")
	solar := s.store.AddProduct(core.Product{OrgID: orgID, Name: "Solar", PurchasePrice: dec("6500"), SellingPrice: dec("8000")})
	t2 := s.store.AddTank(core.Tank{OrgID: orgID, ProductID: solar.ID, Name: "T2", InitialStock: dec("8000"), CreatedAt: day("2024-01-01")})

	completed := day("2024-01-05").Add(21 * time.Hour)
	sh := s.store.AddShift(core.Shift{
		OrgID:       orgID,
		Date:        day("2024-01-05"),
		Status:      core.ShiftCompleted,
		Operator:    "budi",
		CompletedAt: &completed,
		Readings: []core.NozzleReading{
			{NozzleID: 1, TankID: s.tank.ID, Type: core.ReadingOpen, Totalizer: dec("1000")},
			{NozzleID: 1, TankID: s.tank.ID, Type: core.ReadingClose, Totalizer: dec("1065"), PumpTest: dec("5")},
			{NozzleID: 2, TankID: t2.ID, Type: core.ReadingOpen, Totalizer: dec("500")},
			{NozzleID: 2, TankID: t2.ID, Type: core.ReadingClose, Totalizer: dec("550")},
		},
		Deposit: &deposit,
	})
	return s, sh
}

func TestApproveDeposit_JournalsRevenueAndCOGS(t *testing.T) {
	s, sh := depositStation(t, core.Deposit{
		TotalAmount: dec("980000"),
		Details: []core.DepositDetail{
			{Method: core.PaymentCash, Amount: dec("600000")},
			{Method: core.PaymentBank, BankName: "BCA", Amount: dec("380000")},
		},
		FreeFuel: []core.FreeFuelAdjustment{{Volume: dec("2"), Amount: dec("20000"), Reason: "ambulance"}},
	})
	st := s.service()
	ctx := context.Background()

	settlement, err := st.ApproveDeposit(ctx, sh.Deposit.ID, "manager")

	require.NoError(t, err)
	revenue := settlement.Revenue
	require.NotNil(t, revenue)
	assertBalanced(t, revenue)
	assert.Equal(t, day("2024-01-05"), revenue.Date)
	assertEntry(t, entryFor(t, revenue, account(t, st, s, core.CashAccount()).ID), "600000", "0")
	assertEntry(t, entryFor(t, revenue, account(t, st, s, core.BankAccount("BCA")).ID), "380000", "0")
	assertEntry(t, entryFor(t, revenue, account(t, st, s, core.FreeFuelAccount()).ID), "20000", "0")
	assertEntry(t, entryFor(t, revenue, account(t, st, s, core.SalesRevenueAccount("Pertalite")).ID), "0", "600000")
	assertEntry(t, entryFor(t, revenue, account(t, st, s, core.SalesRevenueAccount("Solar")).ID), "0", "400000")

	cogs := settlement.COGS
	require.NotNil(t, cogs)
	assertBalanced(t, cogs)
	assertEntry(t, entryFor(t, cogs, account(t, st, s, core.CostOfSalesAccount("Pertalite")).ID), "510000", "0")
	assertEntry(t, entryFor(t, cogs, account(t, st, s, core.PumpTestAccount("Pertalite")).ID), "42500", "0")
	assertEntry(t, entryFor(t, cogs, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "0", "552500")
	assertEntry(t, entryFor(t, cogs, account(t, st, s, core.CostOfSalesAccount("Solar")).ID), "325000", "0")
	assertEntry(t, entryFor(t, cogs, account(t, st, s, core.InventoryAccount("Solar")).ID), "0", "325000")

	dep, err := s.store.Shifts().GetDeposit(ctx, sh.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, dep.Status)
	assert.Equal(t, 1, dep.Version)

	_, err = st.ApproveDeposit(ctx, sh.Deposit.ID, "manager")
	assert.ErrorIs(t, err, core.ErrConcurrentApproval)
}

func TestApproveDeposit_MismatchRollsBack(t *testing.T) {
	s, sh := depositStation(t, core.Deposit{
		TotalAmount: dec("990000"),
		Details: []core.DepositDetail{
			{Method: core.PaymentCash, Amount: dec("600000")},
			{Method: core.PaymentBank, BankName: "BCA", Amount: dec("380000")},
		},
	})
	st := s.service()
	ctx := context.Background()

	_, err := st.ApproveDeposit(ctx, sh.Deposit.ID, "manager")

	var unbalanced *core.UnbalancedLedgerError
	require.ErrorAs(t, err, &unbalanced)
	dep, err := s.store.Shifts().GetDeposit(ctx, sh.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, dep.Status)
	assert.Equal(t, 0, dep.Version)
	accounts, err := st.Accounts().List(ctx, s.store, orgID)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestApproveDeposit_SettlementMustCoverSales(t *testing.T) {
	s, sh := depositStation(t, core.Deposit{
		TotalAmount: dec("900000"),
		Details:     []core.DepositDetail{{Method: core.PaymentCash, Amount: dec("900000")}},
	})

	_, err := s.service().ApproveDeposit(context.Background(), sh.Deposit.ID, "manager")

	assert.ErrorIs(t, err, core.ErrUnbalancedLedger)
}

func TestApproveDeposit_LockHeldElsewhere(t *testing.T) {
	s, sh := depositStation(t, core.Deposit{})
	ctrl := gomock.NewController(t)
	locker := mocks.NewMockLocker(ctrl)
	locker.EXPECT().
		Obtain(gomock.Any(), fmt.Sprintf("deposit-approval:shift:%d", sh.ID)).
		Return(nil, core.ErrLockNotObtained)

	_, err := core.NewStation(s.store, locker, quietLog()).ApproveDeposit(context.Background(), sh.Deposit.ID, "manager")

	assert.ErrorIs(t, err, core.ErrLockNotObtained)
	assert.True(t, core.IsRetryable(err))
}

func TestApproveDeposit_ReleasesLock(t *testing.T) {
	s, sh := depositStation(t, core.Deposit{
		TotalAmount: dec("1000000"),
		Details:     []core.DepositDetail{{Method: core.PaymentCash, Amount: dec("1000000")}},
	})
	ctrl := gomock.NewController(t)
	lock := mocks.NewMockLock(ctrl)
	lock.EXPECT().Release(gomock.Any()).Return(nil)
	locker := mocks.NewMockLocker(ctrl)
	locker.EXPECT().Obtain(gomock.Any(), gomock.Any()).Return(lock, nil)

	_, err := core.NewStation(s.store, locker, quietLog()).ApproveDeposit(context.Background(), sh.Deposit.ID, "manager")

	require.NoError(t, err)
}

func TestApproveDelivery_WithoutOrderBooksTransitLoss(t *testing.T) {
	s := newStation(t, "0")
	d := s.store.AddDelivery(core.Delivery{OrgID: orgID, TankID: s.tank.ID, Date: day("2024-01-03"), OrderedVolume: dec("1000"), MeasuredVolume: dec("980")})
	st := s.service()

	tx, err := st.ApproveDelivery(context.Background(), d.ID, "manager")

	require.NoError(t, err)
	require.NotNil(t, tx)
	assertBalanced(t, tx)
	shrink := account(t, st, s, core.TransitShrinkageAccount("Pertalite"))
	assert.Equal(t, core.Expense, shrink.Category)
	assertEntry(t, entryFor(t, tx, shrink.ID), "170000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "0", "170000")

	level, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), s.tank.ID, day("2024-01-03"))
	require.NoError(t, err)
	assert.True(t, dec("980").Equal(level.Liters), "measured volume enters the tank")

	_, err = st.ApproveDelivery(context.Background(), d.ID, "manager")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestApproveDelivery_ClearsGoodsInTransit(t *testing.T) {
	s := newStation(t, "0")
	delivered := dec("2000")
	price := dec("8500")
	d := s.store.AddDelivery(core.Delivery{
		OrgID:            orgID,
		TankID:           s.tank.ID,
		Date:             day("2024-01-03"),
		OrderedVolume:    dec("2000"),
		DeliveredVolume:  &delivered,
		MeasuredVolume:   dec("1990"),
		PurchaseOrderRef: "PO-7",
		UnitPrice:        &price,
	})
	st := s.service()

	tx, err := st.ApproveDelivery(context.Background(), d.ID, "manager")

	require.NoError(t, err)
	assertBalanced(t, tx)
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "16915000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.TransitShrinkageAccount("Pertalite")).ID), "85000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.GoodsInTransitAccount("PO-7")).ID), "0", "17000000")
}

func TestChangePurchasePrice_RevaluesStock(t *testing.T) {
	s := newStation(t, "1000")
	st := s.service()

	result, err := st.ChangePurchasePrice(context.Background(), core.PriceChangeRequest{
		ProductID:        s.product.ID,
		NewPurchasePrice: dec("13500"),
		EffectiveAt:      day("2024-01-10").Add(7 * time.Hour),
		InTransit:        []core.StockLot{{Location: core.LotInTransit, OrderRef: "PO-1", Volume: dec("500")}},
		Actor:            "manager",
	})

	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(result.Warehouse.Volume))
	require.Len(t, result.Adjustments, 2)

	revenue := account(t, st, s, core.PriceAdjustmentRevenueAccount())
	warehouse := result.Adjustments[0]
	assertBalanced(t, warehouse)
	assert.Equal(t, day("2024-01-10"), warehouse.Date)
	assertEntry(t, entryFor(t, warehouse, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "5000000", "0")
	assertEntry(t, entryFor(t, warehouse, revenue.ID), "0", "5000000")

	transit := result.Adjustments[1]
	assertEntry(t, entryFor(t, transit, account(t, st, s, core.GoodsInTransitAccount("PO-1")).ID), "2500000", "0")
	assertEntry(t, entryFor(t, transit, revenue.ID), "0", "2500000")

	product, err := s.store.Products().GetProduct(context.Background(), s.product.ID)
	require.NoError(t, err)
	assert.True(t, dec("13500").Equal(product.PurchasePrice))
	assert.True(t, dec("10000").Equal(product.SellingPrice), "selling price kept")
	changes, err := s.store.Products().PriceChanges(context.Background(), s.product.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, dec("8500").Equal(changes[0].OldPurchasePrice))
}

func TestChangePurchasePrice_DecreaseIsExpensed(t *testing.T) {
	s := newStation(t, "100")
	st := s.service()

	result, err := st.ChangePurchasePrice(context.Background(), core.PriceChangeRequest{
		ProductID:        s.product.ID,
		NewPurchasePrice: dec("8000"),
		EffectiveAt:      day("2024-01-10"),
		Actor:            "manager",
	})

	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)
	tx := result.Adjustments[0]
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.PriceAdjustmentExpenseAccount()).ID), "50000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "0", "50000")
}

func TestChangePurchasePrice_Unchanged(t *testing.T) {
	s := newStation(t, "100")

	_, err := s.service().ChangePurchasePrice(context.Background(), core.PriceChangeRequest{
		ProductID:        s.product.ID,
		NewPurchasePrice: dec("8500"),
		Actor:            "manager",
	})

	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFillCustodial(t *testing.T) {
	s := newStation(t, "1000")
	st := s.service()
	req := core.CustodialFillRequest{
		OrgID:     orgID,
		Custodian: "PT Maju",
		ProductID: s.product.ID,
		Volume:    dec("100"),
		Date:      day("2024-01-04"),
		Reference: "CF-1",
		Actor:     "manager",
	}

	tx, err := st.FillCustodial(context.Background(), req)

	require.NoError(t, err)
	assertBalanced(t, tx)
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.InventoryAccount("Pertalite")).ID), "850000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.CustodialMarkupAccount()).ID), "150000", "0")
	custodial := account(t, st, s, core.CustodialAccount("PT Maju"))
	assert.Equal(t, core.Liability, custodial.Category)
	assertEntry(t, entryFor(t, tx, custodial.ID), "0", "1000000")

	_, err = st.FillCustodial(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrDuplicateTransaction)

	req.Reference = "CF-2"
	req.Volume = decimal.Zero
	_, err = st.FillCustodial(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAdjustCustodial(t *testing.T) {
	s := newStation(t, "0")
	st := s.service()

	tx, err := st.AdjustCustodial(context.Background(), core.CustodialAdjustmentRequest{
		OrgID:     orgID,
		Custodian: "PT Maju",
		Amount:    dec("-50000"),
		Reason:    "returned fuel",
		Date:      day("2024-01-06"),
		Actor:     "manager",
	})

	require.NoError(t, err)
	assertBalanced(t, tx)
	assert.Equal(t, "returned fuel", tx.Notes)
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.CustodialAccount("PT Maju")).ID), "50000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.CustodialAdjustmentAccount()).ID), "0", "50000")
}

func TestCloseMonth(t *testing.T) {
	s := newStation(t, "0")
	st := s.service()
	ctx := context.Background()
	cash, err := st.Accounts().Resolve(ctx, s.store, orgID, core.CashAccount())
	require.NoError(t, err)
	pl, err := st.Accounts().Resolve(ctx, s.store, orgID, core.RealtimeProfitLossAccount())
	require.NoError(t, err)
	approver := "manager"
	_, err = st.RecordTransaction(ctx, core.RecordRequest{
		OrgID:       orgID,
		Date:        day("2024-01-15"),
		Description: "realtime profit",
		Type:        core.TxCash,
		CreatedBy:   "sari",
		Status:      core.StatusApproved,
		ApprovedBy:  &approver,
		Entries: []core.EntryLine{
			{AccountID: cash.ID, Debit: dec("1000")},
			{AccountID: pl.ID, Credit: dec("1000")},
		},
	})
	require.NoError(t, err)

	tx, err := st.CloseMonth(ctx, orgID, 2024, time.January, "manager")

	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, day("2024-01-31"), tx.Date)
	assert.Equal(t, core.TxClosing, tx.Type)
	assertEntry(t, entryFor(t, tx, pl.ID), "1000", "0")
	assertEntry(t, entryFor(t, tx, account(t, st, s, core.RetainedEarningsAccount()).ID), "0", "1000")

	again, err := st.CloseMonth(ctx, orgID, 2024, time.January, "manager")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestCloseMonth_WithoutProfitLossAccount(t *testing.T) {
	s := newStation(t, "0")

	tx, err := s.service().CloseMonth(context.Background(), orgID, 2024, time.January, "manager")

	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestRecordTransaction_ApprovedNeedsApprover(t *testing.T) {
	s := newStation(t, "0")

	_, err := s.service().RecordTransaction(context.Background(), core.RecordRequest{
		OrgID:       orgID,
		Date:        day("2024-01-15"),
		Description: "manual",
		Type:        core.TxCash,
		Status:      core.StatusApproved,
	})

	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
