package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// productSales is the volume and value a deposit settles for one product.
type productSales struct {
	product  Product
	prices   PriceSnapshot
	sales    decimal.Decimal
	pumpTest decimal.Decimal
}

// Settlement is the pair of transactions produced by one deposit.
type Settlement struct {
	Revenue *Transaction `json:"revenue,omitempty"`
	COGS    *Transaction `json:"cogs,omitempty"`
}

// Deposit journals an approved deposit as a revenue transaction and a COGS
// transaction, both dated at the shift's operational day. Received money,
// free fuel and custodial draws must add up exactly to sales value.
func (t *Translator) Deposit(ctx context.Context, uow UnitOfWork, shift Shift, deposit Deposit, actor string) (*Settlement, error) {
	sales, err := t.shiftSales(ctx, uow, shift)
	if err != nil {
		return nil, err
	}

	revenue, err := t.depositRevenue(ctx, uow, shift, deposit, sales, actor)
	if err != nil {
		return nil, err
	}
	cogs, err := t.depositCOGS(ctx, uow, shift, deposit, sales, actor)
	if err != nil {
		return nil, err
	}
	return &Settlement{Revenue: revenue, COGS: cogs}, nil
}

// settlementTime is the instant prices are taken at for a shift.
func settlementTime(shift Shift) time.Time {
	if shift.CompletedAt != nil && Day(*shift.CompletedAt).Equal(Day(shift.Date)) {
		return *shift.CompletedAt
	}
	return EndOfDay(shift.Date)
}

func (t *Translator) shiftSales(ctx context.Context, uow UnitOfWork, shift Shift) ([]*productSales, error) {
	volumes := shift.TankVolumes()
	tankIDs := make([]int64, 0, len(volumes))
	for id := range volumes {
		tankIDs = append(tankIDs, id)
	}
	sort.Slice(tankIDs, func(i, j int) bool { return tankIDs[i] < tankIDs[j] })

	prices := NewPriceResolver(uow, t.log)
	at := settlementTime(shift)
	byProduct := make(map[int64]*productSales)
	var out []*productSales
	for _, tankID := range tankIDs {
		tank, err := uow.Tanks().GetTank(ctx, tankID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tank %d: %w", tankID, err)
		}
		ps, ok := byProduct[tank.ProductID]
		if !ok {
			history, err := prices.History(ctx, tank.ProductID)
			if err != nil {
				return nil, err
			}
			snap, warn := history.At(at)
			if warn != nil {
				t.log.WithFields(logrus.Fields{"shift_id": shift.ID, "product_id": tank.ProductID}).Warn(warn.Error())
			}
			ps = &productSales{product: history.Product, prices: snap}
			byProduct[tank.ProductID] = ps
			out = append(out, ps)
		}
		v := volumes[tankID]
		ps.sales = ps.sales.Add(v.Sales)
		ps.pumpTest = ps.pumpTest.Add(v.PumpTest)
	}
	return out, nil
}

func (t *Translator) depositRevenue(ctx context.Context, uow UnitOfWork, shift Shift, deposit Deposit, sales []*productSales, actor string) (*Transaction, error) {
	res := t.resolver(ctx, uow, deposit.OrgID)
	set := newEntrySet()

	declared := decimal.Zero
	for _, d := range deposit.Details {
		if d.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: deposit %d has a negative %s amount", ErrInvalidInput, deposit.ID, d.Method)
		}
		var ref AccountRef
		switch d.Method {
		case PaymentCash:
			ref = CashAccount()
		case PaymentCoupon:
			ref = CouponAccount()
		case PaymentBank:
			if strings.TrimSpace(d.BankName) == "" {
				return nil, fmt.Errorf("%w: deposit %d has a bank payment without bank name", ErrInvalidInput, deposit.ID)
			}
			ref = BankAccount(d.BankName)
		default:
			return nil, fmt.Errorf("%w: deposit %d has unknown payment method %q", ErrInvalidInput, deposit.ID, d.Method)
		}
		declared = declared.Add(d.Amount)
		if acc := res.get(ref); acc != nil {
			set.debit(acc, d.Amount, string(d.Method))
		}
	}
	if !declared.Equal(deposit.TotalAmount) {
		return nil, &UnbalancedLedgerError{Debit: declared, Credit: deposit.TotalAmount, Reason: "deposit breakdown does not match declared total"}
	}

	for _, f := range deposit.FreeFuel {
		if acc := res.get(FreeFuelAccount()); acc != nil {
			set.debit(acc, f.Amount, f.Reason)
		}
	}
	for _, c := range deposit.CustodialDraws {
		if strings.TrimSpace(c.Custodian) == "" {
			return nil, fmt.Errorf("%w: deposit %d has a custodial draw without custodian", ErrInvalidInput, deposit.ID)
		}
		if acc := res.get(CustodialAccount(c.Custodian)); acc != nil {
			set.debit(acc, c.Amount, fmt.Sprintf("%s L drawn", c.Volume.String()))
		}
	}

	for _, ps := range sales {
		value := money(ps.sales.Mul(ps.prices.SellingPrice))
		if acc := res.get(SalesRevenueAccount(ps.product.Name)); acc != nil {
			set.credit(acc, value, fmt.Sprintf("%s L x %s", ps.sales.String(), ps.prices.SellingPrice.String()))
		}
	}
	if res.err != nil {
		return nil, res.err
	}

	debit, credit := set.totals()
	if !debit.Equal(credit) {
		return nil, &UnbalancedLedgerError{Debit: debit, Credit: credit, Reason: fmt.Sprintf("deposit %d settlement does not match sales value", deposit.ID)}
	}
	if set.empty() {
		return nil, nil
	}

	req := autoApproved(deposit.OrgID, shift.Date, TxRevenue,
		fmt.Sprintf("Shift %d sales", shift.ID), actor,
		&SourceRef{Type: sourceDeposit, ID: deposit.ID}, fmt.Sprintf("deposit-revenue-%d", deposit.ID), set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

func (t *Translator) depositCOGS(ctx context.Context, uow UnitOfWork, shift Shift, deposit Deposit, sales []*productSales, actor string) (*Transaction, error) {
	res := t.resolver(ctx, uow, deposit.OrgID)
	set := newEntrySet()
	for _, ps := range sales {
		cost := money(ps.sales.Mul(ps.prices.PurchasePrice))
		test := money(ps.pumpTest.Mul(ps.prices.PurchasePrice))
		if cost.IsZero() && test.IsZero() {
			continue
		}
		cogs := res.get(CostOfSalesAccount(ps.product.Name))
		pump := res.get(PumpTestAccount(ps.product.Name))
		inventory := res.get(InventoryAccount(ps.product.Name))
		if res.err != nil {
			return nil, res.err
		}
		set.debit(cogs, cost, fmt.Sprintf("%s L x %s", ps.sales.String(), ps.prices.PurchasePrice.String()))
		set.debit(pump, test, fmt.Sprintf("%s L pump test", ps.pumpTest.String()))
		set.credit(inventory, cost.Add(test), "")
	}
	if set.empty() {
		return nil, nil
	}
	req := autoApproved(deposit.OrgID, shift.Date, TxCOGS,
		fmt.Sprintf("Shift %d cost of sales", shift.ID), actor,
		&SourceRef{Type: sourceDeposit, ID: deposit.ID}, fmt.Sprintf("deposit-cogs-%d", deposit.ID), set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

// CustodialFillInput is fuel taken into custody for a third party.
type CustodialFillInput struct {
	OrgID          int64
	Custodian      string
	Product        Product
	Volume         decimal.Decimal
	Prices         PriceSnapshot
	Date           time.Time
	IdempotencyKey string
	Actor          string
}

// CustodialFill credits the custodian's liability at selling value and debits
// inventory at purchase value, booking the difference to markup expense.
func (t *Translator) CustodialFill(ctx context.Context, uow UnitOfWork, in CustodialFillInput) (*Transaction, error) {
	if !in.Volume.IsPositive() {
		return nil, fmt.Errorf("%w: custodial fill volume must be positive, got %s", ErrInvalidInput, in.Volume.String())
	}
	liability := money(in.Volume.Mul(in.Prices.SellingPrice))
	inventoryValue := money(in.Volume.Mul(in.Prices.PurchasePrice))
	markup := liability.Sub(inventoryValue)

	res := t.resolver(ctx, uow, in.OrgID)
	custodial := res.get(CustodialAccount(in.Custodian))
	inventory := res.get(InventoryAccount(in.Product.Name))
	markupAcc := res.get(CustodialMarkupAccount())
	if res.err != nil {
		return nil, res.err
	}

	set := newEntrySet()
	note := fmt.Sprintf("%s L %s", in.Volume.String(), in.Product.Name)
	set.debit(inventory, inventoryValue, note)
	if markup.IsNegative() {
		set.credit(markupAcc, markup.Neg(), note)
	} else {
		set.debit(markupAcc, markup, note)
	}
	set.credit(custodial, liability, note)
	if set.empty() {
		return nil, nil
	}

	req := autoApproved(in.OrgID, in.Date, TxCustodial,
		fmt.Sprintf("Custodial fill %s", in.Custodian), in.Actor, nil, in.IdempotencyKey, set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

type CustodialAdjustmentInput struct {
	OrgID     int64
	Custodian string
	// Amount raises the custodian's balance when positive, lowers it when negative.
	Amount         decimal.Decimal
	Reason         string
	Date           time.Time
	IdempotencyKey string
	Actor          string
}

// CustodialAdjustment corrects a custodial liability against the adjustment account.
func (t *Translator) CustodialAdjustment(ctx context.Context, uow UnitOfWork, in CustodialAdjustmentInput) (*Transaction, error) {
	amount := money(in.Amount)
	if amount.IsZero() {
		return nil, nil
	}
	res := t.resolver(ctx, uow, in.OrgID)
	custodial := res.get(CustodialAccount(in.Custodian))
	adjustment := res.get(CustodialAdjustmentAccount())
	if res.err != nil {
		return nil, res.err
	}

	set := newEntrySet()
	if amount.IsPositive() {
		set.debit(adjustment, amount, in.Reason)
		set.credit(custodial, amount, in.Reason)
	} else {
		set.debit(custodial, amount.Neg(), in.Reason)
		set.credit(adjustment, amount.Neg(), in.Reason)
	}
	req := autoApproved(in.OrgID, in.Date, TxCustodial,
		fmt.Sprintf("Custodial adjustment %s", in.Custodian), in.Actor, nil, in.IdempotencyKey, set)
	req.Notes = in.Reason
	return t.ledger.RecordInTx(ctx, uow, req)
}

// MonthlyClosing closes the month in two entries dated at its last day. The
// first moves the period's revenue, expense and COGS movements into the
// realtime profit/loss account. The second transfers the realtime balance into
// retained earnings. It returns the last entry written, or nil when there was
// nothing to close.
func (t *Translator) MonthlyClosing(ctx context.Context, uow UnitOfWork, orgID int64, period Period, actor string) (*Transaction, error) {
	label := period.End.Format("2006-01")
	result, err := t.closePeriodResult(ctx, uow, orgID, period, label, actor)
	if err != nil {
		return nil, err
	}

	pl, err := t.accounts.Lookup(ctx, uow, orgID, RealtimeProfitLossAccount())
	if err != nil {
		if errors.Is(err, ErrMissingAccount) {
			return result, nil
		}
		return nil, err
	}
	balances, err := uow.Transactions().AccountBalances(ctx, orgID, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load account balances: %w", err)
	}
	balance := decimal.Zero
	for _, b := range balances {
		if b.Account.ID == pl.ID {
			balance = b.Balance()
			break
		}
	}
	if balance.IsZero() {
		return result, nil
	}

	retained, err := t.accounts.Resolve(ctx, uow, orgID, RetainedEarningsAccount())
	if err != nil {
		return nil, err
	}
	set := newEntrySet()
	if balance.IsPositive() {
		set.debit(pl, balance, "Profit "+label)
		set.credit(retained, balance, "Profit "+label)
	} else {
		set.debit(retained, balance.Neg(), "Loss "+label)
		set.credit(pl, balance.Neg(), "Loss "+label)
	}
	req := autoApproved(orgID, period.End, TxClosing,
		fmt.Sprintf("Monthly closing %s", label), actor, nil, "", set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

// closePeriodResult zeroes the period movement of every revenue, expense and
// COGS account against the realtime profit/loss account. Lines of earlier
// closings count, so closing the same month twice writes nothing new.
func (t *Translator) closePeriodResult(ctx context.Context, uow UnitOfWork, orgID int64, period Period, label, actor string) (*Transaction, error) {
	lines, err := uow.Transactions().Lines(ctx, orgID, period.Start, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger lines: %w", err)
	}
	net := make(map[int64]decimal.Decimal)
	accounts := make(map[int64]Account)
	var order []int64
	for _, l := range lines {
		switch l.Account.Category {
		case Revenue, Expense, COGS:
		default:
			continue
		}
		if _, ok := accounts[l.Account.ID]; !ok {
			accounts[l.Account.ID] = l.Account
			order = append(order, l.Account.ID)
		}
		net[l.Account.ID] = net[l.Account.ID].Add(l.Entry.Debit).Sub(l.Entry.Credit)
	}

	set := newEntrySet()
	profit := decimal.Zero
	for _, id := range order {
		n := net[id]
		acc := accounts[id]
		switch {
		case n.IsPositive():
			set.credit(&acc, n, "Close "+label)
		case n.IsNegative():
			set.debit(&acc, n.Neg(), "Close "+label)
		default:
			continue
		}
		profit = profit.Sub(n)
	}
	if set.empty() {
		return nil, nil
	}

	pl, err := t.accounts.Resolve(ctx, uow, orgID, RealtimeProfitLossAccount())
	if err != nil {
		return nil, err
	}
	if profit.IsPositive() {
		set.credit(pl, profit, "Profit "+label)
	} else if profit.IsNegative() {
		set.debit(pl, profit.Neg(), "Loss "+label)
	}
	req := autoApproved(orgID, period.End, TxClosing,
		fmt.Sprintf("Period result %s", label), actor, nil, "", set)
	return t.ledger.RecordInTx(ctx, uow, req)
}
