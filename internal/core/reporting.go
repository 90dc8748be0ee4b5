package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Purchase value sources. Mixed means some deliveries were valued from their
// journal entries and the rest at the price of the delivery day.
const (
	PurchaseFromLedger   = "ledger"
	PurchaseFromEstimate = "estimated"
	PurchaseFromMixed    = "mixed"
)

// AccountLine is one account in a report section. Balance is expressed on the
// section's sign: income positive, cost positive, asset debit-positive,
// liability and equity credit-positive.
type AccountLine struct {
	AccountID int64           `json:"account_id"`
	Name      string          `json:"name"`
	Category  AccountCategory `json:"category"`
	Balance   decimal.Decimal `json:"balance"`
}

// ProductValuation is the stock-movement COGS computation of one product.
type ProductValuation struct {
	ProductID             int64           `json:"product_id"`
	Name                  string          `json:"name"`
	OpeningVolume         decimal.Decimal `json:"opening_volume"`
	PurchaseVolume        decimal.Decimal `json:"purchase_volume"`
	SalesVolume           decimal.Decimal `json:"sales_volume"`
	PumpTestVolume        decimal.Decimal `json:"pump_test_volume"`
	ExpectedClosingVolume decimal.Decimal `json:"expected_closing_volume"`
	OpeningPrice          decimal.Decimal `json:"opening_price"`
	ClosingPrice          decimal.Decimal `json:"closing_price"`
	OpeningValue          decimal.Decimal `json:"opening_value"`
	PurchaseValue         decimal.Decimal `json:"purchase_value"`
	PurchaseValueSource   string          `json:"purchase_value_source"`
	PumpTestValue         decimal.Decimal `json:"pump_test_value"`
	ShrinkageValue        decimal.Decimal `json:"shrinkage_value"`
	ClosingValue          decimal.Decimal `json:"closing_value"`
	COGS                  decimal.Decimal `json:"cogs"`
	SalesRevenue          decimal.Decimal `json:"sales_revenue"`
	GrossProfit           decimal.Decimal `json:"gross_profit"`
}

type IncomeSection struct {
	SalesVolume    decimal.Decimal `json:"sales_volume"`
	SalesRevenue   decimal.Decimal `json:"sales_revenue"`
	COGS           decimal.Decimal `json:"cogs"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	GrossMarginPct decimal.Decimal `json:"gross_margin_pct"`
	// MarginUndefined is set when there was no revenue to compute a margin on.
	MarginUndefined bool `json:"margin_undefined,omitempty"`
}

type BalanceSheet struct {
	Assets           []AccountLine   `json:"assets"`
	Liabilities      []AccountLine   `json:"liabilities"`
	Equity           []AccountLine   `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	NetIncome        decimal.Decimal `json:"net_income"`
	// NetIncomeSource names the realtime profit/loss account when its balance
	// was used, "computed" otherwise. The realtime balance covers closed
	// periods; revenue and expense not yet closed into it are added.
	NetIncomeSource string          `json:"net_income_source"`
	TotalEquity     decimal.Decimal `json:"total_equity"`
	IsBalanced      bool            `json:"is_balanced"`
}

type FinancialReport struct {
	OrgID              int64              `json:"org_id"`
	Period             Period             `json:"period"`
	Income             IncomeSection      `json:"income"`
	StockValues        []ProductValuation `json:"stock_values"`
	Expenses           []AccountLine      `json:"expenses"`
	TotalExpenses      decimal.Decimal    `json:"total_expenses"`
	OtherIncomeExpense []AccountLine      `json:"other_income_expense"`
	TotalOther         decimal.Decimal    `json:"total_other"`
	NetIncome          decimal.Decimal    `json:"net_income"`
	BalanceSheet       BalanceSheet       `json:"balance_sheet"`
	Warnings           []StaleDataWarning `json:"warnings,omitempty"`
}

// ReportingService aggregates stock valuation and ledger balances into the
// financial report of an organisation.
type ReportingService struct {
	uow         UnitOfWork
	stock       *StockCalculator
	prices      *PriceResolver
	concurrency int
	log         *logrus.Entry
}

func NewReportingService(uow UnitOfWork, log *logrus.Entry, concurrency int) *ReportingService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReportingService{
		uow:         uow,
		stock:       NewStockCalculator(uow, log),
		prices:      NewPriceResolver(uow, log),
		concurrency: concurrency,
		log:         log.WithField("module", "reporting"),
	}
}

// accountMovement is the per-account total of ledger lines in a period.
type accountMovement struct {
	account Account
	debit   decimal.Decimal
	credit  decimal.Decimal
}

type periodMovements struct {
	byName map[string]*accountMovement
	order  []*accountMovement
	// deliveryValue is the total debited by each delivery's journal entry.
	deliveryValue map[int64]decimal.Decimal
}

// collectMovements totals the period's lines per account. Closing entries are
// left out so a closed month still reports its own income.
func collectMovements(lines []LedgerLine) *periodMovements {
	pm := &periodMovements{
		byName:        make(map[string]*accountMovement),
		deliveryValue: make(map[int64]decimal.Decimal),
	}
	for _, l := range lines {
		if l.Type == TxClosing {
			continue
		}
		m, ok := pm.byName[l.Account.Name]
		if !ok {
			m = &accountMovement{account: l.Account}
			pm.byName[l.Account.Name] = m
			pm.order = append(pm.order, m)
		}
		m.debit = m.debit.Add(l.Entry.Debit)
		m.credit = m.credit.Add(l.Entry.Credit)
		if l.Type == TxDelivery && l.Source != nil && l.Source.Type == sourceDelivery {
			pm.deliveryValue[l.Source.ID] = pm.deliveryValue[l.Source.ID].Add(l.Entry.Debit)
		}
	}
	return pm
}

func (pm *periodMovements) get(ref AccountRef) *accountMovement {
	name, err := ref.Name()
	if err != nil {
		return nil
	}
	return pm.byName[name]
}

// FinancialReport computes income, stock values, expenses, other income and a
// balance sheet at the end of period.
func (s *ReportingService) FinancialReport(ctx context.Context, orgID int64, period Period) (*FinancialReport, error) {
	lines, err := s.uow.Transactions().Lines(ctx, orgID, period.Start, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger lines: %w", err)
	}
	movements := collectMovements(lines)

	products, err := s.uow.Products().ListProducts(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	tanks, err := s.uow.Tanks().ListTanks(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tanks: %w", err)
	}
	tanksByProduct := make(map[int64][]Tank)
	for _, t := range tanks {
		tanksByProduct[t.ProductID] = append(tanksByProduct[t.ProductID], t)
	}
	shifts, err := s.uow.Shifts().Shifts(ctx, orgID, period.Start, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load shifts: %w", err)
	}

	report := &FinancialReport{OrgID: orgID, Period: period}
	valuations := make([]ProductValuation, len(products))
	warnings := make([][]StaleDataWarning, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range products {
		i, p := i, p
		g.Go(func() error {
			v, w, err := s.valueProduct(gctx, p, tanksByProduct[p.ID], shifts, movements, period)
			if err != nil {
				return fmt.Errorf("product %s: %w", p.Name, err)
			}
			valuations[i] = v
			warnings[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.StockValues = valuations
	for _, w := range warnings {
		report.Warnings = append(report.Warnings, w...)
	}

	for _, v := range valuations {
		report.Income.SalesVolume = report.Income.SalesVolume.Add(v.SalesVolume)
		report.Income.SalesRevenue = report.Income.SalesRevenue.Add(v.SalesRevenue)
		report.Income.COGS = report.Income.COGS.Add(v.COGS)
	}
	report.Income.GrossProfit = report.Income.SalesRevenue.Sub(report.Income.COGS)
	margin, ok := safeRatio(report.Income.GrossProfit, report.Income.SalesRevenue)
	report.Income.GrossMarginPct = margin
	report.Income.MarginUndefined = !ok

	s.classifyPeriodAccounts(report, movements, products)
	report.NetIncome = report.Income.GrossProfit.Sub(report.TotalExpenses).Add(report.TotalOther)

	bs, err := s.balanceSheet(ctx, orgID, period)
	if err != nil {
		return nil, err
	}
	report.BalanceSheet = *bs

	for _, w := range report.Warnings {
		s.log.WithFields(logrus.Fields{"org_id": orgID, "subject": w.Subject, "source": w.Source}).Warn(w.Reason)
	}
	return report, nil
}

func (s *ReportingService) valueProduct(ctx context.Context, p Product, tanks []Tank, shifts []Shift, mv *periodMovements, period Period) (ProductValuation, []StaleDataWarning, error) {
	v := ProductValuation{ProductID: p.ID, Name: p.Name}
	var warnings []StaleDataWarning

	history, err := s.prices.History(ctx, p.ID)
	if err != nil {
		return v, nil, err
	}
	opening, warn := history.At(period.Start)
	if warn != nil {
		warnings = append(warnings, *warn)
	}
	closing, _ := history.At(EndOfDay(period.End))
	v.OpeningPrice = opening.PurchasePrice
	v.ClosingPrice = closing.PurchasePrice
	// priceOn is the purchase price in effect at the end of day. A product
	// without history was already warned about through the opening price.
	priceOn := func(day time.Time) decimal.Decimal {
		snap, _ := history.At(EndOfDay(day))
		return snap.PurchasePrice
	}

	tankIDs := make(map[int64]bool, len(tanks))
	journaled, estimated := 0, 0
	for _, t := range tanks {
		tankIDs[t.ID] = true
		created := Day(t.CreatedAt)
		switch {
		case created.After(period.End):
		case !created.Before(period.Start):
			v.OpeningVolume = v.OpeningVolume.Add(t.InitialStock)
		default:
			level, err := s.stock.stockAsOf(ctx, &t, period.Start.AddDate(0, 0, -1))
			if err != nil {
				return v, nil, err
			}
			v.OpeningVolume = v.OpeningVolume.Add(level.Liters)
			if level.Warning != nil {
				warnings = append(warnings, *level.Warning)
			}
		}

		deliveries, err := s.uow.Tanks().Deliveries(ctx, t.ID, period.Start, period.Until())
		if err != nil {
			return v, nil, fmt.Errorf("failed to fetch deliveries of tank %d: %w", t.ID, err)
		}
		for _, d := range deliveries {
			if d.Status != StatusApproved {
				continue
			}
			volume := d.ReceivedVolume()
			v.PurchaseVolume = v.PurchaseVolume.Add(volume)
			if value, ok := mv.deliveryValue[d.ID]; ok && d.PurchaseOrderRef != "" {
				v.PurchaseValue = v.PurchaseValue.Add(value)
				journaled++
				continue
			}
			v.PurchaseValue = v.PurchaseValue.Add(money(volume.Mul(priceOn(d.Date))))
			estimated++
		}
	}
	switch {
	case estimated == 0 && journaled > 0:
		v.PurchaseValueSource = PurchaseFromLedger
	case estimated > 0 && journaled > 0:
		v.PurchaseValueSource = PurchaseFromMixed
	default:
		v.PurchaseValueSource = PurchaseFromEstimate
	}

	for _, sh := range shifts {
		if !sh.Settled() {
			continue
		}
		for tankID, tv := range sh.TankVolumes() {
			if !tankIDs[tankID] {
				continue
			}
			v.SalesVolume = v.SalesVolume.Add(tv.Sales)
			v.PumpTestVolume = v.PumpTestVolume.Add(tv.PumpTest)
			if tv.PumpTest.IsPositive() {
				v.PumpTestValue = v.PumpTestValue.Add(money(tv.PumpTest.Mul(priceOn(sh.Date))))
			}
		}
	}
	v.ExpectedClosingVolume = v.OpeningVolume.Add(v.PurchaseVolume).Sub(v.SalesVolume).Sub(v.PumpTestVolume)

	if transit := mv.get(TransitShrinkageAccount(p.Name)); transit != nil {
		v.ShrinkageValue = transit.debit.Sub(transit.credit)
	}
	if revenue := mv.get(SalesRevenueAccount(p.Name)); revenue != nil {
		v.SalesRevenue = revenue.credit.Sub(revenue.debit)
	}

	v.OpeningValue = money(v.OpeningVolume.Mul(v.OpeningPrice))
	v.ClosingValue = money(v.ExpectedClosingVolume.Mul(v.ClosingPrice)).Sub(v.ShrinkageValue)
	v.COGS = v.OpeningValue.Add(v.PurchaseValue).Sub(v.PumpTestValue).Sub(v.ClosingValue)
	v.GrossProfit = v.SalesRevenue.Sub(v.COGS)
	return v, warnings, nil
}

// classifyPeriodAccounts fills the expense and other income sections from the
// period's account movements. Accounts already folded into COGS are skipped.
func (s *ReportingService) classifyPeriodAccounts(report *FinancialReport, mv *periodMovements, products []Product) {
	var inCOGS []AccountRef
	var sales []AccountRef
	for _, p := range products {
		inCOGS = append(inCOGS, CostOfSalesAccount(p.Name), TransitShrinkageAccount(p.Name))
		sales = append(sales, SalesRevenueAccount(p.Name))
	}
	excluded := accountNames(inCOGS...)
	salesNames := accountNames(sales...)
	priceExpense, _ := PriceAdjustmentExpenseAccount().Name()

	for _, m := range mv.order {
		name := m.account.Name
		switch m.account.Category {
		case Expense, COGS:
			if excluded[name] {
				continue
			}
			cost := m.debit.Sub(m.credit)
			line := AccountLine{AccountID: m.account.ID, Name: name, Category: m.account.Category, Balance: cost}
			if name == priceExpense {
				line.Balance = cost.Neg()
				report.OtherIncomeExpense = append(report.OtherIncomeExpense, line)
				report.TotalOther = report.TotalOther.Add(line.Balance)
				continue
			}
			report.Expenses = append(report.Expenses, line)
			report.TotalExpenses = report.TotalExpenses.Add(cost)
		case Revenue:
			if salesNames[name] {
				continue
			}
			income := m.credit.Sub(m.debit)
			report.OtherIncomeExpense = append(report.OtherIncomeExpense,
				AccountLine{AccountID: m.account.ID, Name: name, Category: m.account.Category, Balance: income})
			report.TotalOther = report.TotalOther.Add(income)
		}
	}
	sortLines(report.Expenses)
	sortLines(report.OtherIncomeExpense)
}

// balanceSheet sums cumulative balances up to the end of period on each
// account's normal side.
func (s *ReportingService) balanceSheet(ctx context.Context, orgID int64, period Period) (*BalanceSheet, error) {
	balances, err := s.uow.Transactions().AccountBalances(ctx, orgID, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load account balances: %w", err)
	}
	plName, _ := RealtimeProfitLossAccount().Name()

	bs := &BalanceSheet{NetIncomeSource: "computed"}
	computed := decimal.Zero
	var realtime *decimal.Decimal
	equity := decimal.Zero
	for _, b := range balances {
		line := AccountLine{AccountID: b.Account.ID, Name: b.Account.Name, Category: b.Account.Category, Balance: b.Balance()}
		switch b.Account.Category {
		case Asset:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(line.Balance)
		case Liability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(line.Balance)
		case Equity:
			if b.Account.Name == plName {
				bal := line.Balance
				realtime = &bal
				continue
			}
			bs.Equity = append(bs.Equity, line)
			equity = equity.Add(line.Balance)
		case Revenue:
			computed = computed.Add(line.Balance)
		case Expense, COGS:
			computed = computed.Sub(line.Balance)
		}
	}

	// Results already closed sit in the realtime account. Whatever revenue and
	// expense is still open is added to it.
	bs.NetIncome = computed
	if realtime != nil {
		bs.NetIncome = realtime.Add(computed)
		bs.NetIncomeSource = plName
	}
	bs.TotalEquity = equity.Add(bs.NetIncome)
	bs.IsBalanced = bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity))
	sortLines(bs.Assets)
	sortLines(bs.Liabilities)
	sortLines(bs.Equity)
	return bs, nil
}

func sortLines(lines []AccountLine) {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
}
