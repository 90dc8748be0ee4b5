package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/core"
)

const (
	reportAttempts = 3
	reportBackoff  = 200 * time.Millisecond
)

type appService struct {
	store      core.Store
	station    *core.Station
	stock      *core.StockCalculator
	reconciler *core.Reconciler
	reporting  *core.ReportingService
	log        *logrus.Entry
	now        func() time.Time
}

// NewAppService wires the core services over store and returns an
// ApplicationService. concurrency bounds the per-tank and per-product fan-out
// of reports.
func NewAppService(store core.Store, locker core.Locker, log *logrus.Entry, concurrency int) ApplicationService {
	return &appService{
		store:      store,
		station:    core.NewStation(store, locker, log),
		stock:      core.NewStockCalculator(store, log),
		reconciler: core.NewReconciler(store, log, concurrency),
		reporting:  core.NewReportingService(store, log, concurrency),
		log:        log.WithField("module", "app"),
		now:        time.Now,
	}
}

// period parses an inclusive YYYY-MM-DD range.
func period(start, end string) (core.Period, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return core.Period{}, &core.InvalidPeriodError{Reason: "start and end are required"}
	}
	s, err := core.ParseDate(start)
	if err != nil {
		return core.Period{}, &core.InvalidPeriodError{Reason: fmt.Sprintf("invalid start date %q", start)}
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return core.Period{}, &core.InvalidPeriodError{Reason: fmt.Sprintf("invalid end date %q", end)}
	}
	return core.NewPeriod(s, e)
}

// date parses a required YYYY-MM-DD operational date.
func date(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", core.ErrInvalidInput, field)
	}
	t, err := core.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q, expected YYYY-MM-DD", core.ErrInvalidInput, field, value)
	}
	return t, nil
}

// instant accepts RFC3339 or a bare date. Empty means zero.
func instant(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return date("effective_at", value)
}

// retry reruns a read-only report when it failed on transient infrastructure.
func (s *appService) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := core.RetryTransient(ctx, reportAttempts, reportBackoff, func() error {
		attempt++
		err := fn()
		if err != nil && core.IsRetryable(err) {
			s.log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt}).Warn("transient failure, retrying")
		}
		return err
	})
	return err
}

func (s *appService) GetCurrentStock(ctx context.Context, tankID int64) (*core.StockLevel, error) {
	var level core.StockLevel
	err := s.retry(ctx, "current_stock", func() error {
		var err error
		level, err = s.stock.CurrentStock(ctx, tankID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (s *appService) GetStockAsOf(ctx context.Context, tankID int64, day string) (*core.StockLevel, error) {
	d, err := date("date", day)
	if err != nil {
		return nil, err
	}
	var level core.StockLevel
	err = s.retry(ctx, "stock_as_of", func() error {
		var err error
		level, err = s.stock.StockAsOf(ctx, tankID, d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (s *appService) GetDailyReport(ctx context.Context, tankID int64, start, end string) (*core.TankDailyReport, error) {
	p, err := period(start, end)
	if err != nil {
		return nil, err
	}
	var report *core.TankDailyReport
	err = s.retry(ctx, "daily_report", func() error {
		var err error
		report, err = s.reconciler.DailyReport(ctx, tankID, p)
		return err
	})
	return report, err
}

func (s *appService) GetOrgDailyReports(ctx context.Context, orgID int64, start, end string) ([]core.TankDailyReport, error) {
	p, err := period(start, end)
	if err != nil {
		return nil, err
	}
	var reports []core.TankDailyReport
	err = s.retry(ctx, "org_daily_reports", func() error {
		var err error
		reports, err = s.reconciler.OrgDailyReports(ctx, orgID, p)
		return err
	})
	return reports, err
}

func (s *appService) GetFinancialReport(ctx context.Context, orgID int64, start, end string) (*core.FinancialReport, error) {
	p, err := period(start, end)
	if err != nil {
		return nil, err
	}
	var report *core.FinancialReport
	err = s.retry(ctx, "financial_report", func() error {
		var err error
		report, err = s.reporting.FinancialReport(ctx, orgID, p)
		return err
	})
	return report, err
}

func (s *appService) GetTrialBalance(ctx context.Context, orgID int64, asOf string) (*TrialBalanceResult, error) {
	at := core.Day(s.now().UTC())
	if asOf != "" {
		d, err := date("as_of", asOf)
		if err != nil {
			return nil, err
		}
		at = d
	}
	balances, err := s.station.Ledger().Balances(ctx, orgID, at)
	if err != nil {
		return nil, err
	}

	result := &TrialBalanceResult{OrgID: orgID, AsOf: at}
	for _, b := range balances {
		result.Accounts = append(result.Accounts, TrialBalanceLine{
			Account: b.Account,
			Debit:   b.Debit,
			Credit:  b.Credit,
			Balance: b.Balance(),
		})
		result.TotalDebit = result.TotalDebit.Add(b.Debit)
		result.TotalCredit = result.TotalCredit.Add(b.Credit)
	}
	return result, nil
}

func (s *appService) GetAccountStatement(ctx context.Context, orgID, accountID int64, start, end string) (*core.AccountStatement, error) {
	p, err := period(start, end)
	if err != nil {
		return nil, err
	}
	return s.station.Ledger().Statement(ctx, orgID, accountID, p)
}

func (s *appService) ListAccounts(ctx context.Context, orgID int64) ([]core.Account, error) {
	return s.station.Accounts().List(ctx, s.store, orgID)
}

func (s *appService) DeactivateAccount(ctx context.Context, accountID int64) error {
	return s.station.Accounts().Deactivate(ctx, s.store, accountID)
}

func (s *appService) RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*core.Transaction, error) {
	d, err := date("date", req.Date)
	if err != nil {
		return nil, err
	}
	typ := core.TransactionType(req.Type)
	if typ == "" {
		typ = core.TxCash
	}
	rec := core.RecordRequest{
		OrgID:       req.OrgID,
		Date:        d,
		Description: req.Description,
		Notes:       req.Notes,
		Type:        typ,
		Entries:     req.Entries,
		CreatedBy:   req.CreatedBy,
		Status:      core.StatusPending,
	}
	if req.ApprovedBy != "" {
		approver := req.ApprovedBy
		rec.Status = core.StatusApproved
		rec.ApprovedBy = &approver
	}
	return s.station.RecordTransaction(ctx, rec)
}

func (s *appService) ApproveTransaction(ctx context.Context, txID int64, approver string) error {
	return s.station.Ledger().Approve(ctx, txID, approver)
}

func (s *appService) RejectTransaction(ctx context.Context, txID int64, approver string) error {
	return s.station.Ledger().Reject(ctx, txID, approver)
}

func (s *appService) ApproveDeposit(ctx context.Context, depositID int64, approver string) (*core.Settlement, error) {
	return s.station.ApproveDeposit(ctx, depositID, approver)
}

func (s *appService) ApproveDelivery(ctx context.Context, deliveryID int64, approver string) (*core.Transaction, error) {
	return s.station.ApproveDelivery(ctx, deliveryID, approver)
}

func (s *appService) ApproveTankReading(ctx context.Context, readingID int64, approver string) (*core.ReadingApproval, error) {
	return s.station.ApproveTankReading(ctx, readingID, approver)
}

func (s *appService) ChangePrice(ctx context.Context, req ChangePriceRequest) (*core.PriceChangeResult, error) {
	at, err := instant(req.EffectiveAt)
	if err != nil {
		return nil, err
	}
	lots := make([]core.StockLot, 0, len(req.InTransit))
	for _, l := range req.InTransit {
		lots = append(lots, core.StockLot{Location: core.LotInTransit, OrderRef: l.OrderRef, Volume: l.Volume})
	}
	return s.station.ChangePurchasePrice(ctx, core.PriceChangeRequest{
		ProductID:        req.ProductID,
		NewPurchasePrice: req.NewPurchasePrice,
		NewSellingPrice:  req.NewSellingPrice,
		EffectiveAt:      at,
		InTransit:        lots,
		Actor:            req.Actor,
	})
}

func (s *appService) FillCustodial(ctx context.Context, req CustodialFillRequest) (*core.Transaction, error) {
	d, err := date("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.station.FillCustodial(ctx, core.CustodialFillRequest{
		OrgID:     req.OrgID,
		Custodian: req.Custodian,
		ProductID: req.ProductID,
		Volume:    req.Volume,
		Date:      d,
		Reference: req.Reference,
		Actor:     req.Actor,
	})
}

func (s *appService) AdjustCustodial(ctx context.Context, req CustodialAdjustmentRequest) (*core.Transaction, error) {
	d, err := date("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.station.AdjustCustodial(ctx, core.CustodialAdjustmentRequest{
		OrgID:     req.OrgID,
		Custodian: req.Custodian,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Date:      d,
		Reference: req.Reference,
		Actor:     req.Actor,
	})
}

func (s *appService) CloseMonth(ctx context.Context, orgID int64, year, month int, actor string) (*core.Transaction, error) {
	return s.station.CloseMonth(ctx, orgID, year, time.Month(month), actor)
}
