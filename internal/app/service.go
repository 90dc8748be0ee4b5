package app

import (
	"context"

	"fuel-ledger/internal/core"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// Dates cross this boundary as YYYY-MM-DD strings and are parsed here.
// Implementations contain no display logic.
type ApplicationService interface {
	// GetCurrentStock returns a tank's stock now, anchored on today's reading when one exists.
	GetCurrentStock(ctx context.Context, tankID int64) (*core.StockLevel, error)

	// GetStockAsOf returns a tank's closing stock for one operational day.
	GetStockAsOf(ctx context.Context, tankID int64, date string) (*core.StockLevel, error)

	// GetDailyReport returns the day-by-day reconciliation of one tank.
	GetDailyReport(ctx context.Context, tankID int64, start, end string) (*core.TankDailyReport, error)

	// GetOrgDailyReports reconciles every tank of an organisation.
	GetOrgDailyReports(ctx context.Context, orgID int64, start, end string) ([]core.TankDailyReport, error)

	// GetFinancialReport returns income, stock valuation, expenses and the balance sheet.
	GetFinancialReport(ctx context.Context, orgID int64, start, end string) (*core.FinancialReport, error)

	// GetTrialBalance returns approved balances of every account up to asOf.
	// An empty asOf means today.
	GetTrialBalance(ctx context.Context, orgID int64, asOf string) (*TrialBalanceResult, error)

	// GetAccountStatement returns one account's movements with a running balance.
	GetAccountStatement(ctx context.Context, orgID, accountID int64, start, end string) (*core.AccountStatement, error)

	ListAccounts(ctx context.Context, orgID int64) ([]core.Account, error)
	DeactivateAccount(ctx context.Context, accountID int64) error

	// RecordTransaction records a manual entry through the balance-validated ledger writer.
	RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*core.Transaction, error)
	ApproveTransaction(ctx context.Context, txID int64, approver string) error
	RejectTransaction(ctx context.Context, txID int64, approver string) error

	ApproveDeposit(ctx context.Context, depositID int64, approver string) (*core.Settlement, error)
	ApproveDelivery(ctx context.Context, deliveryID int64, approver string) (*core.Transaction, error)
	ApproveTankReading(ctx context.Context, readingID int64, approver string) (*core.ReadingApproval, error)

	// ChangePrice records a product price change and revalues remaining stock.
	ChangePrice(ctx context.Context, req ChangePriceRequest) (*core.PriceChangeResult, error)

	FillCustodial(ctx context.Context, req CustodialFillRequest) (*core.Transaction, error)
	AdjustCustodial(ctx context.Context, req CustodialAdjustmentRequest) (*core.Transaction, error)

	// CloseMonth transfers the month's realtime profit/loss to retained earnings.
	// Returns nil when there was nothing to close.
	CloseMonth(ctx context.Context, orgID int64, year, month int, actor string) (*core.Transaction, error)
}
