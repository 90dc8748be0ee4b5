package app

import (
	"time"

	"github.com/shopspring/decimal"

	"fuel-ledger/internal/core"
)

// TrialBalanceResult is returned by GetTrialBalance.
type TrialBalanceResult struct {
	OrgID       int64              `json:"org_id"`
	AsOf        time.Time          `json:"as_of"`
	Accounts    []TrialBalanceLine `json:"accounts"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
}

// TrialBalanceLine is one account's cumulative totals and normal-side balance.
type TrialBalanceLine struct {
	Account core.Account    `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}
