package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type LedgerService interface {
	Record(ctx context.Context, req RecordRequest) (*Transaction, error)
	RecordInTx(ctx context.Context, uow UnitOfWork, req RecordRequest) (*Transaction, error)
	Approve(ctx context.Context, txID int64, approver string) error
	Reject(ctx context.Context, txID int64, approver string) error
	Balances(ctx context.Context, orgID int64, asOf time.Time) ([]AccountBalance, error)
	Statement(ctx context.Context, orgID, accountID int64, period Period) (*AccountStatement, error)
}

// Ledger is the only writer of transactions and journal entries.
type Ledger struct {
	store Store
	log   *logrus.Entry
}

func NewLedger(store Store, log *logrus.Entry) *Ledger {
	return &Ledger{store: store, log: log.WithField("module", "ledger")}
}

// Record persists req atomically in its own unit of work.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (*Transaction, error) {
	var out *Transaction
	err := l.store.WithinTx(ctx, func(uow UnitOfWork) error {
		tx, err := l.RecordInTx(ctx, uow, req)
		if err != nil {
			return err
		}
		out = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordInTx validates req and writes the header with all its entries inside
// the caller's unit of work. Nothing is written when validation fails.
func (l *Ledger) RecordInTx(ctx context.Context, uow UnitOfWork, req RecordRequest) (*Transaction, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("transaction validation failed: %w", err)
	}

	seen := make(map[int64]bool, len(req.Entries))
	for _, e := range req.Entries {
		if seen[e.AccountID] {
			continue
		}
		seen[e.AccountID] = true
		acc, err := uow.Accounts().Get(ctx, e.AccountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &MissingAccountError{OrgID: req.OrgID, AccountID: e.AccountID}
			}
			return nil, fmt.Errorf("failed to fetch account %d: %w", e.AccountID, err)
		}
		if acc.OrgID != req.OrgID {
			return nil, &MissingAccountError{OrgID: req.OrgID, AccountID: e.AccountID}
		}
		if acc.Status != AccountActive {
			return nil, fmt.Errorf("account %q: %w", acc.Name, ErrInactiveAccount)
		}
	}

	tx := &Transaction{
		OrgID:          req.OrgID,
		Date:           req.Date,
		Description:    req.Description,
		Notes:          req.Notes,
		Type:           req.Type,
		Status:         req.Status,
		CreatedBy:      req.CreatedBy,
		ApprovedBy:     req.ApprovedBy,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Entries:        make([]JournalEntry, 0, len(req.Entries)),
	}
	for _, e := range req.Entries {
		tx.Entries = append(tx.Entries, JournalEntry{
			AccountID:   e.AccountID,
			Debit:       e.Debit,
			Credit:      e.Credit,
			Description: e.Description,
		})
	}

	if err := uow.Transactions().Insert(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return nil, fmt.Errorf("idempotency key %s already recorded: %w", req.IdempotencyKey, err)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	debit, _ := tx.Totals()
	l.log.WithFields(logrus.Fields{
		"org_id":         tx.OrgID,
		"transaction_id": tx.ID,
		"type":           tx.Type,
		"status":         tx.Status,
		"date":           tx.Date.Format(DateLayout),
		"amount":         debit.String(),
	}).Info("transaction recorded")
	return tx, nil
}

// Approve moves a pending transaction to approved. Approved transactions are
// immutable from then on.
func (l *Ledger) Approve(ctx context.Context, txID int64, approver string) error {
	return l.transition(ctx, txID, StatusApproved, approver)
}

// Reject moves a pending transaction to rejected. Rejected transactions never
// count toward balances.
func (l *Ledger) Reject(ctx context.Context, txID int64, approver string) error {
	return l.transition(ctx, txID, StatusRejected, approver)
}

func (l *Ledger) transition(ctx context.Context, txID int64, to ApprovalStatus, actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: approver is required", ErrInvalidInput)
	}
	if err := l.store.Transactions().SetStatus(ctx, txID, StatusPending, to, actor); err != nil {
		return fmt.Errorf("failed to move transaction %d to %s: %w", txID, to, err)
	}
	l.log.WithFields(logrus.Fields{"transaction_id": txID, "status": to, "actor": actor}).Info("transaction status changed")
	return nil
}

// Balances returns cumulative approved balances of every account up to and
// including asOf.
func (l *Ledger) Balances(ctx context.Context, orgID int64, asOf time.Time) ([]AccountBalance, error) {
	balances, err := l.store.Transactions().AccountBalances(ctx, orgID, NextDay(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to load account balances: %w", err)
	}
	return balances, nil
}

type StatementLine struct {
	LedgerLine
	// Balance is the running balance on the account's normal side after this line.
	Balance decimal.Decimal `json:"balance"`
}

type AccountStatement struct {
	Account        Account         `json:"account"`
	Period         Period          `json:"period"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Lines          []StatementLine `json:"lines"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// Statement lists the approved movements of one account over period with a
// running balance.
func (l *Ledger) Statement(ctx context.Context, orgID, accountID int64, period Period) (*AccountStatement, error) {
	acc, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &MissingAccountError{OrgID: orgID, AccountID: accountID}
		}
		return nil, fmt.Errorf("failed to fetch account %d: %w", accountID, err)
	}
	if acc.OrgID != orgID {
		return nil, &MissingAccountError{OrgID: orgID, AccountID: accountID}
	}

	balances, err := l.store.Transactions().AccountBalances(ctx, orgID, period.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to load opening balance: %w", err)
	}
	stmt := &AccountStatement{Account: *acc, Period: period}
	for _, b := range balances {
		if b.Account.ID == accountID {
			stmt.OpeningBalance = b.Balance()
			break
		}
	}

	lines, err := l.store.Transactions().Lines(ctx, orgID, period.Start, period.Until())
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger lines: %w", err)
	}
	running := stmt.OpeningBalance
	debitNormal := acc.Category.DebitNormal()
	for _, line := range lines {
		if line.Entry.AccountID != accountID {
			continue
		}
		delta := line.Entry.Debit.Sub(line.Entry.Credit)
		if !debitNormal {
			delta = delta.Neg()
		}
		running = running.Add(delta)
		stmt.Lines = append(stmt.Lines, StatementLine{LedgerLine: line, Balance: running})
	}
	stmt.ClosingBalance = running
	return stmt, nil
}
