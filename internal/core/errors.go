package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnbalancedLedger is returned when a transaction's debits and credits differ.
	// It is permanent: the transaction is never persisted and must not be retried.
	ErrUnbalancedLedger = errors.New("unbalanced ledger")

	// ErrMissingAccount is returned when an account that must already exist is absent.
	ErrMissingAccount = errors.New("missing account")

	// ErrAccountCategoryMismatch is returned when an existing account is re-declared
	// with a different category.
	ErrAccountCategoryMismatch = errors.New("account category mismatch")

	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInactiveAccount is returned when an entry targets a deactivated account.
	ErrInactiveAccount = errors.New("account is inactive")

	// ErrEmptyTransaction is returned when a transaction carries no journal entries.
	ErrEmptyTransaction = errors.New("transaction has no journal entries")

	// ErrDuplicateTransaction is returned when a transaction with the same
	// idempotency key was already recorded.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrConcurrentApproval is returned when a record was approved or modified by
	// someone else between read and write.
	ErrConcurrentApproval = errors.New("concurrent approval")

	// ErrInvalidTransition is returned when a status change does not start from
	// the expected status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLockNotObtained is returned when the approval lock is held elsewhere.
	ErrLockNotObtained = errors.New("approval lock not obtained")

	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a request is malformed, such as a
	// missing field or a negative amount.
	ErrInvalidInput = errors.New("invalid input")
)

type UnbalancedLedgerError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
	Reason string
}

func (e *UnbalancedLedgerError) Error() string {
	msg := fmt.Sprintf("unbalanced ledger: debits %s != credits %s", e.Debit.String(), e.Credit.String())
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *UnbalancedLedgerError) Unwrap() error { return ErrUnbalancedLedger }

type MissingAccountError struct {
	OrgID     int64
	AccountID int64
	Name      string
}

func (e *MissingAccountError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("account %q not found for org %d", e.Name, e.OrgID)
	}
	return fmt.Sprintf("account %d not found for org %d", e.AccountID, e.OrgID)
}

func (e *MissingAccountError) Unwrap() error { return ErrMissingAccount }

type AccountCategoryMismatchError struct {
	Name     string
	Existing AccountCategory
	Declared AccountCategory
}

func (e *AccountCategoryMismatchError) Error() string {
	return fmt.Sprintf("account %q exists as %s, cannot re-declare as %s", e.Name, e.Existing, e.Declared)
}

func (e *AccountCategoryMismatchError) Unwrap() error { return ErrAccountCategoryMismatch }

type InvalidPeriodError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %s..%s: %s", e.Start.Format(DateLayout), e.End.Format(DateLayout), e.Reason)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// StaleDataWarning records that a value was computed from a source lower in
// its priority chain. It is informational and never aborts a computation.
type StaleDataWarning struct {
	Source  string `json:"source"`
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

func (w StaleDataWarning) Error() string {
	return fmt.Sprintf("stale data for %s: %s (using %s)", w.Subject, w.Reason, w.Source)
}

// IsPermanent reports whether err is a data-integrity or validation failure
// that must be surfaced rather than retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnbalancedLedger) ||
		errors.Is(err, ErrMissingAccount) ||
		errors.Is(err, ErrAccountCategoryMismatch) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrEmptyTransaction) ||
		errors.Is(err, ErrInactiveAccount) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrConcurrentApproval) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable reports whether err came from transient infrastructure
// (lost connection, lock contention) and the whole operation may be retried.
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, ErrLockNotObtained) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// RetryTransient runs fn up to attempts times, backing off exponentially from
// base between attempts. Only errors for which IsRetryable holds are retried.
func RetryTransient(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
