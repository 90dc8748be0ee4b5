package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Time ranges passed to repositories are half-open: from <= t < until.
// Repositories return rows regardless of approval status unless the method
// says otherwise; approval gating is applied by the calculators.

type AccountRepository interface {
	Get(ctx context.Context, id int64) (*Account, error)
	FindByName(ctx context.Context, orgID int64, name string) (*Account, error)
	// Upsert inserts a unless an account with the same (org, name) exists, and
	// returns the stored row either way. An existing row is never modified.
	Upsert(ctx context.Context, a Account) (*Account, error)
	SetStatus(ctx context.Context, id int64, status AccountStatus) error
	List(ctx context.Context, orgID int64) ([]Account, error)
}

type TransactionRepository interface {
	// Insert persists the header and all entries, assigning IDs in place.
	// Returns ErrDuplicateTransaction when the idempotency key already exists.
	Insert(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id int64) (*Transaction, error)
	// SetStatus moves a transaction from one status to another.
	// Returns ErrInvalidTransition if the current status is not from.
	SetStatus(ctx context.Context, id int64, from, to ApprovalStatus, actor string) error
	// AccountBalances sums approved entries dated before until, per account.
	// Accounts without entries are included with zero totals.
	AccountBalances(ctx context.Context, orgID int64, until time.Time) ([]AccountBalance, error)
	// Lines returns approved journal lines dated in [from, until), ordered by
	// date then transaction ID then entry ID.
	Lines(ctx context.Context, orgID int64, from, until time.Time) ([]LedgerLine, error)
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, orgID int64) ([]Product, error)
	UpdatePrices(ctx context.Context, id int64, purchase, selling decimal.Decimal) error
	AppendPriceChange(ctx context.Context, c *PriceChange) error
	// PriceChanges is ordered by ChangedAt then ID.
	PriceChanges(ctx context.Context, productID int64) ([]PriceChange, error)
}

type TankRepository interface {
	GetTank(ctx context.Context, id int64) (*Tank, error)
	ListTanks(ctx context.Context, orgID int64) ([]Tank, error)

	// Readings returns readings dated before until, ordered by Date, CreatedAt, ID.
	Readings(ctx context.Context, tankID int64, until time.Time) ([]TankReading, error)
	GetReading(ctx context.Context, id int64) (*TankReading, error)
	ApproveReading(ctx context.Context, id int64, variance decimal.Decimal) error

	// Deliveries returns deliveries dated in [from, until), ordered by Date, CreatedAt, ID.
	Deliveries(ctx context.Context, tankID int64, from, until time.Time) ([]Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*Delivery, error)
	ApproveDelivery(ctx context.Context, id int64) error
}

type ShiftRepository interface {
	// Shifts returns shifts dated in [from, until) with readings and deposit loaded.
	Shifts(ctx context.Context, orgID int64, from, until time.Time) ([]Shift, error)
	GetShift(ctx context.Context, id int64) (*Shift, error)
	GetDeposit(ctx context.Context, id int64) (*Deposit, error)
	// ApproveDeposit moves a pending deposit at expectedVersion to approved and
	// bumps its version. Returns ErrConcurrentApproval when the row has moved on.
	ApproveDeposit(ctx context.Context, id int64, expectedVersion int, approver string, at time.Time) error
}

type AccountBalance struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Balance is the net balance on the account's normal side.
func (b AccountBalance) Balance() decimal.Decimal {
	if b.Account.Category.DebitNormal() {
		return b.Debit.Sub(b.Credit)
	}
	return b.Credit.Sub(b.Debit)
}

// LedgerLine is a journal entry joined with its transaction header and account.
type LedgerLine struct {
	TransactionID int64
	Date          time.Time
	Type          TransactionType
	Description   string
	Source        *SourceRef
	Entry         JournalEntry
	Account       Account
}

// UnitOfWork groups the repositories that share one transactional context.
type UnitOfWork interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Products() ProductRepository
	Tanks() TankRepository
	Shifts() ShiftRepository
}

// Store is the process-wide persistence handle. Used directly it behaves as an
// autocommit UnitOfWork; WithinTx runs fn in one atomic unit, rolling back
// everything fn wrote if it returns an error. Inside fn only uow may be used.
type Store interface {
	UnitOfWork
	WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}
