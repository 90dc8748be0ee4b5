package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryLine is one journal line of a transaction about to be recorded.
type EntryLine struct {
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// RecordRequest is everything the Ledger Writer needs to persist a transaction.
type RecordRequest struct {
	OrgID          int64           `json:"org_id"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Notes          string          `json:"notes,omitempty"`
	Type           TransactionType `json:"type"`
	Entries        []EntryLine     `json:"entries"`
	CreatedBy      string          `json:"created_by"`
	Status         ApprovalStatus  `json:"status"`
	ApprovedBy     *string         `json:"approved_by,omitempty"`
	Source         *SourceRef      `json:"source,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Normalize trims free text, truncates the date to its operational day and
// defaults an empty status to pending.
func (r *RecordRequest) Normalize() {
	r.Description = strings.TrimSpace(r.Description)
	r.Notes = strings.TrimSpace(r.Notes)
	r.CreatedBy = strings.TrimSpace(r.CreatedBy)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if !r.Date.IsZero() {
		r.Date = Day(r.Date)
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	for i := range r.Entries {
		r.Entries[i].Description = strings.TrimSpace(r.Entries[i].Description)
	}
}

// Validate enforces the structural rules of a transaction. Debits must equal
// credits exactly: amounts are currency-precise and no tolerance is applied.
func (r *RecordRequest) Validate() error {
	if r.OrgID == 0 {
		return fmt.Errorf("%w: transaction must specify an organization", ErrInvalidInput)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: transaction must specify a date", ErrInvalidInput)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: transaction must have a description", ErrInvalidInput)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: transaction must specify a type", ErrInvalidInput)
	}
	switch r.Status {
	case StatusPending, StatusApproved:
	default:
		return fmt.Errorf("%w: transaction cannot be recorded with status %q", ErrInvalidInput, r.Status)
	}
	if len(r.Entries) == 0 {
		return ErrEmptyTransaction
	}

	debit, credit := decimal.Zero, decimal.Zero
	for i, e := range r.Entries {
		if e.AccountID == 0 {
			return fmt.Errorf("%w: entry %d has no account", ErrInvalidInput, i)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fmt.Errorf("%w: entry %d has a negative amount", ErrInvalidInput, i)
		}
		if e.Debit.IsZero() && e.Credit.IsZero() {
			return fmt.Errorf("%w: entry %d has neither debit nor credit", ErrInvalidInput, i)
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		return &UnbalancedLedgerError{Debit: debit, Credit: credit}
	}
	return nil
}

// entrySet accumulates journal lines keyed by account so that translators can
// add more than one amount against the same account. Insertion order is kept.
type entrySet struct {
	order []int64
	lines map[int64]*EntryLine
}

func newEntrySet() *entrySet {
	return &entrySet{lines: make(map[int64]*EntryLine)}
}

func (s *entrySet) line(acc *Account, description string) *EntryLine {
	l, ok := s.lines[acc.ID]
	if !ok {
		l = &EntryLine{AccountID: acc.ID, Description: description}
		s.lines[acc.ID] = l
		s.order = append(s.order, acc.ID)
	}
	return l
}

func (s *entrySet) debit(acc *Account, amount decimal.Decimal, description string) {
	if amount.IsZero() {
		return
	}
	l := s.line(acc, description)
	l.Debit = l.Debit.Add(amount)
}

func (s *entrySet) credit(acc *Account, amount decimal.Decimal, description string) {
	if amount.IsZero() {
		return
	}
	l := s.line(acc, description)
	l.Credit = l.Credit.Add(amount)
}

func (s *entrySet) empty() bool { return len(s.order) == 0 }

func (s *entrySet) totals() (debit, credit decimal.Decimal) {
	for _, id := range s.order {
		debit = debit.Add(s.lines[id].Debit)
		credit = credit.Add(s.lines[id].Credit)
	}
	return debit, credit
}

func (s *entrySet) entries() []EntryLine {
	out := make([]EntryLine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.lines[id])
	}
	return out
}
