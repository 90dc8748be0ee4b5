package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuel-ledger/internal/core"
)

// ── Accounts ──────────────────────────────────────────────────────────────────

func (r repo) Get(_ context.Context, id int64) (*core.Account, error) {
	var out *core.Account
	r.read(func(st *state) {
		if a, ok := st.accounts[id]; ok {
			out = &a
		}
	})
	if out == nil {
		return nil, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) FindByName(_ context.Context, orgID int64, name string) (*core.Account, error) {
	var out *core.Account
	r.read(func(st *state) {
		if id, ok := st.accountByName[nameKey{orgID, name}]; ok {
			a := st.accounts[id]
			out = &a
		}
	})
	if out == nil {
		return nil, fmt.Errorf("account %q: %w", name, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) Upsert(_ context.Context, a core.Account) (*core.Account, error) {
	var out core.Account
	err := r.write(func(st *state) error {
		k := nameKey{a.OrgID, a.Name}
		if id, ok := st.accountByName[k]; ok {
			out = st.accounts[id]
			return nil
		}
		a.ID = st.id()
		a.CreatedAt = r.now()
		if a.Status == "" {
			a.Status = core.AccountActive
		}
		st.accounts[a.ID] = a
		st.accountByName[k] = a.ID
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r repo) SetStatus(_ context.Context, id int64, status core.AccountStatus) error {
	return r.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
		}
		a.Status = status
		st.accounts[id] = a
		return nil
	})
}

func (r repo) List(_ context.Context, orgID int64) ([]core.Account, error) {
	var out []core.Account
	r.read(func(st *state) {
		for _, a := range st.accounts {
			if a.OrgID == orgID {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ── Transactions ──────────────────────────────────────────────────────────────

type txRepo struct {
	repo
}

func copyTransaction(t core.Transaction) core.Transaction {
	t.Entries = append([]core.JournalEntry(nil), t.Entries...)
	return t
}

func (r txRepo) Insert(_ context.Context, tx *core.Transaction) error {
	return r.write(func(st *state) error {
		if tx.IdempotencyKey != "" {
			if _, ok := st.idempotency[tx.IdempotencyKey]; ok {
				return core.ErrDuplicateTransaction
			}
		}
		tx.ID = st.id()
		tx.CreatedAt = r.now()
		for i := range tx.Entries {
			tx.Entries[i].ID = st.id()
			tx.Entries[i].TransactionID = tx.ID
		}
		st.transactions[tx.ID] = copyTransaction(*tx)
		if tx.IdempotencyKey != "" {
			st.idempotency[tx.IdempotencyKey] = tx.ID
		}
		return nil
	})
}

func (r txRepo) Get(_ context.Context, id int64) (*core.Transaction, error) {
	var out *core.Transaction
	r.read(func(st *state) {
		if t, ok := st.transactions[id]; ok {
			c := copyTransaction(t)
			out = &c
		}
	})
	if out == nil {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r txRepo) SetStatus(_ context.Context, id int64, from, to core.ApprovalStatus, actor string) error {
	return r.write(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
		}
		if t.Status != from {
			return fmt.Errorf("transaction %d is %s: %w", id, t.Status, core.ErrInvalidTransition)
		}
		t.Status = to
		a := actor
		t.ApprovedBy = &a
		st.transactions[id] = t
		return nil
	})
}

func (r txRepo) AccountBalances(_ context.Context, orgID int64, until time.Time) ([]core.AccountBalance, error) {
	var out []core.AccountBalance
	r.read(func(st *state) {
		idx := make(map[int64]int)
		for _, a := range st.accounts {
			if a.OrgID == orgID {
				idx[a.ID] = len(out)
				out = append(out, core.AccountBalance{Account: a, Debit: decimal.Zero, Credit: decimal.Zero})
			}
		}
		for _, t := range st.transactions {
			if t.OrgID != orgID || t.Status != core.StatusApproved || !t.Date.Before(until) {
				continue
			}
			for _, e := range t.Entries {
				i, ok := idx[e.AccountID]
				if !ok {
					continue
				}
				out[i].Debit = out[i].Debit.Add(e.Debit)
				out[i].Credit = out[i].Credit.Add(e.Credit)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Account.ID < out[j].Account.ID })
	return out, nil
}

func (r txRepo) Lines(_ context.Context, orgID int64, from, until time.Time) ([]core.LedgerLine, error) {
	var out []core.LedgerLine
	r.read(func(st *state) {
		for _, t := range st.transactions {
			if t.OrgID != orgID || t.Status != core.StatusApproved || t.Date.Before(from) || !t.Date.Before(until) {
				continue
			}
			for _, e := range t.Entries {
				out = append(out, core.LedgerLine{
					TransactionID: t.ID,
					Date:          t.Date,
					Type:          t.Type,
					Description:   t.Description,
					Source:        t.Source,
					Entry:         e,
					Account:       st.accounts[e.AccountID],
				})
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID < b.TransactionID
		}
		return a.Entry.ID < b.Entry.ID
	})
	return out, nil
}

// ── Products ──────────────────────────────────────────────────────────────────

func (r repo) GetProduct(_ context.Context, id int64) (*core.Product, error) {
	var out *core.Product
	r.read(func(st *state) {
		if p, ok := st.products[id]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, fmt.Errorf("product %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) ListProducts(_ context.Context, orgID int64) ([]core.Product, error) {
	var out []core.Product
	r.read(func(st *state) {
		for _, p := range st.products {
			if p.OrgID == orgID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r repo) UpdatePrices(_ context.Context, id int64, purchase, selling decimal.Decimal) error {
	return r.write(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return fmt.Errorf("product %d: %w", id, core.ErrNotFound)
		}
		p.PurchasePrice = purchase
		p.SellingPrice = selling
		st.products[id] = p
		return nil
	})
}

func (r repo) AppendPriceChange(_ context.Context, c *core.PriceChange) error {
	return r.write(func(st *state) error {
		if _, ok := st.products[c.ProductID]; !ok {
			return fmt.Errorf("product %d: %w", c.ProductID, core.ErrNotFound)
		}
		c.ID = st.id()
		st.priceChanges[c.ProductID] = append(st.priceChanges[c.ProductID], *c)
		return nil
	})
}

func (r repo) PriceChanges(_ context.Context, productID int64) ([]core.PriceChange, error) {
	var out []core.PriceChange
	r.read(func(st *state) {
		out = append(out, st.priceChanges[productID]...)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ChangedAt.Before(out[j].ChangedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ── Tanks, readings and deliveries ────────────────────────────────────────────

func (r repo) GetTank(_ context.Context, id int64) (*core.Tank, error) {
	var out *core.Tank
	r.read(func(st *state) {
		if t, ok := st.tanks[id]; ok {
			out = &t
		}
	})
	if out == nil {
		return nil, fmt.Errorf("tank %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) ListTanks(_ context.Context, orgID int64) ([]core.Tank, error) {
	var out []core.Tank
	r.read(func(st *state) {
		for _, t := range st.tanks {
			if t.OrgID == orgID {
				out = append(out, t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r repo) Readings(_ context.Context, tankID int64, until time.Time) ([]core.TankReading, error) {
	var out []core.TankReading
	r.read(func(st *state) {
		for _, rd := range st.readings {
			if rd.TankID == tankID && rd.Date.Before(until) {
				out = append(out, rd)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r repo) GetReading(_ context.Context, id int64) (*core.TankReading, error) {
	var out *core.TankReading
	r.read(func(st *state) {
		if rd, ok := st.readings[id]; ok {
			out = &rd
		}
	})
	if out == nil {
		return nil, fmt.Errorf("tank reading %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) ApproveReading(_ context.Context, id int64, variance decimal.Decimal) error {
	return r.write(func(st *state) error {
		rd, ok := st.readings[id]
		if !ok {
			return fmt.Errorf("tank reading %d: %w", id, core.ErrNotFound)
		}
		if rd.Status != core.StatusPending {
			return fmt.Errorf("tank reading %d is %s: %w", id, rd.Status, core.ErrInvalidTransition)
		}
		v := variance
		rd.Status = core.StatusApproved
		rd.Variance = &v
		st.readings[id] = rd
		return nil
	})
}

func (r repo) Deliveries(_ context.Context, tankID int64, from, until time.Time) ([]core.Delivery, error) {
	var out []core.Delivery
	r.read(func(st *state) {
		for _, d := range st.deliveries {
			if d.TankID == tankID && !d.Date.Before(from) && d.Date.Before(until) {
				out = append(out, d)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r repo) GetDelivery(_ context.Context, id int64) (*core.Delivery, error) {
	var out *core.Delivery
	r.read(func(st *state) {
		if d, ok := st.deliveries[id]; ok {
			out = &d
		}
	})
	if out == nil {
		return nil, fmt.Errorf("delivery %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) ApproveDelivery(_ context.Context, id int64) error {
	return r.write(func(st *state) error {
		d, ok := st.deliveries[id]
		if !ok {
			return fmt.Errorf("delivery %d: %w", id, core.ErrNotFound)
		}
		if d.Status != core.StatusPending {
			return fmt.Errorf("delivery %d is %s: %w", id, d.Status, core.ErrInvalidTransition)
		}
		d.Status = core.StatusApproved
		st.deliveries[id] = d
		return nil
	})
}

// ── Shifts and deposits ───────────────────────────────────────────────────────

func (st *state) shiftWithDeposit(s core.Shift) core.Shift {
	s.Readings = append([]core.NozzleReading(nil), s.Readings...)
	if id, ok := st.depositByShift[s.ID]; ok {
		d := st.deposits[id]
		s.Deposit = &d
	}
	return s
}

func (r repo) Shifts(_ context.Context, orgID int64, from, until time.Time) ([]core.Shift, error) {
	var out []core.Shift
	r.read(func(st *state) {
		for _, s := range st.shifts {
			if s.OrgID == orgID && !s.Date.Before(from) && s.Date.Before(until) {
				out = append(out, st.shiftWithDeposit(s))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r repo) GetShift(_ context.Context, id int64) (*core.Shift, error) {
	var out *core.Shift
	r.read(func(st *state) {
		if s, ok := st.shifts[id]; ok {
			c := st.shiftWithDeposit(s)
			out = &c
		}
	})
	if out == nil {
		return nil, fmt.Errorf("shift %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) GetDeposit(_ context.Context, id int64) (*core.Deposit, error) {
	var out *core.Deposit
	r.read(func(st *state) {
		if d, ok := st.deposits[id]; ok {
			out = &d
		}
	})
	if out == nil {
		return nil, fmt.Errorf("deposit %d: %w", id, core.ErrNotFound)
	}
	return out, nil
}

func (r repo) ApproveDeposit(_ context.Context, id int64, expectedVersion int, approver string, at time.Time) error {
	return r.write(func(st *state) error {
		d, ok := st.deposits[id]
		if !ok {
			return fmt.Errorf("deposit %d: %w", id, core.ErrNotFound)
		}
		if d.Status != core.StatusPending || d.Version != expectedVersion {
			return fmt.Errorf("deposit %d at version %d: %w", id, d.Version, core.ErrConcurrentApproval)
		}
		a, t := approver, at
		d.Status = core.StatusApproved
		d.ApprovedBy = &a
		d.ApprovedAt = &t
		d.Version++
		st.deposits[id] = d
		return nil
	})
}
