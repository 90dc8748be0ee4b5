// Package memory provides an in-memory core.Store for tests and dev mode.
package memory

import (
	"context"
	"sync"
	"time"

	"fuel-ledger/internal/core"
)

type nameKey struct {
	orgID int64
	name  string
}

// state is everything the store holds. It is replaced wholesale on rollback.
type state struct {
	nextID int64

	accounts      map[int64]core.Account
	accountByName map[nameKey]int64

	transactions map[int64]core.Transaction
	idempotency  map[string]int64

	products     map[int64]core.Product
	priceChanges map[int64][]core.PriceChange

	tanks      map[int64]core.Tank
	readings   map[int64]core.TankReading
	deliveries map[int64]core.Delivery

	shifts         map[int64]core.Shift
	deposits       map[int64]core.Deposit
	depositByShift map[int64]int64
}

func newState() *state {
	return &state{
		accounts:       make(map[int64]core.Account),
		accountByName:  make(map[nameKey]int64),
		transactions:   make(map[int64]core.Transaction),
		idempotency:    make(map[string]int64),
		products:       make(map[int64]core.Product),
		priceChanges:   make(map[int64][]core.PriceChange),
		tanks:          make(map[int64]core.Tank),
		readings:       make(map[int64]core.TankReading),
		deliveries:     make(map[int64]core.Delivery),
		shifts:         make(map[int64]core.Shift),
		deposits:       make(map[int64]core.Deposit),
		depositByShift: make(map[int64]int64),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every map and slice header. Stored values are only ever
// replaced, never mutated in place, so struct copies are enough.
func (s *state) clone() *state {
	changes := make(map[int64][]core.PriceChange, len(s.priceChanges))
	for k, v := range s.priceChanges {
		changes[k] = append([]core.PriceChange(nil), v...)
	}
	return &state{
		nextID:         s.nextID,
		accounts:       cloneMap(s.accounts),
		accountByName:  cloneMap(s.accountByName),
		transactions:   cloneMap(s.transactions),
		idempotency:    cloneMap(s.idempotency),
		products:       cloneMap(s.products),
		priceChanges:   changes,
		tanks:          cloneMap(s.tanks),
		readings:       cloneMap(s.readings),
		deliveries:     cloneMap(s.deliveries),
		shifts:         cloneMap(s.shifts),
		deposits:       cloneMap(s.deposits),
		depositByShift: cloneMap(s.depositByShift),
	}
}

// Store is a core.Store held in memory. Used directly every call is atomic on
// its own; WithinTx holds the write lock for the whole callback and restores
// the previous state if it fails.
type Store struct {
	mu  sync.RWMutex
	st  *state
	Now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), Now: time.Now}
}

// repo implements every repository interface over the store. Inside a
// transaction the store lock is already held.
type repo struct {
	s    *Store
	inTx bool
}

func (r repo) read(fn func(st *state)) {
	if !r.inTx {
		r.s.mu.RLock()
		defer r.s.mu.RUnlock()
	}
	fn(r.s.st)
}

func (r repo) write(fn func(st *state) error) error {
	if !r.inTx {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
	}
	return fn(r.s.st)
}

func (r repo) now() time.Time { return r.s.Now().UTC() }

func (s *Store) outer() repo { return repo{s: s} }

func (s *Store) Accounts() core.AccountRepository         { return s.outer() }
func (s *Store) Transactions() core.TransactionRepository { return txRepo{s.outer()} }
func (s *Store) Products() core.ProductRepository         { return s.outer() }
func (s *Store) Tanks() core.TankRepository               { return s.outer() }
func (s *Store) Shifts() core.ShiftRepository             { return s.outer() }

func (s *Store) WithinTx(ctx context.Context, fn func(uow core.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(txView{repo{s: s, inTx: true}}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type txView struct {
	r repo
}

func (v txView) Accounts() core.AccountRepository         { return v.r }
func (v txView) Transactions() core.TransactionRepository { return txRepo{v.r} }
func (v txView) Products() core.ProductRepository         { return v.r }
func (v txView) Tanks() core.TankRepository               { return v.r }
func (v txView) Shifts() core.ShiftRepository             { return v.r }

var _ core.Store = (*Store)(nil)
