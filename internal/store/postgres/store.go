// Package postgres implements core.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/core"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	unitOfWork
	pool *pgxpool.Pool
	log  *logrus.Entry
}

func New(pool *pgxpool.Pool, log *logrus.Entry) *Store {
	return &Store{
		unitOfWork: unitOfWork{q: pool},
		pool:       pool,
		log:        log.WithField("module", "postgres"),
	}
}

// WithinTx runs fn inside one database transaction and commits when fn
// returns nil. Any error rolls back every row fn wrote.
func (s *Store) WithinTx(ctx context.Context, fn func(uow core.UnitOfWork) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(unitOfWork{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type unitOfWork struct {
	q querier
}

func (u unitOfWork) Accounts() core.AccountRepository         { return accountRepo{u.q} }
func (u unitOfWork) Transactions() core.TransactionRepository { return transactionRepo{u.q} }
func (u unitOfWork) Products() core.ProductRepository         { return productRepo{u.q} }
func (u unitOfWork) Tanks() core.TankRepository               { return tankRepo{u.q} }
func (u unitOfWork) Shifts() core.ShiftRepository             { return shiftRepo{u.q} }

var _ core.Store = (*Store)(nil)

// notFound maps pgx.ErrNoRows to core.ErrNotFound.
func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("failed to fetch %s %v: %w", what, id, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
