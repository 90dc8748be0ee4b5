package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fuel-ledger/internal/core"
)

type accountRepo struct{ q querier }

const accountColumns = `id, organization_id, name, category, description, status, created_at`

func scanAccount(row pgx.Row) (*core.Account, error) {
	var a core.Account
	if err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Category, &a.Description, &a.Status, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r accountRepo) Get(ctx context.Context, id int64) (*core.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return a, nil
}

func (r accountRepo) FindByName(ctx context.Context, orgID int64, name string) (*core.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE organization_id = $1 AND name = $2`, orgID, name))
	if err != nil {
		return nil, notFound(err, "account", name)
	}
	return a, nil
}

// Upsert relies on the (organization_id, name) unique key. The no-op update
// makes RETURNING yield the existing row when another writer got there first.
func (r accountRepo) Upsert(ctx context.Context, a core.Account) (*core.Account, error) {
	status := a.Status
	if status == "" {
		status = core.AccountActive
	}
	out, err := scanAccount(r.q.QueryRow(ctx, `
		INSERT INTO accounts (organization_id, name, category, description, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+accountColumns,
		a.OrgID, a.Name, string(a.Category), a.Description, string(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account %q: %w", a.Name, err)
	}
	return out, nil
}

func (r accountRepo) SetStatus(ctx context.Context, id int64, status core.AccountStatus) error {
	tag, err := r.q.Exec(ctx, `UPDATE accounts SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r accountRepo) List(ctx context.Context, orgID int64) ([]core.Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type transactionRepo struct{ q querier }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r transactionRepo) Insert(ctx context.Context, tx *core.Transaction) error {
	var sourceType *string
	var sourceID *int64
	if tx.Source != nil {
		sourceType, sourceID = &tx.Source.Type, &tx.Source.ID
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO transactions (organization_id, date, description, notes, type, status, created_by, approved_by, source_type, source_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		tx.OrgID, tx.Date, tx.Description, tx.Notes, string(tx.Type), string(tx.Status), tx.CreatedBy,
		tx.ApprovedBy, sourceType, sourceID, nullable(tx.IdempotencyKey),
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert transaction header: %w", err)
	}

	for i := range tx.Entries {
		e := &tx.Entries[i]
		e.TransactionID = tx.ID
		err := r.q.QueryRow(ctx, `
			INSERT INTO journal_entries (transaction_id, account_id, debit, credit, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			tx.ID, e.AccountID, e.Debit, e.Credit, e.Description,
		).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}
	return nil
}

func (r transactionRepo) Get(ctx context.Context, id int64) (*core.Transaction, error) {
	var t core.Transaction
	var sourceType *string
	var sourceID *int64
	var key *string
	err := r.q.QueryRow(ctx, `
		SELECT id, organization_id, date, description, notes, type, status, created_by, approved_by,
		       source_type, source_id, idempotency_key, created_at
		FROM transactions WHERE id = $1`, id,
	).Scan(&t.ID, &t.OrgID, &t.Date, &t.Description, &t.Notes, &t.Type, &t.Status, &t.CreatedBy, &t.ApprovedBy,
		&sourceType, &sourceID, &key, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	if sourceType != nil && sourceID != nil {
		t.Source = &core.SourceRef{Type: *sourceType, ID: *sourceID}
	}
	if key != nil {
		t.IdempotencyKey = *key
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, transaction_id, account_id, debit, credit, description
		FROM journal_entries WHERE transaction_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e core.JournalEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Debit, &e.Credit, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	return &t, rows.Err()
}

func (r transactionRepo) SetStatus(ctx context.Context, id int64, from, to core.ApprovalStatus, actor string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE transactions SET status = $3, approved_by = $4
		WHERE id = $1 AND status = $2`, id, string(from), string(to), actor)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var status string
	if err := r.q.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&status); err != nil {
		return notFound(err, "transaction", id)
	}
	return fmt.Errorf("transaction %d is %s: %w", id, status, core.ErrInvalidTransition)
}

func (r transactionRepo) AccountBalances(ctx context.Context, orgID int64, until time.Time) ([]core.AccountBalance, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id, a.organization_id, a.name, a.category, a.description, a.status, a.created_at,
		       COALESCE(s.debit_total, 0), COALESCE(s.credit_total, 0)
		FROM accounts a
		LEFT JOIN (
		    SELECT je.account_id, SUM(je.debit) AS debit_total, SUM(je.credit) AS credit_total
		    FROM journal_entries je
		    JOIN transactions t ON t.id = je.transaction_id
		    WHERE t.organization_id = $1 AND t.status = 'approved' AND t.date < $2
		    GROUP BY je.account_id
		) s ON s.account_id = a.id
		WHERE a.organization_id = $1
		ORDER BY a.id`, orgID, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query account balances: %w", err)
	}
	defer rows.Close()

	var out []core.AccountBalance
	for rows.Next() {
		var b core.AccountBalance
		a := &b.Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.Category, &a.Description, &a.Status, &a.CreatedAt, &b.Debit, &b.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan account balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r transactionRepo) Lines(ctx context.Context, orgID int64, from, until time.Time) ([]core.LedgerLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT t.id, t.date, t.type, t.description, t.source_type, t.source_id,
		       je.id, je.account_id, je.debit, je.credit, je.description,
		       a.id, a.organization_id, a.name, a.category, a.description, a.status, a.created_at
		FROM journal_entries je
		JOIN transactions t ON t.id = je.transaction_id
		JOIN accounts a     ON a.id = je.account_id
		WHERE t.organization_id = $1 AND t.status = 'approved'
		  AND t.date >= $2 AND t.date < $3
		ORDER BY t.date, t.id, je.id`, orgID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger lines: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerLine
	for rows.Next() {
		var l core.LedgerLine
		var sourceType *string
		var sourceID *int64
		a := &l.Account
		if err := rows.Scan(&l.TransactionID, &l.Date, &l.Type, &l.Description, &sourceType, &sourceID,
			&l.Entry.ID, &l.Entry.AccountID, &l.Entry.Debit, &l.Entry.Credit, &l.Entry.Description,
			&a.ID, &a.OrgID, &a.Name, &a.Category, &a.Description, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger line: %w", err)
		}
		l.Entry.TransactionID = l.TransactionID
		if sourceType != nil && sourceID != nil {
			l.Source = &core.SourceRef{Type: *sourceType, ID: *sourceID}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
