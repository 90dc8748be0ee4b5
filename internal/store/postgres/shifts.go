package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fuel-ledger/internal/core"
)

type shiftRepo struct{ q querier }

const shiftColumns = `id, organization_id, date, status, operator, completed_at`

func scanShift(row pgx.Row) (*core.Shift, error) {
	var s core.Shift
	if err := row.Scan(&s.ID, &s.OrgID, &s.Date, &s.Status, &s.Operator, &s.CompletedAt); err != nil {
		return nil, err
	}
	if s.CompletedAt != nil {
		t := s.CompletedAt.UTC()
		s.CompletedAt = &t
	}
	return &s, nil
}

func (r shiftRepo) Shifts(ctx context.Context, orgID int64, from, until time.Time) ([]core.Shift, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE organization_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, id`, orgID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	var out []core.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		out = append(out, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attach(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r shiftRepo) GetShift(ctx context.Context, id int64) (*core.Shift, error) {
	s, err := scanShift(r.q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "shift", id)
	}
	shifts := []core.Shift{*s}
	if err := r.attach(ctx, shifts); err != nil {
		return nil, err
	}
	return &shifts[0], nil
}

// attach loads nozzle readings and deposits for shifts in two batched queries.
func (r shiftRepo) attach(ctx context.Context, shifts []core.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	ids := make([]int64, len(shifts))
	index := make(map[int64]int, len(shifts))
	for i, s := range shifts {
		ids[i] = s.ID
		index[s.ID] = i
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, shift_id, nozzle_id, tank_id, type, totalizer, pump_test
		FROM nozzle_readings WHERE shift_id = ANY($1)
		ORDER BY shift_id, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to query nozzle readings: %w", err)
	}
	for rows.Next() {
		var nr core.NozzleReading
		if err := rows.Scan(&nr.ID, &nr.ShiftID, &nr.NozzleID, &nr.TankID, &nr.Type, &nr.Totalizer, &nr.PumpTest); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan nozzle reading: %w", err)
		}
		s := &shifts[index[nr.ShiftID]]
		s.Readings = append(s.Readings, nr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	deposits, err := r.deposits(ctx, `WHERE shift_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	for i := range deposits {
		d := deposits[i]
		shifts[index[d.ShiftID]].Deposit = &d
	}
	return nil
}

func (r shiftRepo) GetDeposit(ctx context.Context, id int64) (*core.Deposit, error) {
	deposits, err := r.deposits(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, fmt.Errorf("deposit %d: %w", id, core.ErrNotFound)
	}
	return &deposits[0], nil
}

// deposits loads deposit headers matching where, then their payment details,
// free fuel and custodial draws.
func (r shiftRepo) deposits(ctx context.Context, where string, arg any) ([]core.Deposit, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, organization_id, shift_id, total_amount, status, version, approved_by, approved_at, created_at
		FROM deposits `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	var out []core.Deposit
	for rows.Next() {
		var d core.Deposit
		if err := rows.Scan(&d.ID, &d.OrgID, &d.ShiftID, &d.TotalAmount, &d.Status, &d.Version,
			&d.ApprovedBy, &d.ApprovedAt, &d.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		out = append(out, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(out))
	index := make(map[int64]int, len(out))
	for i, d := range out {
		ids[i] = d.ID
		index[d.ID] = i
	}

	rows, err = r.q.Query(ctx, `
		SELECT deposit_id, method, bank_name, amount FROM deposit_details
		WHERE deposit_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposit details: %w", err)
	}
	for rows.Next() {
		var depositID int64
		var dd core.DepositDetail
		if err := rows.Scan(&depositID, &dd.Method, &dd.BankName, &dd.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deposit detail: %w", err)
		}
		d := &out[index[depositID]]
		d.Details = append(d.Details, dd)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.q.Query(ctx, `
		SELECT deposit_id, product_id, volume, amount, reason FROM free_fuel_adjustments
		WHERE deposit_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query free fuel adjustments: %w", err)
	}
	for rows.Next() {
		var depositID int64
		var ff core.FreeFuelAdjustment
		if err := rows.Scan(&depositID, &ff.ProductID, &ff.Volume, &ff.Amount, &ff.Reason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan free fuel adjustment: %w", err)
		}
		d := &out[index[depositID]]
		d.FreeFuel = append(d.FreeFuel, ff)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.q.Query(ctx, `
		SELECT deposit_id, custodian, product_id, volume, amount FROM custodial_draws
		WHERE deposit_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query custodial draws: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var depositID int64
		var cd core.CustodialDraw
		if err := rows.Scan(&depositID, &cd.Custodian, &cd.ProductID, &cd.Volume, &cd.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan custodial draw: %w", err)
		}
		d := &out[index[depositID]]
		d.CustodialDraws = append(d.CustodialDraws, cd)
	}
	return out, rows.Err()
}

// ApproveDeposit is an optimistic compare-and-set on (status, version).
func (r shiftRepo) ApproveDeposit(ctx context.Context, id int64, expectedVersion int, approver string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE deposits
		SET status = 'approved', version = version + 1, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = 'pending' AND version = $2`,
		id, expectedVersion, approver, at)
	if err != nil {
		return fmt.Errorf("failed to approve deposit %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetDeposit(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("deposit %d: %w", id, core.ErrConcurrentApproval)
	}
	return nil
}
