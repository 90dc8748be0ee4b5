package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuel-ledger/internal/core"
)

type productRepo struct{ q querier }

func (r productRepo) GetProduct(ctx context.Context, id int64) (*core.Product, error) {
	var p core.Product
	err := r.q.QueryRow(ctx, `
		SELECT id, organization_id, name, purchase_price, selling_price
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.PurchasePrice, &p.SellingPrice)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func (r productRepo) ListProducts(ctx context.Context, orgID int64) ([]core.Product, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, organization_id, name, purchase_price, selling_price
		FROM products WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		var p core.Product
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.PurchasePrice, &p.SellingPrice); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r productRepo) UpdatePrices(ctx context.Context, id int64, purchase, selling decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE products SET purchase_price = $2, selling_price = $3 WHERE id = $1`, id, purchase, selling)
	if err != nil {
		return fmt.Errorf("failed to update prices of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r productRepo) AppendPriceChange(ctx context.Context, c *core.PriceChange) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO product_price_history
		    (product_id, old_purchase_price, new_purchase_price, old_selling_price, new_selling_price, changed_at, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		c.ProductID, c.OldPurchasePrice, c.NewPurchasePrice, c.OldSellingPrice, c.NewSellingPrice, c.ChangedAt, c.ChangedBy,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to append price change: %w", err)
	}
	return nil
}

func (r productRepo) PriceChanges(ctx context.Context, productID int64) ([]core.PriceChange, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, old_purchase_price, new_purchase_price, old_selling_price, new_selling_price, changed_at, changed_by
		FROM product_price_history WHERE product_id = $1
		ORDER BY changed_at, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var out []core.PriceChange
	for rows.Next() {
		var c core.PriceChange
		if err := rows.Scan(&c.ID, &c.ProductID, &c.OldPurchasePrice, &c.NewPurchasePrice,
			&c.OldSellingPrice, &c.NewSellingPrice, &c.ChangedAt, &c.ChangedBy); err != nil {
			return nil, fmt.Errorf("failed to scan price change: %w", err)
		}
		c.ChangedAt = c.ChangedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

type tankRepo struct{ q querier }

const tankColumns = `id, organization_id, product_id, name, capacity, initial_stock, created_at`

func scanTank(row pgx.Row) (*core.Tank, error) {
	var t core.Tank
	if err := row.Scan(&t.ID, &t.OrgID, &t.ProductID, &t.Name, &t.Capacity, &t.InitialStock, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (r tankRepo) GetTank(ctx context.Context, id int64) (*core.Tank, error) {
	t, err := scanTank(r.q.QueryRow(ctx, `SELECT `+tankColumns+` FROM tanks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "tank", id)
	}
	return t, nil
}

func (r tankRepo) ListTanks(ctx context.Context, orgID int64) ([]core.Tank, error) {
	rows, err := r.q.Query(ctx, `SELECT `+tankColumns+` FROM tanks WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tanks: %w", err)
	}
	defer rows.Close()

	var out []core.Tank
	for rows.Next() {
		t, err := scanTank(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tank: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const readingColumns = `id, tank_id, date, liter_value, variance, status, created_by, created_at`

func scanReading(row pgx.Row) (*core.TankReading, error) {
	var tr core.TankReading
	var variance decimal.NullDecimal
	if err := row.Scan(&tr.ID, &tr.TankID, &tr.Date, &tr.LiterValue, &variance, &tr.Status, &tr.CreatedBy, &tr.CreatedAt); err != nil {
		return nil, err
	}
	if variance.Valid {
		tr.Variance = &variance.Decimal
	}
	tr.CreatedAt = tr.CreatedAt.UTC()
	return &tr, nil
}

func (r tankRepo) Readings(ctx context.Context, tankID int64, until time.Time) ([]core.TankReading, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+readingColumns+` FROM tank_readings
		WHERE tank_id = $1 AND date < $2
		ORDER BY date, created_at, id`, tankID, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query tank readings: %w", err)
	}
	defer rows.Close()

	var out []core.TankReading
	for rows.Next() {
		tr, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tank reading: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

func (r tankRepo) GetReading(ctx context.Context, id int64) (*core.TankReading, error) {
	tr, err := scanReading(r.q.QueryRow(ctx, `SELECT `+readingColumns+` FROM tank_readings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "tank reading", id)
	}
	return tr, nil
}

func (r tankRepo) ApproveReading(ctx context.Context, id int64, variance decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tank_readings SET status = 'approved', variance = $2
		WHERE id = $1 AND status = 'pending'`, id, variance)
	if err != nil {
		return fmt.Errorf("failed to approve tank reading %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetReading(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("tank reading %d is not pending: %w", id, core.ErrInvalidTransition)
	}
	return nil
}

const deliveryColumns = `id, organization_id, tank_id, date, ordered_volume, delivered_volume, measured_volume,
	status, purchase_order_id, purchase_order_ref, unit_price, created_at`

func scanDelivery(row pgx.Row) (*core.Delivery, error) {
	var d core.Delivery
	var delivered, unitPrice decimal.NullDecimal
	if err := row.Scan(&d.ID, &d.OrgID, &d.TankID, &d.Date, &d.OrderedVolume, &delivered, &d.MeasuredVolume,
		&d.Status, &d.PurchaseOrderID, &d.PurchaseOrderRef, &unitPrice, &d.CreatedAt); err != nil {
		return nil, err
	}
	if delivered.Valid {
		d.DeliveredVolume = &delivered.Decimal
	}
	if unitPrice.Valid {
		d.UnitPrice = &unitPrice.Decimal
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func (r tankRepo) Deliveries(ctx context.Context, tankID int64, from, until time.Time) ([]core.Delivery, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE tank_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, created_at, id`, tankID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var out []core.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r tankRepo) GetDelivery(ctx context.Context, id int64) (*core.Delivery, error) {
	d, err := scanDelivery(r.q.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (r tankRepo) ApproveDelivery(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE deliveries SET status = 'approved' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to approve delivery %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetDelivery(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("delivery %d is not pending: %w", id, core.ErrInvalidTransition)
	}
	return nil
}
