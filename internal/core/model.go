package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountCategory string

const (
	Asset     AccountCategory = "asset"
	Liability AccountCategory = "liability"
	Equity    AccountCategory = "equity"
	Revenue   AccountCategory = "revenue"
	Expense   AccountCategory = "expense"
	COGS      AccountCategory = "cogs"
)

// Valid reports whether c is one of the six fixed categories.
func (c AccountCategory) Valid() bool {
	switch c {
	case Asset, Liability, Equity, Revenue, Expense, COGS:
		return true
	}
	return false
}

// DebitNormal reports whether balances in this category grow with debits.
// Asset, Expense and COGS accounts are debit-normal; the rest are credit-normal.
func (c AccountCategory) DebitNormal() bool {
	switch c {
	case Asset, Expense, COGS:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

type Account struct {
	ID          int64           `json:"id"`
	OrgID       int64           `json:"org_id"`
	Name        string          `json:"name"`
	Category    AccountCategory `json:"category"`
	Description string          `json:"description,omitempty"`
	Status      AccountStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TxDelivery    TransactionType = "delivery"
	TxTankReading TransactionType = "tank_reading"
	TxRevenue     TransactionType = "revenue"
	TxCOGS        TransactionType = "cogs"
	TxAdjustment  TransactionType = "adjustment"
	TxCash        TransactionType = "cash"
	TxCustodial   TransactionType = "custodial"
	TxClosing     TransactionType = "closing"
)

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// SourceRef links a transaction back to the operational record it was generated from.
type SourceRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

const (
	sourceDelivery    = "delivery"
	sourceTankReading = "tank_reading"
	sourcePriceChange = "price_change"
	sourceDeposit     = "deposit"
)

type Transaction struct {
	ID             int64           `json:"id"`
	OrgID          int64           `json:"org_id"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Notes          string          `json:"notes,omitempty"`
	Type           TransactionType `json:"type"`
	Status         ApprovalStatus  `json:"status"`
	CreatedBy      string          `json:"created_by"`
	ApprovedBy     *string         `json:"approved_by,omitempty"`
	Source         *SourceRef      `json:"source,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Entries        []JournalEntry  `json:"entries"`
}

// Totals sums the debit and credit sides of the transaction's entries.
func (t *Transaction) Totals() (debit, credit decimal.Decimal) {
	for _, e := range t.Entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

type JournalEntry struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Description   string          `json:"description,omitempty"`
}

type Product struct {
	ID            int64           `json:"id"`
	OrgID         int64           `json:"org_id"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
}

// PriceChange is one row of a product's append-only price log.
type PriceChange struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	OldPurchasePrice decimal.Decimal `json:"old_purchase_price"`
	NewPurchasePrice decimal.Decimal `json:"new_purchase_price"`
	OldSellingPrice  decimal.Decimal `json:"old_selling_price"`
	NewSellingPrice  decimal.Decimal `json:"new_selling_price"`
	ChangedAt        time.Time       `json:"changed_at"`
	ChangedBy        string          `json:"changed_by"`
}

type Tank struct {
	ID           int64           `json:"id"`
	OrgID        int64           `json:"org_id"`
	ProductID    int64           `json:"product_id"`
	Name         string          `json:"name"`
	Capacity     decimal.Decimal `json:"capacity"`
	InitialStock decimal.Decimal `json:"initial_stock"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TankReading is a manual gauge reading. Date is the operational day the
// reading closes; CreatedAt orders several readings on the same day.
type TankReading struct {
	ID         int64            `json:"id"`
	TankID     int64            `json:"tank_id"`
	Date       time.Time        `json:"date"`
	LiterValue decimal.Decimal  `json:"liter_value"`
	Variance   *decimal.Decimal `json:"variance,omitempty"`
	Status     ApprovalStatus   `json:"status"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

type Delivery struct {
	ID              int64            `json:"id"`
	OrgID           int64            `json:"org_id"`
	TankID          int64            `json:"tank_id"`
	Date            time.Time        `json:"date"`
	OrderedVolume   decimal.Decimal  `json:"ordered_volume"`
	DeliveredVolume *decimal.Decimal `json:"delivered_volume,omitempty"`
	MeasuredVolume  decimal.Decimal  `json:"measured_volume"`
	Status          ApprovalStatus   `json:"status"`
	// PurchaseOrderID and UnitPrice come from the originating purchase; when set
	// the delivery clears the order's goods-in-transit balance.
	PurchaseOrderID  *int64           `json:"purchase_order_id,omitempty"`
	PurchaseOrderRef string           `json:"purchase_order_ref,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ReceivedVolume is the delivered volume on the waybill, or the ordered volume
// when the driver recorded none.
func (d Delivery) ReceivedVolume() decimal.Decimal {
	if d.DeliveredVolume != nil {
		return *d.DeliveredVolume
	}
	return d.OrderedVolume
}

type ShiftStatus string

const (
	ShiftOpen      ShiftStatus = "open"
	ShiftCompleted ShiftStatus = "completed"
)

type ReadingType string

const (
	ReadingOpen  ReadingType = "OPEN"
	ReadingClose ReadingType = "CLOSE"
)

// NozzleReading is a totalizer reading. PumpTest is recorded on the CLOSE reading.
type NozzleReading struct {
	ID        int64           `json:"id"`
	ShiftID   int64           `json:"shift_id"`
	NozzleID  int64           `json:"nozzle_id"`
	TankID    int64           `json:"tank_id"`
	Type      ReadingType     `json:"type"`
	Totalizer decimal.Decimal `json:"totalizer"`
	PumpTest  decimal.Decimal `json:"pump_test"`
}

type Shift struct {
	ID          int64           `json:"id"`
	OrgID       int64           `json:"org_id"`
	Date        time.Time       `json:"date"`
	Status      ShiftStatus     `json:"status"`
	Operator    string          `json:"operator"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Readings    []NozzleReading `json:"readings"`
	Deposit     *Deposit        `json:"deposit,omitempty"`
}

// Settled reports whether the shift's volumes count toward stock and sales:
// the shift is completed and its deposit approved.
func (s Shift) Settled() bool {
	return s.Status == ShiftCompleted && s.Deposit != nil && s.Deposit.Status == StatusApproved
}

// TankVolume is the sales and pump-test volume a shift drew from one tank.
type TankVolume struct {
	Sales    decimal.Decimal
	PumpTest decimal.Decimal
}

// TankVolumes pairs OPEN/CLOSE readings per nozzle and sums them per tank.
// Sales per nozzle are close - open - pumpTest, floored at zero. Nozzles
// without both readings contribute nothing.
func (s Shift) TankVolumes() map[int64]TankVolume {
	type pair struct {
		open, close *NozzleReading
	}
	pairs := make(map[int64]*pair)
	var order []int64
	for i := range s.Readings {
		r := &s.Readings[i]
		p, ok := pairs[r.NozzleID]
		if !ok {
			p = &pair{}
			pairs[r.NozzleID] = p
			order = append(order, r.NozzleID)
		}
		switch r.Type {
		case ReadingOpen:
			p.open = r
		case ReadingClose:
			p.close = r
		}
	}

	out := make(map[int64]TankVolume)
	for _, nozzleID := range order {
		p := pairs[nozzleID]
		if p.open == nil || p.close == nil {
			continue
		}
		sales := p.close.Totalizer.Sub(p.open.Totalizer).Sub(p.close.PumpTest)
		if sales.IsNegative() {
			sales = decimal.Zero
		}
		v := out[p.close.TankID]
		v.Sales = v.Sales.Add(sales)
		v.PumpTest = v.PumpTest.Add(p.close.PumpTest)
		out[p.close.TankID] = v
	}
	return out
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentBank   PaymentMethod = "bank"
	PaymentCoupon PaymentMethod = "coupon"
)

type DepositDetail struct {
	Method   PaymentMethod   `json:"method"`
	BankName string          `json:"bank_name,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// FreeFuelAdjustment is fuel dispensed without payment, expensed at selling value.
type FreeFuelAdjustment struct {
	ProductID int64           `json:"product_id"`
	Volume    decimal.Decimal `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

// CustodialDraw is fuel drawn against a third party's custodial ("titipan") balance.
type CustodialDraw struct {
	Custodian string          `json:"custodian"`
	ProductID int64           `json:"product_id"`
	Volume    decimal.Decimal `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
}

type Deposit struct {
	ID             int64                `json:"id"`
	OrgID          int64                `json:"org_id"`
	ShiftID        int64                `json:"shift_id"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	Status         ApprovalStatus       `json:"status"`
	Details        []DepositDetail      `json:"details"`
	FreeFuel       []FreeFuelAdjustment `json:"free_fuel,omitempty"`
	CustodialDraws []CustodialDraw      `json:"custodial_draws,omitempty"`
	Version        int                  `json:"version"`
	ApprovedBy     *string              `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time           `json:"approved_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
