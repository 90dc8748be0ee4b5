package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SystemActor is recorded as creator and approver of automatic transactions
// when no user triggered them.
const SystemActor = "system"

// Translator turns operational events into balanced ledger transactions. Every
// method writes through the caller's unit of work and returns a nil
// transaction when the event carries no monetary effect.
type Translator struct {
	accounts *AccountRegistry
	ledger   *Ledger
	log      *logrus.Entry
}

func NewTranslator(accounts *AccountRegistry, ledger *Ledger, log *logrus.Entry) *Translator {
	return &Translator{accounts: accounts, ledger: ledger, log: log.WithField("module", "translator")}
}

// resolver binds the registry to one unit of work and organisation so that a
// translator can resolve several accounts without repeating arguments.
type resolver struct {
	ctx   context.Context
	uow   UnitOfWork
	orgID int64
	reg   *AccountRegistry
	err   error
}

func (t *Translator) resolver(ctx context.Context, uow UnitOfWork, orgID int64) *resolver {
	return &resolver{ctx: ctx, uow: uow, orgID: orgID, reg: t.accounts}
}

// get resolves ref. After the first failure it returns nil and keeps the error.
func (r *resolver) get(ref AccountRef) *Account {
	if r.err != nil {
		return nil
	}
	acc, err := r.reg.Resolve(r.ctx, r.uow, r.orgID, ref)
	if err != nil {
		r.err = err
		return nil
	}
	return acc
}

// autoApproved builds a request for an automatically approved transaction.
func autoApproved(orgID int64, date time.Time, typ TransactionType, description, actor string, source *SourceRef, key string, entries *entrySet) RecordRequest {
	if actor == "" {
		actor = SystemActor
	}
	approver := actor
	return RecordRequest{
		OrgID:          orgID,
		Date:           date,
		Description:    description,
		Type:           typ,
		Entries:        entries.entries(),
		CreatedBy:      actor,
		Status:         StatusApproved,
		ApprovedBy:     &approver,
		Source:         source,
		IdempotencyKey: key,
	}
}

// DeliveryInput is an approved delivery with the unit cost it is valued at.
type DeliveryInput struct {
	Delivery  Delivery
	Product   Product
	UnitPrice decimal.Decimal
	Actor     string
}

// Delivery journals an unload. Without a purchase order only the transit
// loss against ordered volume is booked. With one, the received volume moves
// from the order's goods in transit into inventory and the shortfall against
// the delivered volume is expensed.
func (t *Translator) Delivery(ctx context.Context, uow UnitOfWork, in DeliveryInput) (*Transaction, error) {
	d := in.Delivery
	res := t.resolver(ctx, uow, d.OrgID)
	set := newEntrySet()
	var description string

	if d.PurchaseOrderRef == "" {
		shrinkage := d.OrderedVolume.Sub(d.MeasuredVolume)
		if !shrinkage.IsPositive() {
			return nil, nil
		}
		value := money(shrinkage.Mul(in.UnitPrice))
		if value.IsZero() {
			return nil, nil
		}
		shrink := res.get(TransitShrinkageAccount(in.Product.Name))
		inventory := res.get(InventoryAccount(in.Product.Name))
		if res.err != nil {
			return nil, res.err
		}
		set.debit(shrink, value, fmt.Sprintf("Transit loss %s L", shrinkage.String()))
		set.credit(inventory, value, "")
		description = fmt.Sprintf("Delivery shrinkage %s", in.Product.Name)
	} else {
		delivered := d.ReceivedVolume()
		received := decimal.Min(d.MeasuredVolume, delivered)
		shortfall := delivered.Sub(received)
		receivedValue := money(received.Mul(in.UnitPrice))
		shortfallValue := money(shortfall.Mul(in.UnitPrice))
		total := receivedValue.Add(shortfallValue)
		if total.IsZero() {
			return nil, nil
		}
		inventory := res.get(InventoryAccount(in.Product.Name))
		shrink := res.get(TransitShrinkageAccount(in.Product.Name))
		transit := res.get(GoodsInTransitAccount(d.PurchaseOrderRef))
		if res.err != nil {
			return nil, res.err
		}
		set.debit(inventory, receivedValue, fmt.Sprintf("Received %s L", received.String()))
		set.debit(shrink, shortfallValue, fmt.Sprintf("Transit loss %s L", shortfall.String()))
		set.credit(transit, total, d.PurchaseOrderRef)
		description = fmt.Sprintf("Delivery %s for %s", d.PurchaseOrderRef, in.Product.Name)
	}

	req := autoApproved(d.OrgID, d.Date, TxDelivery, description, in.Actor,
		&SourceRef{Type: sourceDelivery, ID: d.ID}, fmt.Sprintf("delivery-%d", d.ID), set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

// VarianceInput is an approved tank reading with the variance against book stock.
type VarianceInput struct {
	Reading  TankReading
	Tank     Tank
	Product  Product
	Variance decimal.Decimal
	Actor    string
}

// TankVariance journals a gauge variance at the product's current purchase
// price. A shortfall is booked to shrinkage, a surplus reverses it.
func (t *Translator) TankVariance(ctx context.Context, uow UnitOfWork, in VarianceInput) (*Transaction, error) {
	value := money(in.Variance.Abs().Mul(in.Product.PurchasePrice))
	if value.IsZero() {
		return nil, nil
	}
	res := t.resolver(ctx, uow, in.Tank.OrgID)
	shrink := res.get(StorageShrinkageAccount(in.Product.Name))
	inventory := res.get(InventoryAccount(in.Product.Name))
	if res.err != nil {
		return nil, res.err
	}

	set := newEntrySet()
	note := fmt.Sprintf("%s variance %s L", in.Tank.Name, in.Variance.String())
	if in.Variance.IsNegative() {
		set.debit(shrink, value, note)
		set.credit(inventory, value, note)
	} else {
		set.debit(inventory, value, note)
		set.credit(shrink, value, note)
	}
	req := autoApproved(in.Tank.OrgID, in.Reading.Date, TxTankReading,
		fmt.Sprintf("Tank reading %s", in.Tank.Name), in.Actor,
		&SourceRef{Type: sourceTankReading, ID: in.Reading.ID}, fmt.Sprintf("tank-reading-%d", in.Reading.ID), set)
	return t.ledger.RecordInTx(ctx, uow, req)
}

type LotLocation string

const (
	LotWarehouse LotLocation = "warehouse"
	LotInTransit LotLocation = "in_transit"
)

// StockLot is a volume of one product valued at its purchase price, either in
// tanks or still in transit under a purchase order.
type StockLot struct {
	Location LotLocation     `json:"location"`
	OrderRef string          `json:"order_ref,omitempty"`
	Volume   decimal.Decimal `json:"volume"`
}

func (l StockLot) account(product string) (AccountRef, error) {
	switch l.Location {
	case LotWarehouse:
		return InventoryAccount(product), nil
	case LotInTransit:
		if l.OrderRef == "" {
			return AccountRef{}, fmt.Errorf("%w: in-transit lot requires an order reference", ErrInvalidInput)
		}
		return GoodsInTransitAccount(l.OrderRef), nil
	}
	return AccountRef{}, fmt.Errorf("%w: unknown lot location %q", ErrInvalidInput, l.Location)
}

type PriceAdjustmentInput struct {
	Change  PriceChange
	Product Product
	Lot     StockLot
	Actor   string
}

// PriceAdjustment revalues a stock lot after a purchase price change by
// (new - old) x volume.
func (t *Translator) PriceAdjustment(ctx context.Context, uow UnitOfWork, in PriceAdjustmentInput) (*Transaction, error) {
	delta := in.Change.NewPurchasePrice.Sub(in.Change.OldPurchasePrice)
	value := money(delta.Abs().Mul(in.Lot.Volume.Abs()))
	if delta.IsZero() || !in.Lot.Volume.IsPositive() || value.IsZero() {
		return nil, nil
	}
	ref, err := in.Lot.account(in.Product.Name)
	if err != nil {
		return nil, err
	}

	res := t.resolver(ctx, uow, in.Product.OrgID)
	asset := res.get(ref)
	var counter *Account
	if delta.IsPositive() {
		counter = res.get(PriceAdjustmentRevenueAccount())
	} else {
		counter = res.get(PriceAdjustmentExpenseAccount())
	}
	if res.err != nil {
		return nil, res.err
	}

	set := newEntrySet()
	note := fmt.Sprintf("%s L at %s -> %s", in.Lot.Volume.String(), in.Change.OldPurchasePrice.String(), in.Change.NewPurchasePrice.String())
	if delta.IsPositive() {
		set.debit(asset, value, note)
		set.credit(counter, value, note)
	} else {
		set.debit(counter, value, note)
		set.credit(asset, value, note)
	}

	key := fmt.Sprintf("price-adjustment-%d-%s", in.Change.ID, in.Lot.Location)
	if in.Lot.OrderRef != "" {
		key += "-" + in.Lot.OrderRef
	}
	req := autoApproved(in.Product.OrgID, in.Change.ChangedAt, TxAdjustment,
		fmt.Sprintf("Purchase price adjustment %s", in.Product.Name), in.Actor,
		&SourceRef{Type: sourcePriceChange, ID: in.Change.ID}, key, set)
	return t.ledger.RecordInTx(ctx, uow, req)
}
