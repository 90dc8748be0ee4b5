package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Station runs the approval workflows that turn operational records into
// ledger transactions. Each workflow is one unit of work: the status change
// and every transaction it produces commit together or not at all.
type Station struct {
	store      Store
	accounts   *AccountRegistry
	ledger     *Ledger
	translator *Translator
	locker     Locker
	log        *logrus.Entry
	Now        func() time.Time
}

func NewStation(store Store, locker Locker, log *logrus.Entry) *Station {
	accounts := NewAccountRegistry(log)
	ledger := NewLedger(store, log)
	return &Station{
		store:      store,
		accounts:   accounts,
		ledger:     ledger,
		translator: NewTranslator(accounts, ledger, log),
		locker:     locker,
		log:        log.WithField("module", "station"),
		Now:        time.Now,
	}
}

func (s *Station) Accounts() *AccountRegistry { return s.accounts }
func (s *Station) Ledger() *Ledger            { return s.ledger }

func depositLockKey(shiftID int64) string {
	return fmt.Sprintf("deposit-approval:shift:%d", shiftID)
}

func closingLockKey(orgID int64) string {
	return fmt.Sprintf("month-closing:org:%d", orgID)
}

// ApproveDeposit approves a shift's deposit and journals its revenue and COGS.
// A deposit is approved at most once: concurrent callers are serialised by
// the shift lock and the deposit's version check.
func (s *Station) ApproveDeposit(ctx context.Context, depositID int64, approver string) (*Settlement, error) {
	if approver == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrInvalidInput)
	}
	dep, err := s.store.Shifts().GetDeposit(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deposit %d: %w", depositID, err)
	}

	lock, err := s.locker.Obtain(ctx, depositLockKey(dep.ShiftID))
	if err != nil {
		return nil, fmt.Errorf("shift %d: %w", dep.ShiftID, err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.WithError(err).WithField("shift_id", dep.ShiftID).Error("failed to release approval lock")
		}
	}()

	var settlement *Settlement
	err = s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		current, err := uow.Shifts().GetDeposit(ctx, depositID)
		if err != nil {
			return fmt.Errorf("failed to fetch deposit %d: %w", depositID, err)
		}
		if current.Status != StatusPending {
			return fmt.Errorf("deposit %d is %s: %w", depositID, current.Status, ErrConcurrentApproval)
		}
		shift, err := uow.Shifts().GetShift(ctx, current.ShiftID)
		if err != nil {
			return fmt.Errorf("failed to fetch shift %d: %w", current.ShiftID, err)
		}
		if shift.Status != ShiftCompleted {
			return fmt.Errorf("shift %d is %s: %w", shift.ID, shift.Status, ErrInvalidTransition)
		}

		if err := uow.Shifts().ApproveDeposit(ctx, current.ID, current.Version, approver, s.Now().UTC()); err != nil {
			return fmt.Errorf("failed to approve deposit %d: %w", current.ID, err)
		}
		settlement, err = s.translator.Deposit(ctx, uow, *shift, *current, approver)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"deposit_id": depositID, "shift_id": dep.ShiftID, "approver": approver}).Info("deposit approved")
	return settlement, nil
}

// ApproveDelivery approves an unload and journals its transit movement.
func (s *Station) ApproveDelivery(ctx context.Context, deliveryID int64, approver string) (*Transaction, error) {
	var out *Transaction
	err := s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		d, err := uow.Tanks().GetDelivery(ctx, deliveryID)
		if err != nil {
			return fmt.Errorf("failed to fetch delivery %d: %w", deliveryID, err)
		}
		if d.Status != StatusPending {
			return fmt.Errorf("delivery %d is %s: %w", deliveryID, d.Status, ErrInvalidTransition)
		}
		tank, err := uow.Tanks().GetTank(ctx, d.TankID)
		if err != nil {
			return fmt.Errorf("failed to fetch tank %d: %w", d.TankID, err)
		}
		product, err := uow.Products().GetProduct(ctx, tank.ProductID)
		if err != nil {
			return fmt.Errorf("failed to fetch product %d: %w", tank.ProductID, err)
		}

		price := decimal.Zero
		if d.UnitPrice != nil {
			price = *d.UnitPrice
		} else {
			snap, err := NewPriceResolver(uow, s.log).PriceAt(ctx, product.ID, d.Date)
			if err != nil {
				return err
			}
			price = snap.PurchasePrice
		}

		if err := uow.Tanks().ApproveDelivery(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to approve delivery %d: %w", d.ID, err)
		}
		d.Status = StatusApproved
		out, err = s.translator.Delivery(ctx, uow, DeliveryInput{Delivery: *d, Product: *product, UnitPrice: price, Actor: approver})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"delivery_id": deliveryID, "approver": approver}).Info("delivery approved")
	return out, nil
}

type ReadingApproval struct {
	Reading     TankReading     `json:"reading"`
	BookStock   decimal.Decimal `json:"book_stock"`
	Variance    decimal.Decimal `json:"variance"`
	Transaction *Transaction    `json:"transaction,omitempty"`
}

// ApproveTankReading approves a gauge reading, stores its variance against
// the book stock of the day and journals the variance.
func (s *Station) ApproveTankReading(ctx context.Context, readingID int64, approver string) (*ReadingApproval, error) {
	var out *ReadingApproval
	err := s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		r, err := uow.Tanks().GetReading(ctx, readingID)
		if err != nil {
			return fmt.Errorf("failed to fetch reading %d: %w", readingID, err)
		}
		if r.Status != StatusPending {
			return fmt.Errorf("reading %d is %s: %w", readingID, r.Status, ErrInvalidTransition)
		}
		tank, err := uow.Tanks().GetTank(ctx, r.TankID)
		if err != nil {
			return fmt.Errorf("failed to fetch tank %d: %w", r.TankID, err)
		}
		product, err := uow.Products().GetProduct(ctx, tank.ProductID)
		if err != nil {
			return fmt.Errorf("failed to fetch product %d: %w", tank.ProductID, err)
		}

		book, err := NewStockCalculator(uow, s.log).stockAsOf(ctx, tank, Day(r.Date))
		if err != nil {
			return err
		}
		variance := r.LiterValue.Sub(book.Liters)
		if err := uow.Tanks().ApproveReading(ctx, r.ID, variance); err != nil {
			return fmt.Errorf("failed to approve reading %d: %w", r.ID, err)
		}
		r.Status = StatusApproved
		r.Variance = &variance

		tx, err := s.translator.TankVariance(ctx, uow, VarianceInput{Reading: *r, Tank: *tank, Product: *product, Variance: variance, Actor: approver})
		if err != nil {
			return err
		}
		out = &ReadingApproval{Reading: *r, BookStock: book.Liters, Variance: variance, Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"reading_id": readingID, "variance": out.Variance.String()}).Info("tank reading approved")
	return out, nil
}

type PriceChangeRequest struct {
	ProductID        int64            `json:"product_id"`
	NewPurchasePrice decimal.Decimal  `json:"new_purchase_price"`
	NewSellingPrice  *decimal.Decimal `json:"new_selling_price,omitempty"`
	EffectiveAt      time.Time        `json:"effective_at"`
	// InTransit lists purchase orders whose goods are still on the way and are
	// revalued along with the warehouse stock.
	InTransit []StockLot `json:"in_transit,omitempty"`
	Actor     string     `json:"actor"`
}

type PriceChangeResult struct {
	Change      PriceChange    `json:"change"`
	Warehouse   StockLot       `json:"warehouse"`
	Adjustments []*Transaction `json:"adjustments"`
}

// ChangePurchasePrice appends a price change and revalues the product's
// remaining stock in tanks and in transit.
func (s *Station) ChangePurchasePrice(ctx context.Context, req PriceChangeRequest) (*PriceChangeResult, error) {
	if req.NewPurchasePrice.IsNegative() {
		return nil, fmt.Errorf("%w: purchase price cannot be negative", ErrInvalidInput)
	}
	if req.NewSellingPrice != nil && req.NewSellingPrice.IsNegative() {
		return nil, fmt.Errorf("%w: selling price cannot be negative", ErrInvalidInput)
	}
	at := req.EffectiveAt
	if at.IsZero() {
		at = s.Now().UTC()
	}

	var out *PriceChangeResult
	err := s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		product, err := uow.Products().GetProduct(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("failed to fetch product %d: %w", req.ProductID, err)
		}
		selling := product.SellingPrice
		if req.NewSellingPrice != nil {
			selling = *req.NewSellingPrice
		}
		if product.PurchasePrice.Equal(req.NewPurchasePrice) && product.SellingPrice.Equal(selling) {
			return fmt.Errorf("%w: product %d prices unchanged", ErrInvalidInput, product.ID)
		}

		change := &PriceChange{
			ProductID:        product.ID,
			OldPurchasePrice: product.PurchasePrice,
			NewPurchasePrice: req.NewPurchasePrice,
			OldSellingPrice:  product.SellingPrice,
			NewSellingPrice:  selling,
			ChangedAt:        at,
			ChangedBy:        req.Actor,
		}
		if err := uow.Products().AppendPriceChange(ctx, change); err != nil {
			return fmt.Errorf("failed to append price change: %w", err)
		}
		if err := uow.Products().UpdatePrices(ctx, product.ID, req.NewPurchasePrice, selling); err != nil {
			return fmt.Errorf("failed to update prices of product %d: %w", product.ID, err)
		}

		warehouse, err := s.warehouseLot(ctx, uow, product, at)
		if err != nil {
			return err
		}
		out = &PriceChangeResult{Change: *change, Warehouse: warehouse}
		lots := append([]StockLot{warehouse}, req.InTransit...)
		for _, lot := range lots {
			tx, err := s.translator.PriceAdjustment(ctx, uow, PriceAdjustmentInput{Change: *change, Product: *product, Lot: lot, Actor: req.Actor})
			if err != nil {
				return err
			}
			if tx != nil {
				out.Adjustments = append(out.Adjustments, tx)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"product_id":  req.ProductID,
		"adjustments": len(out.Adjustments),
	}).Info("purchase price changed")
	return out, nil
}

// warehouseLot is the product's stock across its tanks on the day of at.
func (s *Station) warehouseLot(ctx context.Context, uow UnitOfWork, product *Product, at time.Time) (StockLot, error) {
	lot := StockLot{Location: LotWarehouse, Volume: decimal.Zero}
	tanks, err := uow.Tanks().ListTanks(ctx, product.OrgID)
	if err != nil {
		return lot, fmt.Errorf("failed to list tanks: %w", err)
	}
	calc := NewStockCalculator(uow, s.log)
	for i := range tanks {
		if tanks[i].ProductID != product.ID {
			continue
		}
		level, err := calc.stockAsOf(ctx, &tanks[i], Day(at))
		if err != nil {
			return lot, err
		}
		if level.Liters.IsPositive() {
			lot.Volume = lot.Volume.Add(level.Liters)
		}
	}
	return lot, nil
}

type CustodialFillRequest struct {
	OrgID     int64           `json:"org_id"`
	Custodian string          `json:"custodian"`
	ProductID int64           `json:"product_id"`
	Volume    decimal.Decimal `json:"volume"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Actor     string          `json:"actor"`
}

// FillCustodial records fuel taken into custody at the prices of its date.
func (s *Station) FillCustodial(ctx context.Context, req CustodialFillRequest) (*Transaction, error) {
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: custodial fill requires a date", ErrInvalidInput)
	}
	var out *Transaction
	err := s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		product, err := uow.Products().GetProduct(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("failed to fetch product %d: %w", req.ProductID, err)
		}
		if product.OrgID != req.OrgID {
			return fmt.Errorf("product %d: %w", req.ProductID, ErrNotFound)
		}
		prices, err := NewPriceResolver(uow, s.log).PriceAt(ctx, product.ID, req.Date)
		if err != nil {
			return err
		}
		key := ""
		if req.Reference != "" {
			key = "custodial-fill-" + req.Reference
		}
		out, err = s.translator.CustodialFill(ctx, uow, CustodialFillInput{
			OrgID:          req.OrgID,
			Custodian:      req.Custodian,
			Product:        *product,
			Volume:         req.Volume,
			Prices:         prices,
			Date:           req.Date,
			IdempotencyKey: key,
			Actor:          req.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type CustodialAdjustmentRequest struct {
	OrgID     int64           `json:"org_id"`
	Custodian string          `json:"custodian"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Actor     string          `json:"actor"`
}

func (s *Station) AdjustCustodial(ctx context.Context, req CustodialAdjustmentRequest) (*Transaction, error) {
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: custodial adjustment requires a date", ErrInvalidInput)
	}
	key := ""
	if req.Reference != "" {
		key = "custodial-adjustment-" + req.Reference
	}
	var out *Transaction
	err := s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		var err error
		out, err = s.translator.CustodialAdjustment(ctx, uow, CustodialAdjustmentInput{
			OrgID:          req.OrgID,
			Custodian:      req.Custodian,
			Amount:         req.Amount,
			Reason:         req.Reason,
			Date:           req.Date,
			IdempotencyKey: key,
			Actor:          req.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloseMonth closes the month's result into realtime profit/loss and
// transfers that balance into retained earnings. Closings of one organisation
// are serialised by the organisation lock.
func (s *Station) CloseMonth(ctx context.Context, orgID int64, year int, month time.Month, actor string) (*Transaction, error) {
	period, err := MonthPeriod(year, month)
	if err != nil {
		return nil, err
	}
	lock, err := s.locker.Obtain(ctx, closingLockKey(orgID))
	if err != nil {
		return nil, fmt.Errorf("org %d closing: %w", orgID, err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.WithError(err).WithField("org_id", orgID).Error("failed to release closing lock")
		}
	}()

	var out *Transaction
	err = s.store.WithinTx(ctx, func(uow UnitOfWork) error {
		var err error
		out, err = s.translator.MonthlyClosing(ctx, uow, orgID, period, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		s.log.WithFields(logrus.Fields{"org_id": orgID, "period": period.End.Format("2006-01")}).Info("month closed")
	}
	return out, nil
}

// RecordTransaction records a manually entered transaction. Without an
// explicit status it waits for approval.
func (s *Station) RecordTransaction(ctx context.Context, req RecordRequest) (*Transaction, error) {
	if req.Status == StatusApproved && (req.ApprovedBy == nil || *req.ApprovedBy == "") {
		return nil, fmt.Errorf("%w: approved transaction requires an approver", ErrInvalidInput)
	}
	return s.ledger.Record(ctx, req)
}
