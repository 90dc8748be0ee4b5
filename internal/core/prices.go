package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	PriceFromHistory  = "history"
	PriceFromEarliest = "earliest_old_price"
	PriceFromCurrent  = "current_price"
)

// PriceSnapshot is the pair of prices effective at a point in time.
type PriceSnapshot struct {
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Source        string          `json:"source"`
}

// PriceHistory is a product with its ordered change log, loaded once and
// queried for many dates.
type PriceHistory struct {
	Product Product
	Changes []PriceChange
}

// At returns the prices in effect at instant t. The last change at or before
// t wins. Before the first change the earliest change's old prices apply, so
// that past periods are never valued at a later price. A warning is returned
// only when the product has no history at all and current prices are used.
func (h *PriceHistory) At(t time.Time) (PriceSnapshot, *StaleDataWarning) {
	if len(h.Changes) == 0 {
		return PriceSnapshot{
				PurchasePrice: h.Product.PurchasePrice,
				SellingPrice:  h.Product.SellingPrice,
				Source:        PriceFromCurrent,
			}, &StaleDataWarning{
				Source:  PriceFromCurrent,
				Subject: fmt.Sprintf("product %d", h.Product.ID),
				Reason:  "no price history recorded",
			}
	}

	var effective *PriceChange
	for i := range h.Changes {
		if h.Changes[i].ChangedAt.After(t) {
			break
		}
		effective = &h.Changes[i]
	}
	if effective == nil {
		first := h.Changes[0]
		return PriceSnapshot{
			PurchasePrice: first.OldPurchasePrice,
			SellingPrice:  first.OldSellingPrice,
			Source:        PriceFromEarliest,
		}, nil
	}
	return PriceSnapshot{
		PurchasePrice: effective.NewPurchasePrice,
		SellingPrice:  effective.NewSellingPrice,
		Source:        PriceFromHistory,
	}, nil
}

// PriceResolver answers "what did this product cost on that date".
type PriceResolver struct {
	uow UnitOfWork
	log *logrus.Entry
}

func NewPriceResolver(uow UnitOfWork, log *logrus.Entry) *PriceResolver {
	return &PriceResolver{uow: uow, log: log.WithField("module", "price_resolver")}
}

// History loads a product and its full change log.
func (r *PriceResolver) History(ctx context.Context, productID int64) (*PriceHistory, error) {
	product, err := r.uow.Products().GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	changes, err := r.uow.Products().PriceChanges(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history of product %d: %w", productID, err)
	}
	return &PriceHistory{Product: *product, Changes: changes}, nil
}

// PriceAt returns the prices effective at the end of the operational day date.
func (r *PriceResolver) PriceAt(ctx context.Context, productID int64, date time.Time) (PriceSnapshot, error) {
	h, err := r.History(ctx, productID)
	if err != nil {
		return PriceSnapshot{}, err
	}
	snap, warn := h.At(EndOfDay(date))
	if warn != nil {
		r.log.WithFields(logrus.Fields{"product_id": productID, "date": date.Format(DateLayout)}).Warn(warn.Error())
	}
	return snap, nil
}
