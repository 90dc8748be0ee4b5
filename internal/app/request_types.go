package app

import (
	"github.com/shopspring/decimal"

	"fuel-ledger/internal/core"
)

// RecordTransactionRequest is the input for a manual journal entry.
type RecordTransactionRequest struct {
	OrgID       int64            `json:"org_id"`
	Date        string           `json:"date"` // YYYY-MM-DD
	Description string           `json:"description"`
	Notes       string           `json:"notes,omitempty"`
	Type        string           `json:"type"`
	CreatedBy   string           `json:"created_by"`
	ApprovedBy  string           `json:"approved_by,omitempty"` // set to record as approved
	Entries     []core.EntryLine `json:"entries"`
}

// ChangePriceRequest is the input for a product price change.
type ChangePriceRequest struct {
	ProductID        int64            `json:"product_id"`
	NewPurchasePrice decimal.Decimal  `json:"new_purchase_price"`
	NewSellingPrice  *decimal.Decimal `json:"new_selling_price,omitempty"`
	EffectiveAt      string           `json:"effective_at,omitempty"` // RFC3339 or YYYY-MM-DD; empty means now
	InTransit        []InTransitLot   `json:"in_transit,omitempty"`
	Actor            string           `json:"actor"`
}

// InTransitLot is fuel still on the way under a purchase order.
type InTransitLot struct {
	OrderRef string          `json:"order_ref"`
	Volume   decimal.Decimal `json:"volume"`
}

type CustodialFillRequest struct {
	OrgID     int64           `json:"org_id"`
	Custodian string          `json:"custodian"`
	ProductID int64           `json:"product_id"`
	Volume    decimal.Decimal `json:"volume"`
	Date      string          `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Actor     string          `json:"actor"`
}

type CustodialAdjustmentRequest struct {
	OrgID     int64           `json:"org_id"`
	Custodian string          `json:"custodian"`
	Amount    decimal.Decimal `json:"amount"` // positive raises the liability
	Reason    string          `json:"reason"`
	Date      string          `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Actor     string          `json:"actor"`
}
