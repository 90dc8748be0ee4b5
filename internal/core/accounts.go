package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// AccountKind identifies a ledger account by role rather than by display name.
// Per-product and per-party kinds carry a qualifier (product name, bank name,
// custodian, purchase order reference).
type AccountKind string

const (
	KindInventory              AccountKind = "inventory"
	KindGoodsInTransit         AccountKind = "goods_in_transit"
	KindStorageShrinkage       AccountKind = "storage_shrinkage"
	KindTransitShrinkage       AccountKind = "transit_shrinkage"
	KindSalesRevenue           AccountKind = "sales_revenue"
	KindCostOfSales            AccountKind = "cost_of_sales"
	KindPumpTest               AccountKind = "pump_test"
	KindFreeFuel               AccountKind = "free_fuel"
	KindCash                   AccountKind = "cash"
	KindBank                   AccountKind = "bank"
	KindCoupon                 AccountKind = "coupon"
	KindCustodial              AccountKind = "custodial"
	KindCustodialMarkup        AccountKind = "custodial_markup"
	KindCustodialAdjustment    AccountKind = "custodial_adjustment"
	KindPriceAdjustmentRevenue AccountKind = "price_adjustment_revenue"
	KindPriceAdjustmentExpense AccountKind = "price_adjustment_expense"
	KindRealtimeProfitLoss     AccountKind = "realtime_profit_loss"
	KindRetainedEarnings       AccountKind = "retained_earnings"
)

type kindSpec struct {
	prefix      string
	category    AccountCategory
	qualified   bool
	description string
}

var kindSpecs = map[AccountKind]kindSpec{
	KindInventory:              {"Inventory", Asset, true, "Fuel stock held in tanks"},
	KindGoodsInTransit:         {"Goods In Transit", Asset, true, "Purchased fuel not yet unloaded"},
	KindStorageShrinkage:       {"Shrinkage", COGS, true, "Tank gauge variance"},
	KindTransitShrinkage:       {"Transit Shrinkage", Expense, true, "Volume lost between depot and tank"},
	KindSalesRevenue:           {"Sales", Revenue, true, "Fuel sales"},
	KindCostOfSales:            {"COGS", COGS, true, "Cost of fuel sold"},
	KindPumpTest:               {"Pump Test", COGS, true, "Fuel dispensed during pump calibration"},
	KindFreeFuel:               {"Free Fuel Expense", Expense, false, "Fuel given away without payment"},
	KindCash:                   {"Cash", Asset, false, "Cash on hand"},
	KindBank:                   {"Bank", Asset, true, "Bank account"},
	KindCoupon:                 {"Coupon Receivable", Asset, false, "Fuel coupons to be redeemed"},
	KindCustodial:              {"Custodial Liability", Liability, true, "Fuel held on behalf of a third party"},
	KindCustodialMarkup:        {"Custodial Markup Expense", Expense, false, "Selling/purchase spread on custodial fills"},
	KindCustodialAdjustment:    {"Custodial Adjustment", Expense, false, "Corrections to custodial balances"},
	KindPriceAdjustmentRevenue: {"Price Adjustment Revenue", Revenue, false, "Revaluation gain on purchase price increase"},
	KindPriceAdjustmentExpense: {"Price Adjustment Expense", Expense, false, "Revaluation loss on purchase price decrease"},
	KindRealtimeProfitLoss:     {"Realtime Profit/Loss", Equity, false, "Running profit or loss for the open period"},
	KindRetainedEarnings:       {"Retained Earnings", Equity, false, "Accumulated closed-period results"},
}

// AccountRef is a typed reference to an account that the registry can resolve.
type AccountRef struct {
	Kind      AccountKind
	Qualifier string
}

func InventoryAccount(product string) AccountRef {
	return AccountRef{Kind: KindInventory, Qualifier: product}
}

func GoodsInTransitAccount(orderRef string) AccountRef {
	return AccountRef{Kind: KindGoodsInTransit, Qualifier: orderRef}
}

func StorageShrinkageAccount(product string) AccountRef {
	return AccountRef{Kind: KindStorageShrinkage, Qualifier: product}
}

func TransitShrinkageAccount(product string) AccountRef {
	return AccountRef{Kind: KindTransitShrinkage, Qualifier: product}
}

func SalesRevenueAccount(product string) AccountRef {
	return AccountRef{Kind: KindSalesRevenue, Qualifier: product}
}

func CostOfSalesAccount(product string) AccountRef {
	return AccountRef{Kind: KindCostOfSales, Qualifier: product}
}

func PumpTestAccount(product string) AccountRef {
	return AccountRef{Kind: KindPumpTest, Qualifier: product}
}

func BankAccount(bank string) AccountRef {
	return AccountRef{Kind: KindBank, Qualifier: bank}
}

func CustodialAccount(custodian string) AccountRef {
	return AccountRef{Kind: KindCustodial, Qualifier: custodian}
}

func FreeFuelAccount() AccountRef               { return AccountRef{Kind: KindFreeFuel} }
func CashAccount() AccountRef                   { return AccountRef{Kind: KindCash} }
func CouponAccount() AccountRef                 { return AccountRef{Kind: KindCoupon} }
func CustodialMarkupAccount() AccountRef        { return AccountRef{Kind: KindCustodialMarkup} }
func CustodialAdjustmentAccount() AccountRef    { return AccountRef{Kind: KindCustodialAdjustment} }
func PriceAdjustmentRevenueAccount() AccountRef { return AccountRef{Kind: KindPriceAdjustmentRevenue} }
func PriceAdjustmentExpenseAccount() AccountRef { return AccountRef{Kind: KindPriceAdjustmentExpense} }
func RealtimeProfitLossAccount() AccountRef     { return AccountRef{Kind: KindRealtimeProfitLoss} }
func RetainedEarningsAccount() AccountRef       { return AccountRef{Kind: KindRetainedEarnings} }

// Name renders the account's display name, e.g. "Inventory Pertalite".
func (r AccountRef) Name() (string, error) {
	spec, ok := kindSpecs[r.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown account kind %q", ErrInvalidInput, r.Kind)
	}
	q := strings.TrimSpace(r.Qualifier)
	if spec.qualified {
		if q == "" {
			return "", fmt.Errorf("%w: account kind %q requires a qualifier", ErrInvalidInput, r.Kind)
		}
		return spec.prefix + " " + q, nil
	}
	if q != "" {
		return "", fmt.Errorf("%w: account kind %q takes no qualifier, got %q", ErrInvalidInput, r.Kind, q)
	}
	return spec.prefix, nil
}

// Category is the fixed category of the kind.
func (r AccountRef) Category() AccountCategory {
	return kindSpecs[r.Kind].category
}

// AccountRegistry resolves typed account references to ledger accounts,
// creating them lazily on first use.
type AccountRegistry struct {
	log *logrus.Entry
}

func NewAccountRegistry(log *logrus.Entry) *AccountRegistry {
	return &AccountRegistry{log: log.WithField("module", "account_registry")}
}

// FindOrCreate returns the account named name in orgID, creating it with
// status active if it does not exist. An existing account is returned
// unchanged; re-declaring it with a different category is an error.
// Concurrent calls for the same name converge on one row.
func (r *AccountRegistry) FindOrCreate(ctx context.Context, uow UnitOfWork, orgID int64, name string, category AccountCategory, description string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: account name is required", ErrInvalidInput)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: invalid account category %q", ErrInvalidInput, category)
	}

	acc, err := uow.Accounts().FindByName(ctx, orgID, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		acc, err = uow.Accounts().Upsert(ctx, Account{
			OrgID:       orgID,
			Name:        name,
			Category:    category,
			Description: description,
			Status:      AccountActive,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create account %q: %w", name, err)
		}
		r.log.WithFields(logrus.Fields{"org_id": orgID, "account": name, "category": category}).Debug("account resolved")
	default:
		return nil, fmt.Errorf("failed to look up account %q: %w", name, err)
	}

	if acc.Category != category {
		return nil, &AccountCategoryMismatchError{Name: name, Existing: acc.Category, Declared: category}
	}
	return acc, nil
}

// Resolve finds or creates the account for ref.
func (r *AccountRegistry) Resolve(ctx context.Context, uow UnitOfWork, orgID int64, ref AccountRef) (*Account, error) {
	name, err := ref.Name()
	if err != nil {
		return nil, err
	}
	return r.FindOrCreate(ctx, uow, orgID, name, ref.Category(), kindSpecs[ref.Kind].description)
}

// Lookup returns the account for ref without creating it.
// Returns a *MissingAccountError if it does not exist.
func (r *AccountRegistry) Lookup(ctx context.Context, uow UnitOfWork, orgID int64, ref AccountRef) (*Account, error) {
	name, err := ref.Name()
	if err != nil {
		return nil, err
	}
	acc, err := uow.Accounts().FindByName(ctx, orgID, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &MissingAccountError{OrgID: orgID, Name: name}
		}
		return nil, fmt.Errorf("failed to look up account %q: %w", name, err)
	}
	return acc, nil
}

// Deactivate marks an account inactive. Accounts are never deleted.
func (r *AccountRegistry) Deactivate(ctx context.Context, uow UnitOfWork, accountID int64) error {
	if err := uow.Accounts().SetStatus(ctx, accountID, AccountInactive); err != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", accountID, err)
	}
	return nil
}

// List returns all accounts of an organisation for display.
func (r *AccountRegistry) List(ctx context.Context, uow UnitOfWork, orgID int64) ([]Account, error) {
	accounts, err := uow.Accounts().List(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// accountNames renders refs to names, skipping refs that do not render.
func accountNames(refs ...AccountRef) map[string]bool {
	out := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if name, err := ref.Name(); err == nil {
			out[name] = true
		}
	}
	return out
}
