package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/adapters/cli"
	"fuel-ledger/internal/app"
	"fuel-ledger/internal/core"
	"fuel-ledger/internal/store/memory"
)

type fixture struct {
	svc   app.ApplicationService
	store *memory.Store
	tank  core.Tank
	cash  *core.Account
	sales *core.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	store := memory.New()
	p := store.AddProduct(core.Product{OrgID: 1, Name: "Pertalite", PurchasePrice: decimal.NewFromInt(8500), SellingPrice: decimal.NewFromInt(10000)})
	tank := store.AddTank(core.Tank{
		OrgID:        1,
		ProductID:    p.ID,
		Name:         "T1",
		InitialStock: decimal.NewFromInt(10000),
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	store.AddReading(core.TankReading{
		TankID:     tank.ID,
		Date:       time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		LiterValue: decimal.NewFromInt(9950),
		Status:     core.StatusApproved,
	})

	reg := core.NewAccountRegistry(entry)
	cash, err := reg.Resolve(context.Background(), store, 1, core.CashAccount())
	require.NoError(t, err)
	sales, err := reg.Resolve(context.Background(), store, 1, core.SalesRevenueAccount("Pertalite"))
	require.NoError(t, err)

	svc := app.NewAppService(store, core.NewLocalLocker(time.Minute), entry, 1)
	return &fixture{svc: svc, store: store, tank: tank, cash: cash, sales: sales}
}

func (f *fixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cli.Run(context.Background(), f.svc, args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestRun_Stock(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "", "stock", fmt.Sprint(f.tank.ID), "2024-01-02")

	require.NoError(t, err)
	assert.Contains(t, out, "10000.00 L (initial_stock)")
	assert.Contains(t, out, "warning:")
}

func TestRun_DailyReport(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "", "daily", fmt.Sprint(f.tank.ID), "2024-01-01", "2024-01-03")

	require.NoError(t, err)
	assert.Contains(t, out, "TANK")
	assert.Contains(t, out, "-50.00")
	assert.Contains(t, out, "425000.00")
}

func TestRun_RecordApproveAndBalance(t *testing.T) {
	f := newFixture(t)
	entry := fmt.Sprintf(`{"org_id":1,"date":"2024-01-15","description":"cash sale","created_by":"sari",
		"entries":[{"account_id":%d,"debit":"100"},{"account_id":%d,"credit":"100"}]}`, f.cash.ID, f.sales.ID)

	out, err := f.run(t, entry, "record")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded (pending)")

	var txID int64
	_, err = fmt.Sscanf(out, "Transaction %d", &txID)
	require.NoError(t, err)

	out, err = f.run(t, "", "approve", "tx", fmt.Sprint(txID), "manager")
	require.NoError(t, err)
	assert.Contains(t, out, "approved")

	out, err = f.run(t, "", "bal", "1", "2024-01-31")
	require.NoError(t, err)
	assert.Contains(t, out, "TRIAL BALANCE")
	assert.Contains(t, out, "Cash")
	assert.Contains(t, out, "100.00")
}

func TestRun_CloseWithoutProfitLoss(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "", "close", "1", "2024", "1", "manager")

	require.NoError(t, err)
	assert.Equal(t, "Nothing to close.\n", out)
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "missing command"},
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"bad id", []string{"stock", "abc"}, "invalid id"},
		{"missing args", []string{"daily", "1"}, "usage: app daily"},
		{"bad approval kind", []string{"approve", "invoice", "1", "manager"}, "unknown approval kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
