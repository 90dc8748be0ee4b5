package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/core"
)

func TestCurrentStock_RollsInitialStockForward(t *testing.T) {
	// GIVEN a tank with 10,000 L, one 2,000 L delivery and 1,500 L sold, never gauged
	s := newStation(t, "10000")
	s.approvedDelivery("2024-01-02", "2000")
	s.settledSale("2024-01-02", "1500")

	calc := core.NewStockCalculator(s.store, quietLog())
	calc.Now = func() time.Time { return day("2024-01-03").Add(10 * time.Hour) }

	// WHEN the current stock is requested
	level, err := calc.CurrentStock(context.Background(), s.tank.ID)

	// THEN it is the initial stock plus movements, flagged as a fallback
	require.NoError(t, err)
	assert.True(t, dec("10500").Equal(level.Liters), "got %s", level.Liters)
	assert.Equal(t, core.StockFromInitialStock, level.Source)
	require.NotNil(t, level.Warning)
	assert.Equal(t, core.StockFromInitialStock, level.Warning.Source)
}

func TestStockAsOf_BeforeCreationIsZero(t *testing.T) {
	s := newStation(t, "10000")
	calc := core.NewStockCalculator(s.store, quietLog())

	level, err := calc.StockAsOf(context.Background(), s.tank.ID, day("2023-12-31"))

	require.NoError(t, err)
	assert.True(t, level.Liters.IsZero())
	assert.Equal(t, core.StockFromBeforeCreation, level.Source)
}

func TestStockAsOf_ReadingOnDayWins(t *testing.T) {
	s := newStation(t, "10000")
	s.approvedDelivery("2024-01-02", "2000")
	s.settledSale("2024-01-02", "1500")
	s.approvedReading("2024-01-02", "9000")

	level, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), s.tank.ID, day("2024-01-02"))

	require.NoError(t, err)
	assert.True(t, dec("9000").Equal(level.Liters), "got %s", level.Liters)
	assert.Equal(t, core.StockFromReading, level.Source)
	assert.Nil(t, level.Warning)
}

func TestStockAsOf_RollsPriorReadingForward(t *testing.T) {
	s := newStation(t, "10000")
	s.approvedReading("2024-01-02", "9000")
	s.approvedDelivery("2024-01-03", "500")
	s.settledSale("2024-01-04", "300")

	level, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), s.tank.ID, day("2024-01-04"))

	require.NoError(t, err)
	assert.True(t, dec("9200").Equal(level.Liters), "got %s", level.Liters)
	assert.Equal(t, core.StockFromPriorReading, level.Source)
	require.NotNil(t, level.Warning)
}

func TestStockAsOf_IgnoresUnapprovedRecords(t *testing.T) {
	s := newStation(t, "10000")
	s.store.AddDelivery(core.Delivery{
		OrgID: orgID, TankID: s.tank.ID, Date: day("2024-01-02"),
		OrderedVolume: dec("2000"), MeasuredVolume: dec("2000"),
	})
	s.store.AddShift(shift(s.tank.ID, "2024-01-02", "700", "0", false, core.Deposit{}))
	s.store.AddReading(core.TankReading{TankID: s.tank.ID, Date: day("2024-01-02"), LiterValue: dec("1")})

	level, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), s.tank.ID, day("2024-01-02"))

	require.NoError(t, err)
	assert.True(t, dec("10000").Equal(level.Liters), "got %s", level.Liters)
}

func TestStockAsOf_PumpTestLeavesTheTank(t *testing.T) {
	s := newStation(t, "10000")
	s.store.AddShift(shift(s.tank.ID, "2024-01-02", "100", "20", true, core.Deposit{}))

	level, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), s.tank.ID, day("2024-01-02"))

	require.NoError(t, err)
	assert.True(t, dec("9880").Equal(level.Liters), "got %s", level.Liters)
}

func TestCurrentStock_TodayReadingPlusLaterMovements(t *testing.T) {
	s := newStation(t, "10000")
	s.approvedReading("2024-01-03", "9000")
	s.store.AddDelivery(core.Delivery{
		OrgID: orgID, TankID: s.tank.ID, Date: day("2024-01-03"),
		OrderedVolume: dec("1000"), MeasuredVolume: dec("1000"),
		Status:    core.StatusApproved,
		CreatedAt: day("2024-01-03").Add(12 * time.Hour),
	})
	// recorded before the reading, already reflected in it
	s.store.AddDelivery(core.Delivery{
		OrgID: orgID, TankID: s.tank.ID, Date: day("2024-01-03"),
		OrderedVolume: dec("400"), MeasuredVolume: dec("400"),
		Status:    core.StatusApproved,
		CreatedAt: day("2024-01-03").Add(6 * time.Hour),
	})

	calc := core.NewStockCalculator(s.store, quietLog())
	calc.Now = func() time.Time { return day("2024-01-03").Add(15 * time.Hour) }
	level, err := calc.CurrentStock(context.Background(), s.tank.ID)

	require.NoError(t, err)
	assert.True(t, dec("10000").Equal(level.Liters), "got %s", level.Liters)
	assert.Equal(t, core.StockFromReadingSameDay, level.Source)
}

func TestStockAsOf_UnknownTank(t *testing.T) {
	s := newStation(t, "0")
	_, err := core.NewStockCalculator(s.store, quietLog()).StockAsOf(context.Background(), 999, day("2024-01-02"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestShiftTankVolumes(t *testing.T) {
	tests := []struct {
		name     string
		readings []core.NozzleReading
		want     map[int64]core.TankVolume
	}{
		{
			name: "close minus open minus pump test",
			readings: []core.NozzleReading{
				{NozzleID: 1, TankID: 7, Type: core.ReadingOpen, Totalizer: dec("100")},
				{NozzleID: 1, TankID: 7, Type: core.ReadingClose, Totalizer: dec("250"), PumpTest: dec("10")},
			},
			want: map[int64]core.TankVolume{7: {Sales: dec("140"), PumpTest: dec("10")}},
		},
		{
			name: "two nozzles on one tank",
			readings: []core.NozzleReading{
				{NozzleID: 1, TankID: 7, Type: core.ReadingOpen, Totalizer: dec("0")},
				{NozzleID: 1, TankID: 7, Type: core.ReadingClose, Totalizer: dec("50")},
				{NozzleID: 2, TankID: 7, Type: core.ReadingOpen, Totalizer: dec("10")},
				{NozzleID: 2, TankID: 7, Type: core.ReadingClose, Totalizer: dec("40")},
			},
			want: map[int64]core.TankVolume{7: {Sales: dec("80"), PumpTest: dec("0")}},
		},
		{
			name: "negative sales floored at zero",
			readings: []core.NozzleReading{
				{NozzleID: 1, TankID: 7, Type: core.ReadingOpen, Totalizer: dec("100")},
				{NozzleID: 1, TankID: 7, Type: core.ReadingClose, Totalizer: dec("105"), PumpTest: dec("10")},
			},
			want: map[int64]core.TankVolume{7: {Sales: dec("0"), PumpTest: dec("10")}},
		},
		{
			name: "unpaired nozzle ignored",
			readings: []core.NozzleReading{
				{NozzleID: 1, TankID: 7, Type: core.ReadingOpen, Totalizer: dec("100")},
			},
			want: map[int64]core.TankVolume{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.Shift{Readings: tt.readings}.TankVolumes()
			require.Len(t, got, len(tt.want))
			for id, want := range tt.want {
				assert.True(t, want.Sales.Equal(got[id].Sales), "sales: want %s got %s", want.Sales, got[id].Sales)
				assert.True(t, want.PumpTest.Equal(got[id].PumpTest), "pump test: want %s got %s", want.PumpTest, got[id].PumpTest)
			}
		})
	}
}
