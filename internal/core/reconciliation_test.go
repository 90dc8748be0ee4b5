package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-ledger/internal/core"
)

func period(t *testing.T, start, end string) core.Period {
	t.Helper()
	p, err := core.NewPeriod(day(start), day(end))
	require.NoError(t, err)
	return p
}

func TestDailyReport_VarianceLossAndCarryForward(t *testing.T) {
	// GIVEN 10,000 L sold down to a calculated 9,050 L and gauged at 9,000 L on day two
	s := newStation(t, "10000")
	s.settledSale("2024-01-01", "500")
	s.settledSale("2024-01-02", "450")
	s.approvedReading("2024-01-02", "9000")
	s.approvedDelivery("2024-01-03", "1000")

	// WHEN the three days are reconciled
	report, err := core.NewReconciler(s.store, quietLog(), 2).DailyReport(context.Background(), s.tank.ID, period(t, "2024-01-01", "2024-01-03"))
	require.NoError(t, err)
	require.Len(t, report.Records, 3)

	// THEN day two shows a 50 L shortfall valued at the purchase price
	d1, d2, d3 := report.Records[0], report.Records[1], report.Records[2]
	assert.True(t, dec("10000").Equal(d1.OpeningStock))
	assert.True(t, dec("9500").Equal(d1.CalculatedClosing))
	assert.Nil(t, d1.PhysicalReading)

	assert.True(t, dec("9500").Equal(d2.OpeningStock))
	assert.True(t, dec("9050").Equal(d2.CalculatedClosing))
	require.NotNil(t, d2.Variance)
	assert.True(t, dec("-50").Equal(*d2.Variance), "variance %s", d2.Variance)
	assert.True(t, dec("425000").Equal(d2.EstimatedLoss), "loss %s", d2.EstimatedLoss)

	// AND day three opens at the physical reading, not the calculated closing
	assert.True(t, dec("9000").Equal(d3.OpeningStock))
	assert.True(t, dec("1000").Equal(d3.Deliveries))
	assert.True(t, dec("10000").Equal(d3.CalculatedClosing))
	assert.True(t, d3.EstimatedLoss.IsZero())

	assert.True(t, dec("425000").Equal(report.TotalLoss()))
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, core.PriceFromCurrent, report.Warnings[0].Source)
}

func TestDailyReport_CarryForwardInvariant(t *testing.T) {
	s := newStation(t, "5000")
	s.settledSale("2024-01-02", "120")
	s.approvedReading("2024-01-03", "4800")
	s.approvedDelivery("2024-01-04", "2000")
	s.settledSale("2024-01-05", "300")
	s.approvedReading("2024-01-05", "6510")

	report, err := core.NewReconciler(s.store, quietLog(), 1).DailyReport(context.Background(), s.tank.ID, period(t, "2024-01-01", "2024-01-07"))
	require.NoError(t, err)

	for i := 1; i < len(report.Records); i++ {
		prev := report.Records[i-1]
		want := prev.CalculatedClosing
		if prev.PhysicalReading != nil {
			want = *prev.PhysicalReading
		}
		assert.True(t, want.Equal(report.Records[i].OpeningStock), "day %d opens at %s, want %s", i, report.Records[i].OpeningStock, want)
	}
	// a surplus carries no loss
	assert.True(t, report.Records[4].Variance.IsPositive())
	assert.True(t, report.Records[4].EstimatedLoss.IsZero())
}

func TestDailyReport_OpensMidHistory(t *testing.T) {
	s := newStation(t, "10000")
	s.settledSale("2024-01-02", "1000")
	s.approvedReading("2024-01-03", "8950")

	report, err := core.NewReconciler(s.store, quietLog(), 1).DailyReport(context.Background(), s.tank.ID, period(t, "2024-01-04", "2024-01-04"))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.True(t, dec("8950").Equal(report.Records[0].OpeningStock))
}

func TestDailyReport_DaysBeforeCreation(t *testing.T) {
	s := newStation(t, "10000")

	report, err := core.NewReconciler(s.store, quietLog(), 1).DailyReport(context.Background(), s.tank.ID, period(t, "2023-12-30", "2024-01-01"))
	require.NoError(t, err)
	require.Len(t, report.Records, 3)
	assert.True(t, report.Records[0].BeforeCreation)
	assert.True(t, report.Records[1].BeforeCreation)
	assert.True(t, report.Records[0].OpeningStock.IsZero())
	assert.False(t, report.Records[2].BeforeCreation)
	assert.True(t, dec("10000").Equal(report.Records[2].OpeningStock))
}

func TestDailyReport_LossUsesPriceOfTheDay(t *testing.T) {
	s := newStation(t, "1000")
	s.store.AddPriceChange(core.PriceChange{
		ProductID:        s.product.ID,
		OldPurchasePrice: dec("8000"),
		NewPurchasePrice: dec("8500"),
		OldSellingPrice:  dec("9500"),
		NewSellingPrice:  dec("10000"),
		ChangedAt:        day("2024-01-10"),
	})
	s.approvedReading("2024-01-02", "990")

	report, err := core.NewReconciler(s.store, quietLog(), 1).DailyReport(context.Background(), s.tank.ID, period(t, "2024-01-02", "2024-01-02"))
	require.NoError(t, err)
	// before the first change the old price applies: 10 L x 8,000
	assert.True(t, dec("80000").Equal(report.Records[0].EstimatedLoss), "loss %s", report.Records[0].EstimatedLoss)
	for _, w := range report.Warnings {
		assert.NotEqual(t, core.PriceFromCurrent, w.Source, "price fell back to current: %s", w.Error())
	}
}

func TestOrgDailyReports_KeepsTankOrder(t *testing.T) {
	s := newStation(t, "10000")
	second := s.store.AddTank(core.Tank{
		OrgID: orgID, ProductID: s.product.ID, Name: "T2",
		Capacity: dec("10000"), InitialStock: dec("3000"), CreatedAt: day("2024-01-01"),
	})

	reports, err := core.NewReconciler(s.store, quietLog(), 4).OrgDailyReports(context.Background(), orgID, period(t, "2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, s.tank.ID, reports[0].Tank.ID)
	assert.Equal(t, second.ID, reports[1].Tank.ID)
	assert.True(t, dec("3000").Equal(reports[1].Records[1].ClosingStock()))
}
