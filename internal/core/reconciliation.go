package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DailyRecord is one tank's stock movement for one operational day.
type DailyRecord struct {
	Date              time.Time        `json:"date"`
	TankID            int64            `json:"tank_id"`
	OpeningStock      decimal.Decimal  `json:"opening_stock"`
	Deliveries        decimal.Decimal  `json:"deliveries"`
	Sales             decimal.Decimal  `json:"sales"`
	PumpTest          decimal.Decimal  `json:"pump_test"`
	CalculatedClosing decimal.Decimal  `json:"calculated_closing"`
	PhysicalReading   *decimal.Decimal `json:"physical_reading"`
	Variance          *decimal.Decimal `json:"variance"`
	// EstimatedLoss is the value of a negative variance at that day's purchase
	// price, zero otherwise.
	EstimatedLoss  decimal.Decimal `json:"estimated_loss"`
	BeforeCreation bool            `json:"before_creation,omitempty"`
}

// ClosingStock is the authoritative closing value: the reading when present.
func (r DailyRecord) ClosingStock() decimal.Decimal {
	if r.PhysicalReading != nil {
		return *r.PhysicalReading
	}
	return r.CalculatedClosing
}

type TankDailyReport struct {
	Tank     Tank               `json:"tank"`
	Period   Period             `json:"period"`
	Records  []DailyRecord      `json:"records"`
	Warnings []StaleDataWarning `json:"warnings,omitempty"`
}

// TotalLoss sums the estimated loss over the report.
func (r *TankDailyReport) TotalLoss() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		total = total.Add(rec.EstimatedLoss)
	}
	return total
}

// Reconciler builds daily stock records. It only reads, so one Reconciler over
// a Store may serve concurrent reports.
type Reconciler struct {
	uow         UnitOfWork
	stock       *StockCalculator
	prices      *PriceResolver
	concurrency int
	log         *logrus.Entry
}

func NewReconciler(uow UnitOfWork, log *logrus.Entry, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		uow:         uow,
		stock:       NewStockCalculator(uow, log),
		prices:      NewPriceResolver(uow, log),
		concurrency: concurrency,
		log:         log.WithField("module", "reconciler"),
	}
}

// DailyReport produces one record per day of period for tankID. Each day opens
// at the previous day's reading, or its calculated closing when unread.
func (r *Reconciler) DailyReport(ctx context.Context, tankID int64, period Period) (*TankDailyReport, error) {
	tank, err := r.uow.Tanks().GetTank(ctx, tankID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tank %d: %w", tankID, err)
	}
	history, err := r.prices.History(ctx, tank.ProductID)
	if err != nil {
		return nil, err
	}

	report := &TankDailyReport{Tank: *tank, Period: period}
	created := Day(tank.CreatedAt)

	from := period.Start
	if from.Before(created) {
		from = created
	}
	opening := tank.InitialStock
	if from.After(created) {
		prev, err := r.stock.stockAsOf(ctx, tank, from.AddDate(0, 0, -1))
		if err != nil {
			return nil, err
		}
		opening = prev.Liters
		if prev.Warning != nil {
			report.Warnings = append(report.Warnings, *prev.Warning)
		}
	}

	var movements map[string]DayMovement
	var readings []TankReading
	if from.Before(period.Until()) {
		mv, err := loadMovements(ctx, r.uow, tank, from, period.Until())
		if err != nil {
			return nil, err
		}
		movements = mv.byDay()
		readings, err = r.stock.approvedReadings(ctx, tank.ID, period.Until())
		if err != nil {
			return nil, err
		}
	}

	warnedPrice := false
	for _, day := range period.Days() {
		rec := DailyRecord{Date: day, TankID: tank.ID}
		if day.Before(created) {
			rec.BeforeCreation = true
			report.Records = append(report.Records, rec)
			continue
		}

		mv := movements[day.Format(DateLayout)]
		rec.OpeningStock = opening
		rec.Deliveries = mv.Deliveries
		rec.Sales = mv.Sales
		rec.PumpTest = mv.PumpTest
		rec.CalculatedClosing = opening.Add(mv.Deliveries).Sub(mv.Sales).Sub(mv.PumpTest)

		if reading := latestOnDay(readings, day); reading != nil {
			physical := reading.LiterValue
			variance := physical.Sub(rec.CalculatedClosing)
			rec.PhysicalReading = &physical
			rec.Variance = &variance
			if variance.IsNegative() {
				price, warn := history.At(EndOfDay(day))
				if warn != nil && !warnedPrice {
					report.Warnings = append(report.Warnings, *warn)
					warnedPrice = true
				}
				rec.EstimatedLoss = money(variance.Abs().Mul(price.PurchasePrice))
			}
		}

		report.Records = append(report.Records, rec)
		opening = rec.ClosingStock()
	}

	r.log.WithFields(logrus.Fields{
		"tank_id": tank.ID,
		"start":   period.Start.Format(DateLayout),
		"end":     period.End.Format(DateLayout),
		"days":    len(report.Records),
	}).Debug("daily report built")
	return report, nil
}

// OrgDailyReports reconciles every tank of an organisation concurrently. The
// result keeps the tank listing order.
func (r *Reconciler) OrgDailyReports(ctx context.Context, orgID int64, period Period) ([]TankDailyReport, error) {
	tanks, err := r.uow.Tanks().ListTanks(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tanks of org %d: %w", orgID, err)
	}

	reports := make([]TankDailyReport, len(tanks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range tanks {
		i, t := i, t
		g.Go(func() error {
			rep, err := r.DailyReport(gctx, t.ID, period)
			if err != nil {
				return fmt.Errorf("tank %d: %w", t.ID, err)
			}
			reports[i] = *rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
