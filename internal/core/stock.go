package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	StockFromReading        = "reading"
	StockFromReadingSameDay = "reading_plus_movements"
	StockFromPriorReading   = "prior_reading"
	StockFromInitialStock   = "initial_stock"
	StockFromBeforeCreation = "before_creation"
)

type StockLevel struct {
	TankID  int64             `json:"tank_id"`
	AsOf    time.Time         `json:"as_of"`
	Liters  decimal.Decimal   `json:"liters"`
	Source  string            `json:"source"`
	Warning *StaleDataWarning `json:"warning,omitempty"`
}

// StockCalculator derives tank stock from readings, deliveries and settled
// shifts. Only approved readings and deliveries count, and shifts count only
// once completed with an approved deposit.
type StockCalculator struct {
	uow UnitOfWork
	log *logrus.Entry
	Now func() time.Time
}

func NewStockCalculator(uow UnitOfWork, log *logrus.Entry) *StockCalculator {
	return &StockCalculator{uow: uow, log: log.WithField("module", "stock_calculator"), Now: time.Now}
}

// StockAsOf returns the closing stock of tank on the operational day date.
// A reading on that day is returned as is. Otherwise the last prior reading,
// or the initial stock, is rolled forward with the movements since. Days
// before the tank existed read as zero.
func (c *StockCalculator) StockAsOf(ctx context.Context, tankID int64, date time.Time) (StockLevel, error) {
	tank, err := c.uow.Tanks().GetTank(ctx, tankID)
	if err != nil {
		return StockLevel{}, fmt.Errorf("failed to fetch tank %d: %w", tankID, err)
	}
	return c.stockAsOf(ctx, tank, Day(date))
}

func (c *StockCalculator) stockAsOf(ctx context.Context, tank *Tank, day time.Time) (StockLevel, error) {
	level := StockLevel{TankID: tank.ID, AsOf: day}
	created := Day(tank.CreatedAt)
	if day.Before(created) {
		level.Liters = decimal.Zero
		level.Source = StockFromBeforeCreation
		return level, nil
	}

	readings, err := c.approvedReadings(ctx, tank.ID, NextDay(day))
	if err != nil {
		return StockLevel{}, err
	}
	if r := latestOnDay(readings, day); r != nil {
		level.Liters = r.LiterValue
		level.Source = StockFromReading
		return level, nil
	}

	base, from := tank.InitialStock, created
	level.Source = StockFromInitialStock
	if n := len(readings); n > 0 {
		r := readings[n-1]
		base, from = r.LiterValue, NextDay(r.Date)
		level.Source = StockFromPriorReading
	}

	mv, err := loadMovements(ctx, c.uow, tank, from, NextDay(day))
	if err != nil {
		return StockLevel{}, err
	}
	delivered, sales, pumpTest := mv.totals(nil)
	level.Liters = base.Add(delivered).Sub(sales).Sub(pumpTest)
	level.Warning = c.warn(tank, day, level.Source)
	return level, nil
}

// CurrentStock returns the stock at this moment. A reading taken today is
// rolled forward only by deliveries and settlements recorded after it.
func (c *StockCalculator) CurrentStock(ctx context.Context, tankID int64) (StockLevel, error) {
	tank, err := c.uow.Tanks().GetTank(ctx, tankID)
	if err != nil {
		return StockLevel{}, fmt.Errorf("failed to fetch tank %d: %w", tankID, err)
	}
	now := c.Now().UTC()
	today := Day(now)
	if today.Before(Day(tank.CreatedAt)) {
		return StockLevel{TankID: tank.ID, AsOf: now, Liters: decimal.Zero, Source: StockFromBeforeCreation}, nil
	}

	readings, err := c.approvedReadings(ctx, tank.ID, NextDay(today))
	if err != nil {
		return StockLevel{}, err
	}
	r := latestOnDay(readings, today)
	if r == nil {
		level, err := c.stockAsOf(ctx, tank, today)
		level.AsOf = now
		return level, err
	}

	mv, err := loadMovements(ctx, c.uow, tank, today, NextDay(today))
	if err != nil {
		return StockLevel{}, err
	}
	after := r.CreatedAt
	delivered, sales, pumpTest := mv.totals(&after)
	level := StockLevel{TankID: tank.ID, AsOf: now, Source: StockFromReading}
	level.Liters = r.LiterValue.Add(delivered).Sub(sales).Sub(pumpTest)
	if !delivered.IsZero() || !sales.IsZero() || !pumpTest.IsZero() {
		level.Source = StockFromReadingSameDay
	}
	return level, nil
}

func (c *StockCalculator) approvedReadings(ctx context.Context, tankID int64, until time.Time) ([]TankReading, error) {
	all, err := c.uow.Tanks().Readings(ctx, tankID, until)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings of tank %d: %w", tankID, err)
	}
	out := all[:0:0]
	for _, r := range all {
		if r.Status == StatusApproved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *StockCalculator) warn(tank *Tank, day time.Time, source string) *StaleDataWarning {
	w := &StaleDataWarning{
		Source:  source,
		Subject: fmt.Sprintf("tank %d on %s", tank.ID, day.Format(DateLayout)),
		Reason:  "no approved reading on the day",
	}
	if source == StockFromInitialStock {
		w.Reason = "no approved reading ever recorded"
	}
	c.log.WithFields(logrus.Fields{"tank_id": tank.ID, "date": day.Format(DateLayout), "source": source}).Debug(w.Error())
	return w
}

// latestOnDay returns the last reading dated day, or nil. readings must be
// ordered by date then creation.
func latestOnDay(readings []TankReading, day time.Time) *TankReading {
	for i := len(readings) - 1; i >= 0; i-- {
		d := Day(readings[i].Date)
		if d.Equal(day) {
			return &readings[i]
		}
		if d.Before(day) {
			return nil
		}
	}
	return nil
}

// DayMovement is the volume a tank received and gave out on one day.
type DayMovement struct {
	Deliveries decimal.Decimal
	Sales      decimal.Decimal
	PumpTest   decimal.Decimal
}

// tankMovements holds the approved deliveries and settled shift volumes of one
// tank over a range of days.
type tankMovements struct {
	deliveries []Delivery
	shifts     []shiftVolume
}

type shiftVolume struct {
	shift  Shift
	volume TankVolume
}

func loadMovements(ctx context.Context, uow UnitOfWork, tank *Tank, from, until time.Time) (tankMovements, error) {
	var mv tankMovements
	if !from.Before(until) {
		return mv, nil
	}
	deliveries, err := uow.Tanks().Deliveries(ctx, tank.ID, from, until)
	if err != nil {
		return mv, fmt.Errorf("failed to fetch deliveries of tank %d: %w", tank.ID, err)
	}
	for _, d := range deliveries {
		if d.Status == StatusApproved {
			mv.deliveries = append(mv.deliveries, d)
		}
	}

	shifts, err := uow.Shifts().Shifts(ctx, tank.OrgID, from, until)
	if err != nil {
		return mv, fmt.Errorf("failed to fetch shifts of org %d: %w", tank.OrgID, err)
	}
	for _, s := range shifts {
		if !s.Settled() {
			continue
		}
		if v, ok := s.TankVolumes()[tank.ID]; ok {
			mv.shifts = append(mv.shifts, shiftVolume{shift: s, volume: v})
		}
	}
	return mv, nil
}

// totals sums all movements, or only those recorded strictly after *after.
func (m tankMovements) totals(after *time.Time) (delivered, sales, pumpTest decimal.Decimal) {
	for _, d := range m.deliveries {
		if after != nil && !d.CreatedAt.After(*after) {
			continue
		}
		delivered = delivered.Add(d.MeasuredVolume)
	}
	for _, sv := range m.shifts {
		if after != nil && sv.shift.CompletedAt != nil && !sv.shift.CompletedAt.After(*after) {
			continue
		}
		sales = sales.Add(sv.volume.Sales)
		pumpTest = pumpTest.Add(sv.volume.PumpTest)
	}
	return delivered, sales, pumpTest
}

// byDay buckets movements by operational day, keyed by DateLayout.
func (m tankMovements) byDay() map[string]DayMovement {
	out := make(map[string]DayMovement)
	for _, d := range m.deliveries {
		day := d.Date.Format(DateLayout)
		mv := out[day]
		mv.Deliveries = mv.Deliveries.Add(d.MeasuredVolume)
		out[day] = mv
	}
	for _, sv := range m.shifts {
		day := sv.shift.Date.Format(DateLayout)
		mv := out[day]
		mv.Sales = mv.Sales.Add(sv.volume.Sales)
		mv.PumpTest = mv.PumpTest.Add(sv.volume.PumpTest)
		out[day] = mv
	}
	return out
}
