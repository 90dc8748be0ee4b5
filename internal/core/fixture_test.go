package core_test

import (
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/core"
	"fuel-ledger/internal/store/memory"
)

const orgID int64 = 1

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// station is a memory store seeded with one product and one tank.
type station struct {
	store   *memory.Store
	product core.Product
	tank    core.Tank
}

func newStation(t *testing.T, initialStock string) *station {
	t.Helper()
	store := memory.New()
	p := store.AddProduct(core.Product{
		OrgID:         orgID,
		Name:          "Pertalite",
		PurchasePrice: dec("8500"),
		SellingPrice:  dec("10000"),
	})
	tank := store.AddTank(core.Tank{
		OrgID:        orgID,
		ProductID:    p.ID,
		Name:         "T1",
		Capacity:     dec("20000"),
		InitialStock: dec(initialStock),
		CreatedAt:    day("2024-01-01"),
	})
	return &station{store: store, product: p, tank: tank}
}

// shift builds a completed shift selling sold litres from one nozzle of tankID.
// The deposit is approved when settled is true and pending otherwise.
func shift(tankID int64, date, sold, pumpTest string, settled bool, deposit core.Deposit) core.Shift {
	d := day(date)
	completed := d.Add(20 * time.Hour)
	open := dec("1000")
	closeTotal := open.Add(dec(sold)).Add(dec(pumpTest))
	deposit.Status = core.StatusPending
	if settled {
		deposit.Status = core.StatusApproved
	}
	return core.Shift{
		OrgID:       orgID,
		Date:        d,
		Status:      core.ShiftCompleted,
		Operator:    "budi",
		CompletedAt: &completed,
		Readings: []core.NozzleReading{
			{NozzleID: tankID*10 + 1, TankID: tankID, Type: core.ReadingOpen, Totalizer: open},
			{NozzleID: tankID*10 + 1, TankID: tankID, Type: core.ReadingClose, Totalizer: closeTotal, PumpTest: dec(pumpTest)},
		},
		Deposit: &deposit,
	}
}

// settledSale adds a shift whose deposit is already approved.
func (s *station) settledSale(date, sold string) core.Shift {
	return s.store.AddShift(shift(s.tank.ID, date, sold, "0", true, core.Deposit{}))
}

func (s *station) approvedDelivery(date, measured string) core.Delivery {
	return s.store.AddDelivery(core.Delivery{
		OrgID:          orgID,
		TankID:         s.tank.ID,
		Date:           day(date),
		OrderedVolume:  dec(measured),
		MeasuredVolume: dec(measured),
		Status:         core.StatusApproved,
	})
}

func (s *station) approvedReading(date, liters string) core.TankReading {
	return s.store.AddReading(core.TankReading{
		TankID:     s.tank.ID,
		Date:       day(date),
		LiterValue: dec(liters),
		Status:     core.StatusApproved,
		CreatedAt:  day(date).Add(8 * time.Hour),
	})
}

// entryFor returns the single journal entry against accountID, or fails.
func entryFor(t *testing.T, tx *core.Transaction, accountID int64) core.JournalEntry {
	t.Helper()
	for _, e := range tx.Entries {
		if e.AccountID == accountID {
			return e
		}
	}
	t.Fatalf("transaction %d has no entry for account %d", tx.ID, accountID)
	return core.JournalEntry{}
}

func assertBalanced(t *testing.T, tx *core.Transaction) {
	t.Helper()
	debit, credit := tx.Totals()
	if !debit.Equal(credit) {
		t.Fatalf("transaction %d unbalanced: %s != %s", tx.ID, debit, credit)
	}
}
