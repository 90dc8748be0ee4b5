package memory

import (
	"fuel-ledger/internal/core"
)

// The Add methods load operational and master data produced by systems
// outside the ledger (pump controllers, gauge entry, purchasing). IDs are
// assigned by the store and the stored record is returned.

func (s *Store) AddProduct(p core.Product) core.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.st.id()
	s.st.products[p.ID] = p
	return p
}

func (s *Store) AddPriceChange(c core.PriceChange) core.PriceChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.st.id()
	s.st.priceChanges[c.ProductID] = append(s.st.priceChanges[c.ProductID], c)
	return c
}

func (s *Store) AddTank(t core.Tank) core.Tank {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.st.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.Now().UTC()
	}
	s.st.tanks[t.ID] = t
	return t
}

func (s *Store) AddReading(r core.TankReading) core.TankReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.st.id()
	if r.Status == "" {
		r.Status = core.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.Now().UTC()
	}
	s.st.readings[r.ID] = r
	return r
}

func (s *Store) AddDelivery(d core.Delivery) core.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.st.id()
	if d.Status == "" {
		d.Status = core.StatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.Now().UTC()
	}
	s.st.deliveries[d.ID] = d
	return d
}

// AddShift stores a shift with its nozzle readings and, when set, its deposit.
func (s *Store) AddShift(sh core.Shift) core.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh.ID = s.st.id()
	for i := range sh.Readings {
		sh.Readings[i].ID = s.st.id()
		sh.Readings[i].ShiftID = sh.ID
	}
	dep := sh.Deposit
	sh.Deposit = nil
	s.st.shifts[sh.ID] = sh
	if dep != nil {
		d := *dep
		d.ID = s.st.id()
		d.ShiftID = sh.ID
		if d.OrgID == 0 {
			d.OrgID = sh.OrgID
		}
		if d.Status == "" {
			d.Status = core.StatusPending
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = s.Now().UTC()
		}
		s.st.deposits[d.ID] = d
		s.st.depositByShift[sh.ID] = d.ID
	}
	return s.st.shiftWithDeposit(sh)
}
