package economy

import (
	"math"
)

// Ledger maps each resource to a non-negative quantity. A missing key reads as
// zero. Quantities stay fractional; rounding is a display concern.
type Ledger map[Resource]float64

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return make(Ledger, len(Resources))
}

// Get returns the balance of r, 0 when absent.
func (l Ledger) Get(r Resource) float64 {
	return l[r]
}

// Credit adds amount to r. Non-positive and NaN amounts are ignored.
func (l Ledger) Credit(r Resource, amount float64) {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return
	}
	l[r] += amount
}

// Debit removes amount from r, or fails without touching the balance.
func (l Ledger) Debit(r Resource, amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return ErrInvalidAmount
	}
	if have := l[r]; have < amount {
		return &InsufficientResourcesError{Resource: r, Required: amount, Available: have}
	}
	l[r] -= amount
	return nil
}

// Covers checks every line of cost against the balance and returns the first
// shortfall in Resources order, or nil.
func (l Ledger) Covers(cost Ledger) error {
	for _, r := range Resources {
		need, ok := cost[r]
		if !ok {
			continue
		}
		if need < 0 || math.IsNaN(need) {
			return ErrInvalidAmount
		}
		if have := l[r]; have < need {
			return &InsufficientResourcesError{Resource: r, Required: need, Available: have}
		}
	}
	return nil
}

// DebitAll pays every line of cost, or nothing. All lines are checked before
// any balance changes.
func (l Ledger) DebitAll(cost Ledger) error {
	if err := l.Covers(cost); err != nil {
		return err
	}
	for r, need := range cost {
		l[r] -= need
		if l[r] < 0 {
			l[r] = 0
		}
	}
	return nil
}

// Drain takes up to amount of r and returns what was actually taken.
func (l Ledger) Drain(r Resource, amount float64) float64 {
	if !(amount > 0) {
		return 0
	}
	taken := math.Min(amount, l[r])
	l[r] -= taken
	if l[r] < 0 {
		l[r] = 0
	}
	return taken
}

// Adjust applies a signed change to r, clamped so the balance never goes
// below zero. Returns the delta that was actually applied.
func (l Ledger) Adjust(r Resource, delta float64) float64 {
	if math.IsNaN(delta) {
		return 0
	}
	before := l[r]
	after := clamp(before+delta, 0, math.MaxFloat64)
	l[r] = after
	return after - before
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for r, v := range l {
		out[r] = v
	}
	return out
}

// Equal reports whether both ledgers hold the same balances, treating missing
// keys as zero.
func (l Ledger) Equal(o Ledger) bool {
	for _, r := range Resources {
		if l[r] != o[r] {
			return false
		}
	}
	return true
}

// Rounded returns a copy with every balance floored to a whole unit, so a
// player is never shown more than they can spend.
func (l Ledger) Rounded() map[Resource]int64 {
	out := make(map[Resource]int64, len(Resources))
	for _, r := range Resources {
		out[r] = int64(math.Floor(l[r] + 1e-9))
	}
	return out
}

// Scale returns a copy with every balance multiplied by f.
func (l Ledger) Scale(f float64) Ledger {
	out := make(Ledger, len(l))
	for r, v := range l {
		out[r] = v * f
	}
	return out
}
