// Package position tracks the ladder of averaged-in buy legs.
package position

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLadderFull       = errors.New("position: ladder full")
	ErrDeviationUnmet   = errors.New("position: price deviation unmet")
	ErrNotionalTooSmall = errors.New("position: quote amount below minimum notional")
	ErrLedgerEmpty      = errors.New("position: ledger empty")
	ErrInvalidPosition  = errors.New("position: invalid leg")
)

// Position is one averaging leg.
type Position struct {
	EntryPrice  float64   `json:"entry_price"`
	BaseAmount  float64   `json:"base_amount"`
	QuoteAmount float64   `json:"quote_amount"`
	OpenedAt    time.Time `json:"opened_at"`
}

func (p Position) valid() bool {
	for _, v := range []float64{p.EntryPrice, p.BaseAmount, p.QuoteAmount} {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Ledger holds open legs in entry order. It is not safe for concurrent use;
// other goroutines must read Snapshot copies handed out by the owner.
type Ledger struct {
	legs      []Position
	maxLegs   int
	deviation decimal.Decimal
}

func NewLedger(maxLegs int, deviation float64) *Ledger {
	if maxLegs < 1 {
		maxLegs = 1
	}
	return &Ledger{maxLegs: maxLegs, deviation: decimal.NewFromFloat(deviation)}
}

func (l *Ledger) Len() int     { return len(l.legs) }
func (l *Ledger) MaxLegs() int { return l.maxLegs }
func (l *Ledger) Empty() bool  { return len(l.legs) == 0 }

func (l *Ledger) Last() (Position, bool) {
	if len(l.legs) == 0 {
		return Position{}, false
	}
	return l.legs[len(l.legs)-1], true
}

// Snapshot returns a copy of the open legs.
func (l *Ledger) Snapshot() []Position {
	out := make([]Position, len(l.legs))
	copy(out, l.legs)
	return out
}

// CanAdd reports whether a leg at price would satisfy the ladder rules.
func (l *Ledger) CanAdd(price float64) error {
	if len(l.legs) >= l.maxLegs {
		return ErrLadderFull
	}
	last, ok := l.Last()
	if !ok {
		return nil
	}
	if Drop(last.EntryPrice, price).LessThan(l.deviation) {
		return fmt.Errorf("%w: last entry %.8f, price %.8f", ErrDeviationUnmet, last.EntryPrice, price)
	}
	return nil
}

// Add appends a leg, enforcing the capacity and deviation rules.
func (l *Ledger) Add(p Position) error {
	if !p.valid() {
		return ErrInvalidPosition
	}
	if err := l.CanAdd(p.EntryPrice); err != nil {
		return err
	}
	l.legs = append(l.legs, p)
	return nil
}

// Close removes every leg at once and returns them.
func (l *Ledger) Close() ([]Position, error) {
	if len(l.legs) == 0 {
		return nil, ErrLedgerEmpty
	}
	closed := l.legs
	l.legs = nil
	return closed, nil
}

// Restore replaces the ledger contents after replaying each leg through Add.
// On error the ledger is left unchanged.
func (l *Ledger) Restore(legs []Position) error {
	fresh := &Ledger{maxLegs: l.maxLegs, deviation: l.deviation}
	for i, p := range legs {
		if err := fresh.Add(p); err != nil {
			return fmt.Errorf("restore leg %d: %w", i, err)
		}
	}
	l.legs = fresh.legs
	return nil
}

// Totals sums base and quote amounts across legs.
func Totals(legs []Position) (base, quote float64) {
	b, q := decimal.Zero, decimal.Zero
	for _, p := range legs {
		b = b.Add(decimal.NewFromFloat(p.BaseAmount))
		q = q.Add(decimal.NewFromFloat(p.QuoteAmount))
	}
	return b.InexactFloat64(), q.InexactFloat64()
}

// ProfitPct is the realised return in percent of selling every leg at sellPrice.
func ProfitPct(legs []Position, sellPrice float64) float64 {
	base, quote := Totals(legs)
	if quote == 0 {
		return 0
	}
	return (sellPrice*base - quote) / quote * 100
}

// Drop is the fractional fall from ref to price.
func Drop(ref, price float64) decimal.Decimal {
	r := decimal.NewFromFloat(ref)
	if r.IsZero() {
		return decimal.Zero
	}
	return r.Sub(decimal.NewFromFloat(price)).Div(r)
}
