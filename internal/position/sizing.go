package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy sizes ladder legs: quote = BaseOrderSize × Multiplier^legs.
type Policy struct {
	BaseOrderSize float64
	Multiplier    float64
	MinNotional   float64
}

// QuoteFor returns the quote amount of the next leg for a ledger holding legs entries.
func (p Policy) QuoteFor(legs int) decimal.Decimal {
	q := decimal.NewFromFloat(p.BaseOrderSize)
	m := decimal.NewFromFloat(p.Multiplier)
	for i := 0; i < legs; i++ {
		q = q.Mul(m)
	}
	return q
}

// Next validates a candidate buy at price against the ledger and returns its quote size.
// Rejections wrap ErrLadderFull, ErrDeviationUnmet or ErrNotionalTooSmall.
func (p Policy) Next(l *Ledger, price float64) (float64, error) {
	if err := l.CanAdd(price); err != nil {
		return 0, err
	}
	q := p.QuoteFor(l.Len())
	if q.LessThan(decimal.NewFromFloat(p.MinNotional)) {
		return 0, fmt.Errorf("%w: %s < %v", ErrNotionalTooSmall, q.String(), p.MinNotional)
	}
	return q.InexactFloat64(), nil
}
