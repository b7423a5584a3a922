package strategy

// Decide re-checks a signal against the ledger and is the only authority for order
// placement. It returns Buy only for an empty ledger, Sell only for a non-empty one.
func Decide(sig Signal, openLegs int, price float64) Action {
	if price <= 0 {
		return Hold
	}
	switch {
	case sig.Action == Buy && openLegs == 0:
		return Buy
	case sig.Action == Sell && openLegs > 0:
		return Sell
	default:
		return Hold
	}
}
