// Package gateway provides the exchange collaborators used by the bot: a live
// Binance spot adapter and a paper exchange for dry runs.
package gateway

import (
	"context"
	"strings"

	"dca-core/internal/market"
	"dca-core/internal/order"
)

// Exchange is everything the bot needs from a venue.
type Exchange interface {
	market.HistorySource
	order.Exchange
	// Setup verifies the venue is usable; an error aborts startup.
	Setup(ctx context.Context) error
}

// Symbol converts a pair like "ETH/USDT" into the venue form "ETHUSDT".
func Symbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

// SplitPair returns the base and quote assets of "ETH/USDT".
func SplitPair(pair string) (base, quote string) {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 {
		return strings.ToUpper(pair), ""
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1])
}
