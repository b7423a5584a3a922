package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dca-core/internal/order"
	"dca-core/pkg/exchanges/binance/spot"
	exchange "dca-core/pkg/exchanges/common"
	marketpkg "dca-core/pkg/market/binance"
)

type staticData struct{ close float64 }

func (s staticData) GetKlines(_ context.Context, symbol, interval string, limit int) ([]marketpkg.Kline, error) {
	return []marketpkg.Kline{{Symbol: symbol, Interval: interval, OpenTime: 1, Close: s.close, IsClosed: true}}, nil
}

func TestSymbolHelpers(t *testing.T) {
	require.Equal(t, "ETHUSDT", Symbol("eth/usdt"))
	base, quote := SplitPair("ETH/USDT")
	require.Equal(t, "ETH", base)
	require.Equal(t, "USDT", quote)
}

func TestPaperRoundTrip(t *testing.T) {
	p := NewPaper(PaperConfig{QuoteBalance: 100, FeeRate: 0.001}, staticData{close: 2000}, nil)
	ctx := order.WithClientID(context.Background(), "cid-1")

	price, err := p.FetchTicker(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, 2000.0, price)

	res, err := p.CreateLimitBuy(ctx, "ETHUSDT", 0.005, 2000)
	require.NoError(t, err)
	require.Equal(t, exchange.StatusFilled, res.Status)
	require.Equal(t, "cid-1", res.ClientID)

	quote, base := p.Balances()
	require.InDelta(t, 100-10-0.01, quote, 1e-9)
	require.InDelta(t, 0.005, base, 1e-12)

	_, err = p.CreateLimitSell(ctx, "ETHUSDT", 0.005, 2100)
	require.NoError(t, err)
	quote, base = p.Balances()
	require.InDelta(t, 89.99+10.5-0.0105, quote, 1e-9)
	require.Zero(t, base)
	require.Len(t, p.Fills(), 2)
}

func TestPaperRejectsOverspend(t *testing.T) {
	p := NewPaper(PaperConfig{QuoteBalance: 5}, staticData{close: 1}, nil)
	_, err := p.CreateLimitBuy(context.Background(), "ETHUSDT", 1, 10)
	require.ErrorContains(t, err, "insufficient balance")

	_, err = p.CreateLimitSell(context.Background(), "ETHUSDT", 1, 10)
	require.ErrorContains(t, err, "insufficient inventory")
	require.Empty(t, p.Fills())
}

func TestBinanceSetupRequiresCredentials(t *testing.T) {
	b := NewBinance(BinanceConfig{RESTURL: "http://127.0.0.1:0"})
	require.ErrorIs(t, b.Setup(context.Background()), spot.ErrMissingCredentials)
}

func TestBinanceOrdersAndTicker(t *testing.T) {
	var gotClientID string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
	})
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"2000.50"}`))
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotClientID = r.PostForm.Get("newClientOrderId")
		status := "NEW"
		if r.PostForm.Get("side") == "SELL" {
			status = "REJECTED"
		}
		_, _ = w.Write([]byte(`{"orderId":7,"clientOrderId":"x","price":"1999.80","executedQty":"0","status":"` + status + `"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewBinance(BinanceConfig{RESTURL: srv.URL, APIKey: "k", APISecret: "s"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Setup(ctx))

	price, err := b.FetchTicker(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.Equal(t, 2000.5, price)

	res, err := b.CreateLimitBuy(order.WithClientID(ctx, "abc"), "ETHUSDT", 0.005, 1999.8)
	require.NoError(t, err)
	require.Equal(t, "7", res.ExchangeOrderID)
	require.Equal(t, "abc", gotClientID)

	_, err = b.CreateLimitSell(ctx, "ETHUSDT", 0.005, 2000.2)
	require.ErrorContains(t, err, "REJECTED")
}
