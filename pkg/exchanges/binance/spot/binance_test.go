package spot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"dca-core/pkg/exchanges/common"
)

func TestSubmitOrderSignsAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ETHUSDT", r.PostForm.Get("symbol"))
		require.Equal(t, "BUY", r.PostForm.Get("side"))
		require.Equal(t, "LIMIT", r.PostForm.Get("type"))
		require.Equal(t, "0.005", r.PostForm.Get("quantity"))
		require.Equal(t, "1999.8", r.PostForm.Get("price"))
		require.Equal(t, "GTC", r.PostForm.Get("timeInForce"))
		require.Len(t, r.PostForm.Get("signature"), 64)

		w.Header().Set("X-MBX-USED-WEIGHT-1M", "12")
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":42,"clientOrderId":"c1","price":"1999.80","executedQty":"0.005","status":"FILLED"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "key", APISecret: "secret", BaseURL: srv.URL})
	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol: "ETHUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 0.005, Price: 1999.8, ClientID: "c1",
	})
	require.NoError(t, err)
	require.Equal(t, "42", res.ExchangeOrderID)
	require.Equal(t, common.StatusFilled, res.Status)
	require.Equal(t, 1999.8, res.Price)
	require.Equal(t, 0.005, res.ExecutedQty)

	used, limit, _ := c.RateLimiter().Usage()
	require.Equal(t, 12, used)
	require.Equal(t, 1200, limit)
}

func TestSubmitOrderRequiresCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.SubmitOrder(context.Background(), common.OrderRequest{Symbol: "ETHUSDT"})
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSubmitOrderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APISecret: "s", BaseURL: srv.URL})
	_, err := c.SubmitOrder(context.Background(), common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideSell, Qty: 1, Price: 1})
	require.ErrorContains(t, err, "LOT_SIZE")
}

func TestTimeSyncUsesServerTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/time", r.URL.Path)
		_, _ = w.Write([]byte(`{"serverTime":4102444800000}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	require.NoError(t, c.TimeSync().Sync(context.Background()))
	require.Greater(t, c.TimeSync().Offset(), int64(0))
	require.False(t, c.TimeSync().LastSync().IsZero())
}

func TestAccountFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.NotEmpty(t, r.URL.Query().Get("signature"))
		_, _ = w.Write([]byte(`{"canTrade":true,"balances":[{"asset":"USDT","free":"150.5","locked":"0"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APISecret: "s", BaseURL: srv.URL})
	info, err := c.GetAccountInfo(context.Background())
	require.NoError(t, err)
	require.True(t, info.CanTrade)
	require.Equal(t, 150.5, info.Free("usdt"))
	require.Zero(t, info.Free("ETH"))
}

func TestMapStatus(t *testing.T) {
	require.Equal(t, common.StatusPartial, mapStatus("partially_filled"))
	require.Equal(t, common.StatusUnknown, mapStatus("PENDING_NEW"))
}
