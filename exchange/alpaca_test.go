package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlpacaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("APCA-API-KEY-ID") != "key" || r.Header.Get("APCA-API-SECRET-KEY") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"code":40110000,"message":"request is not authorized"}`)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/v2/clock", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"timestamp":"2026-03-02T10:00:00-05:00","is_open":true,"next_open":"2026-03-03T09:30:00-05:00","next_close":"2026-03-02T16:00:00-05:00"}`)
	}))
	mux.HandleFunc("/v2/account", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"equity":"100250.55","cash":"40000.10","buying_power":"80000.20","status":"ACTIVE"}`)
	}))
	mux.HandleFunc("/v2/positions", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"symbol":"AAPL","qty":"100","avg_entry_price":"180.5","market_value":"19000","current_price":"190","unrealized_pl":"950"}]`)
	}))
	mux.HandleFunc("/v2/orders", auth(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req["symbol"] == "BAD" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"code":40310000,"message":"insufficient buying power"}`)
			return
		}
		resp := map[string]interface{}{
			"id":               "ord-1",
			"client_order_id":  req["client_order_id"],
			"symbol":           req["symbol"],
			"qty":              req["qty"],
			"filled_qty":       "0",
			"filled_avg_price": nil,
			"side":             req["side"],
			"type":             req["type"],
			"time_in_force":    req["time_in_force"],
			"status":           "accepted",
			"submitted_at":     "2026-03-02T15:00:00Z",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	mux.HandleFunc("/v2/stocks/AAPL/bars", auth(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("timeframe") != "1Day" || q.Get("limit") != "3" || q.Get("sort") != "desc" || q.Get("start") == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"bad query"}`)
			return
		}
		_, _ = io.WriteString(w, `{"symbol":"AAPL","next_page_token":null,"bars":[
			{"t":"2026-02-27T05:00:00Z","o":191,"h":193,"l":189,"c":192,"v":1000},
			{"t":"2026-02-26T05:00:00Z","o":188,"h":192,"l":187,"c":191,"v":1000},
			{"t":"2026-02-25T05:00:00Z","o":186,"h":189,"l":185,"c":188,"v":1000}]}`)
	}))
	mux.HandleFunc("/v2/stocks/AAPL/trades/latest", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"symbol":"AAPL","trade":{"t":"2026-03-02T15:00:00Z","p":190.25,"s":100}}`)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAlpacaClientReads(t *testing.T) {
	srv := newAlpacaTestServer(t)
	c := NewAlpacaClient("key", "secret", srv.URL, srv.URL, 5)
	ctx := context.Background()

	open, err := c.IsMarketOpen(ctx)
	require.NoError(t, err)
	assert.True(t, open)

	acct, err := c.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100250.55, acct.Equity, 1e-9)
	assert.InDelta(t, 40000.10, acct.Cash, 1e-9)
	assert.Equal(t, "ACTIVE", acct.Status)

	positions, err := c.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, int64(100), positions[0].Shares)
	assert.InDelta(t, 19000.0, positions[0].MarketValue, 1e-9)

	price, err := c.GetLatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.25, price)

	bars, err := c.GetBars(ctx, "AAPL", Timeframe1D, 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Time.Before(bars[2].Time), "bars are returned oldest first")
	assert.Equal(t, 188.0, bars[0].Close)
	assert.Equal(t, 192.0, bars[2].Close)
}

func TestAlpacaClientPlaceOrder(t *testing.T) {
	srv := newAlpacaTestServer(t)
	c := NewAlpacaClient("key", "secret", srv.URL, srv.URL, 5)

	o, err := c.PlaceOrder(context.Background(), &Order{Ticker: "AAPL", Side: Buy, Shares: 25, ClientOrderID: "cid-1"})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", o.ID)
	assert.Equal(t, "cid-1", o.ClientOrderID)
	assert.Equal(t, int64(25), o.Shares)
	assert.Equal(t, Accepted, o.Status)
	assert.Equal(t, Market, o.Type)
	assert.Zero(t, o.FilledAvgPrice)
	assert.True(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC).Equal(o.SubmittedAt))

	_, err = c.PlaceOrder(context.Background(), &Order{Ticker: "BAD", Side: Buy, Shares: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")

	_, err = c.PlaceOrder(context.Background(), &Order{Ticker: "AAPL", Side: Buy})
	assert.Error(t, err)
}

func TestAlpacaClientErrors(t *testing.T) {
	srv := newAlpacaTestServer(t)
	c := NewAlpacaClient("key", "wrong", srv.URL, srv.URL, 5)

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")

	_, err = c.GetBars(context.Background(), "AAPL", "4h", 3)
	assert.Error(t, err)
	_, err = c.GetBars(context.Background(), "AAPL", Timeframe1D, 0)
	assert.Error(t, err)
}
