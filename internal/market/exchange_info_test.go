package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spot-hedge-bot/internal/binance/rest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const futuresExchangeInfoJSON = `{
  "symbols": [
    {
      "symbol": "ETHUSDT",
      "quantityPrecision": 3,
      "filters": [{"filterType":"LOT_SIZE","minQty":"0.001"}]
    },
    {
      "symbol": "BTCUSDT",
      "quantityPrecision": 3,
      "filters": [
        {"filterType":"PRICE_FILTER","minPrice":"556.80","tickSize":"0.10"},
        {"filterType":"LOT_SIZE","minQty":"0.001","stepSize":"0.001"},
        {"filterType":"MARKET_LOT_SIZE","minQty":"0.002","stepSize":"0.001"},
        {"filterType":"MIN_NOTIONAL","notional":"100"}
      ]
    }
  ]
}`

func TestFetchFuturesSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != futuresExchangeInfoPath {
			t.Errorf("expected %s, got %s", futuresExchangeInfoPath, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(futuresExchangeInfoJSON))
	}))
	defer server.Close()

	client := rest.New(server.URL, 5*time.Second, zap.NewNop())
	filters, err := FetchFuturesSymbol(context.Background(), client, "btcusdt")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filters.QuantityPrecision != 3 {
		t.Fatalf("expected precision 3, got %d", filters.QuantityPrecision)
	}
	if !filters.MinLotSize.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("expected market lot size 0.002, got %s", filters.MinLotSize)
	}
	if !filters.MinNotional.Valid || !filters.MinNotional.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected min notional 100, got %+v", filters.MinNotional)
	}
	if !filters.Precision().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected coefficient 1000, got %s", filters.Precision())
	}
}

func TestParseFuturesSymbolFallsBackToLotSize(t *testing.T) {
	info := exchangeInfo{Symbols: []symbolInfo{{
		Symbol:            "ETHUSDT",
		QuantityPrecision: 3,
		Filters:           []symbolFilter{{FilterType: "LOT_SIZE", MinQty: "0.001"}},
	}}}
	filters, err := parseFuturesSymbol(info, "ETHUSDT")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !filters.MinLotSize.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("expected lot size 0.001, got %s", filters.MinLotSize)
	}
	if filters.MinNotional.Valid {
		t.Fatalf("expected no min notional")
	}
}

func TestParseFuturesSymbolMissing(t *testing.T) {
	if _, err := parseFuturesSymbol(exchangeInfo{}, "BTCUSDT"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
}
