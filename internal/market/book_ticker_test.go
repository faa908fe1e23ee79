package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spot-hedge-bot/internal/binance/rest"

	"go.uber.org/zap"
)

func TestFetchBestBid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SpotBookTickerPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"25000.01","bidQty":"0.75","askPrice":"25000.02","askQty":"1"}`))
	}))
	defer server.Close()

	client := rest.New(server.URL, time.Second, zap.NewNop())
	quote, err := FetchBestBid(context.Background(), client, SpotBookTickerPath, "btcusdt")
	if err != nil {
		t.Fatalf("fetch best bid: %v", err)
	}
	if quote.Price.String() != "25000.01" || quote.Size.String() != "0.75" {
		t.Fatalf("unexpected quote %s %s", quote.Price, quote.Size)
	}
}

func TestFetchBestBidRejectsEmptyPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"","bidQty":""}`))
	}))
	defer server.Close()

	client := rest.New(server.URL, time.Second, zap.NewNop())
	if _, err := FetchBestBid(context.Background(), client, FuturesBookTickerPath, "BTCUSDT"); err == nil {
		t.Fatalf("expected error for empty bid")
	}
}
