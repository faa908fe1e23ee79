package market

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spot-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestDecodeSpotDepth(t *testing.T) {
	msg := json.RawMessage(`{"lastUpdateId":160,"bids":[["50000.01","0.431"],["50000.00","1"]],"asks":[["50000.02","2"]]}`)
	quote, err := decodeSpotDepth(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !quote.Price.Equal(decimal.RequireFromString("50000.01")) {
		t.Fatalf("expected price 50000.01, got %s", quote.Price)
	}
	if !quote.Size.Equal(decimal.RequireFromString("0.431")) {
		t.Fatalf("expected size 0.431, got %s", quote.Size)
	}
}

func TestDecodeSpotDepthEmptyBids(t *testing.T) {
	msg := json.RawMessage(`{"lastUpdateId":160,"bids":[],"asks":[]}`)
	if _, err := decodeSpotDepth(msg); !errors.Is(err, ErrEmptyBook) {
		t.Fatalf("expected ErrEmptyBook, got %v", err)
	}
}

func TestDecodeSpotDepthSubscriptionAck(t *testing.T) {
	if _, err := decodeSpotDepth(json.RawMessage(`{"result":null,"id":1}`)); !errors.Is(err, errNotBookUpdate) {
		t.Fatalf("expected ack to be skipped, got %v", err)
	}
}

func TestDecodeFuturesDepth(t *testing.T) {
	msg := json.RawMessage(`{"e":"depthUpdate","E":1571889248277,"T":1571889248276,"s":"BTCUSDT","U":390497796,"u":390497878,"pu":390497794,"b":[["7403.89","0.002"]],"a":[["7405.96","3.340"]]}`)
	quote, err := decodeFuturesDepth(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !quote.Price.Equal(decimal.RequireFromString("7403.89")) || !quote.Size.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestDecodeFuturesDepthMalformedLevel(t *testing.T) {
	msg := json.RawMessage(`{"e":"depthUpdate","s":"BTCUSDT","b":[["abc","0.002"]]}`)
	if _, err := decodeFuturesDepth(msg); err == nil {
		t.Fatalf("expected error for malformed price")
	}
}

func TestHandleMessageDropsWhenConsumerBusy(t *testing.T) {
	feed := newQuoteFeed("spot", nil, "BTCUSDT", decodeSpotDepth, zap.NewNop())
	feed.handleMessage(json.RawMessage(`{"lastUpdateId":1,"bids":[["100","1"]]}`))
	if feed.Dropped() != 1 {
		t.Fatalf("expected quote to be dropped without a ready consumer, got %d", feed.Dropped())
	}

	received := make(chan strategy.Quote, 1)
	go func() {
		received <- <-feed.Quotes()
	}()
	deadline := time.Now().Add(time.Second)
	for len(received) == 0 && time.Now().Before(deadline) {
		feed.handleMessage(json.RawMessage(`{"lastUpdateId":2,"bids":[["101","2"]]}`))
		time.Sleep(time.Millisecond)
	}
	var q strategy.Quote
	select {
	case q = <-received:
	default:
		t.Fatalf("expected a quote once the consumer was ready")
	}
	if !q.Price.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("expected latest quote 101, got %s", q.Price)
	}
}

func TestHandleMessageSkipsEmptyBook(t *testing.T) {
	feed := newQuoteFeed("futures", nil, "BTCUSDT", decodeFuturesDepth, zap.NewNop())
	feed.handleMessage(json.RawMessage(`{"e":"depthUpdate","s":"BTCUSDT","b":[]}`))
	if feed.Dropped() != 0 {
		t.Fatalf("empty book must be skipped, not counted as a drop")
	}
}

func TestDepthStream(t *testing.T) {
	if got := DepthStream(" BTCUSDT "); got != "btcusdt@depth5@100ms" {
		t.Fatalf("unexpected stream %q", got)
	}
}
