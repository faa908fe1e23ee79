package timescale

import (
	"testing"

	"spot-hedge-bot/internal/config"

	"go.uber.org/zap"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	writer, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer != nil {
		t.Fatalf("expected nil writer when disabled")
	}
	// nil writers accept events silently
	writer.EnqueueEvent(HedgeEvent{Stage: "filled"})
	if err := writer.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	writer := newWriter(nil, "public", 1, zap.NewNop())
	writer.EnqueueEvent(HedgeEvent{Stage: "spot_submitted"})
	writer.EnqueueEvent(HedgeEvent{Stage: "filled"})
	writer.EnqueueQuote(QuoteSample{Symbol: "BTCUSDT"})
	writer.EnqueueQuote(QuoteSample{Symbol: "BTCUSDT"})
	writer.EnqueueQuote(QuoteSample{Symbol: "BTCUSDT"})
	events, quotes := writer.Dropped()
	if events != 1 || quotes != 2 {
		t.Fatalf("unexpected drop counts events=%d quotes=%d", events, quotes)
	}
}

func TestTableQualifiesSchema(t *testing.T) {
	writer := newWriter(nil, "hedger", 0, zap.NewNop())
	if got := writer.table("hedge_events"); got != "hedger.hedge_events" {
		t.Fatalf("unexpected table %s", got)
	}
	if cap(writer.events) != 256 {
		t.Fatalf("expected default queue size, got %d", cap(writer.events))
	}
}
