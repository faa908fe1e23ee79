package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSizingPolicyRejectsInvertedBounds(t *testing.T) {
	state := NewPriceState(Quote{Price: d("50000")}, Quote{Size: d("1")})
	_, err := NewSizingPolicy(state, d("200"), d("200"), PrecisionCoefficient(3), zap.NewNop())
	if !errors.Is(err, ErrInvalidQuoteBounds) {
		t.Fatalf("expected ErrInvalidQuoteBounds, got %v", err)
	}
}

func TestDeduceSpotOrderParamsCapsAtMax(t *testing.T) {
	state := NewPriceState(Quote{Price: d("50000")}, Quote{Size: d("0.005")})
	policy, err := NewSizingPolicy(state, d("140"), d("200"), PrecisionCoefficient(3), zap.NewNop())
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	price, size, err := policy.DeduceSpotOrderParams(context.Background())
	if err != nil {
		t.Fatalf("deduce: %v", err)
	}
	if !price.Equal(d("50000")) {
		t.Fatalf("expected price 50000, got %s", price)
	}
	if !size.Equal(d("0.004")) {
		t.Fatalf("expected size 0.004, got %s", size)
	}
}

func TestDeduceSpotOrderParamsWaitsForSize(t *testing.T) {
	state := NewPriceState(Quote{Price: d("50000")}, Quote{Size: d("0.001")})
	policy, err := NewSizingPolicy(state, d("140"), d("200"), PrecisionCoefficient(3), zap.NewNop())
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	type result struct {
		price, size decimal.Decimal
		err         error
	}
	done := make(chan result, 1)
	go func() {
		price, size, err := policy.DeduceSpotOrderParams(context.Background())
		done <- result{price, size, err}
	}()

	select {
	case <-done:
		t.Fatalf("expected sizing to block while notional is below minimum")
	case <-time.After(20 * time.Millisecond):
	}

	state.SetFuturesBidSize(d("0.002"))
	select {
	case <-done:
		t.Fatalf("expected sizing to keep waiting at notional 100")
	case <-time.After(20 * time.Millisecond):
	}

	state.SetSpotBidPrice(d("48000"))
	state.SetFuturesBidSize(d("0.0031"))
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("deduce: %v", res.err)
		}
		if !res.price.Equal(d("48000")) {
			t.Fatalf("expected re-read price 48000, got %s", res.price)
		}
		if !res.size.Equal(d("0.003")) {
			t.Fatalf("expected truncated size 0.003, got %s", res.size)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for sizing")
	}
}

func TestDeduceSpotOrderParamsCancelled(t *testing.T) {
	state := NewPriceState(Quote{Price: d("50000")}, Quote{Size: d("0.0001")})
	policy, err := NewSizingPolicy(state, d("140"), d("200"), PrecisionCoefficient(3), zap.NewNop())
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := policy.DeduceSpotOrderParams(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDeduceSpotOrderParamsNotionalWithinBounds(t *testing.T) {
	minQuote, maxQuote := d("140"), d("200")
	prices := []string{"20000", "31234.5", "50000", "64999.99"}
	sizes := []string{"0.0071", "0.01", "0.5", "3"}
	for _, rawPrice := range prices {
		for _, rawSize := range sizes {
			state := NewPriceState(Quote{Price: d(rawPrice)}, Quote{Size: d(rawSize)})
			policy, err := NewSizingPolicy(state, minQuote, maxQuote, PrecisionCoefficient(4), zap.NewNop())
			if err != nil {
				t.Fatalf("new policy: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			price, size, err := policy.DeduceSpotOrderParams(ctx)
			cancel()
			if err != nil {
				t.Fatalf("price %s size %s: %v", rawPrice, rawSize, err)
			}
			notional := price.Mul(size)
			if notional.LessThan(minQuote) || notional.GreaterThan(maxQuote) {
				t.Fatalf("price %s size %s: notional %s outside [%s, %s]", rawPrice, rawSize, notional, minQuote, maxQuote)
			}
			if !FloorToStep(size, PrecisionCoefficient(4)).Equal(size) {
				t.Fatalf("size %s is not on the step grid", size)
			}
		}
	}
}

func TestDeduceSpotOrderParamsWarnsWhenBoundsUnreachable(t *testing.T) {
	state := NewPriceState(Quote{Price: d("50000")}, Quote{Size: d("5")})
	core, logs := observer.New(zap.WarnLevel)
	policy, err := NewSizingPolicy(state, d("140"), d("145"), PrecisionCoefficient(3), zap.New(core))
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	type result struct {
		price, size decimal.Decimal
		err         error
	}
	done := make(chan result, 1)
	go func() {
		price, size, err := policy.DeduceSpotOrderParams(context.Background())
		done <- result{price, size, err}
	}()

	deadline := time.Now().Add(time.Second)
	for logs.FilterMessage("spot order bounds unreachable at current price").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a warning while max quote size caps notional at 100")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		state.SetFuturesBidSize(d("5"))
	}
	time.Sleep(20 * time.Millisecond)
	warnings := logs.FilterMessage("spot order bounds unreachable at current price").All()
	if len(warnings) != 1 {
		t.Fatalf("expected a single warning per stall, got %d", len(warnings))
	}
	fields := warnings[0].ContextMap()
	if fields["price"] != "50000" || fields["min_quote_size"] != "140" || fields["max_quote_size"] != "145" || fields["step"] != "0.001" {
		t.Fatalf("unexpected warning fields %v", fields)
	}

	state.SetSpotBidPrice(d("48000"))
	state.SetFuturesBidSize(d("5"))
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("deduce: %v", res.err)
		}
		if !res.price.Equal(d("48000")) || !res.size.Equal(d("0.003")) {
			t.Fatalf("expected 0.003 @ 48000, got %s @ %s", res.size, res.price)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for sizing")
	}
}
