package market

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"

	"spot-hedge-bot/internal/binance/ws"
	"spot-hedge-bot/internal/strategy"

	"go.uber.org/zap"
)

type decoder func(json.RawMessage) (strategy.Quote, error)

// QuoteFeed streams top-of-book bids from one market. Delivery is
// latest-wins: a quote is dropped when the consumer is not ready for it.
type QuoteFeed struct {
	name    string
	stream  string
	ws      *ws.Client
	decode  decoder
	log     *zap.Logger
	quotes  chan strategy.Quote
	dropped atomic.Uint64
}

func NewSpotFeed(wsClient *ws.Client, symbol string, log *zap.Logger) *QuoteFeed {
	return newQuoteFeed("spot", wsClient, symbol, decodeSpotDepth, log)
}

func NewFuturesFeed(wsClient *ws.Client, symbol string, log *zap.Logger) *QuoteFeed {
	return newQuoteFeed("futures", wsClient, symbol, decodeFuturesDepth, log)
}

func newQuoteFeed(name string, wsClient *ws.Client, symbol string, decode decoder, log *zap.Logger) *QuoteFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuoteFeed{
		name:   name,
		stream: DepthStream(symbol),
		ws:     wsClient,
		decode: decode,
		log:    log.With(zap.String("feed", name)),
		quotes: make(chan strategy.Quote),
	}
}

// DepthStream is the five-level 100ms book stream name for symbol.
func DepthStream(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + "@depth5@100ms"
}

func (f *QuoteFeed) Quotes() <-chan strategy.Quote {
	return f.quotes
}

func (f *QuoteFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// Start subscribes to the book stream and relays quotes until ctx is done.
// The quote channel is closed when the stream stops.
func (f *QuoteFeed) Start(ctx context.Context) error {
	if f.ws == nil {
		return errors.New("ws client is required")
	}
	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	if err := f.ws.Subscribe(ctx, f.stream); err != nil {
		return err
	}
	go func() {
		defer close(f.quotes)
		if err := f.ws.Run(ctx, f.handleMessage); err != nil && ctx.Err() == nil {
			f.log.Error("quote stream stopped", zap.String("stream", f.stream), zap.Error(err))
		}
	}()
	return nil
}

func (f *QuoteFeed) handleMessage(msg json.RawMessage) {
	quote, err := f.decode(msg)
	if err != nil {
		switch {
		case errors.Is(err, errNotBookUpdate):
		case errors.Is(err, ErrEmptyBook):
			f.log.Warn("bids are empty", zap.String("stream", f.stream))
		default:
			f.log.Debug("book decode error", zap.String("stream", f.stream), zap.Error(err))
		}
		return
	}
	select {
	case f.quotes <- quote:
	default:
		f.dropped.Add(1)
	}
}
