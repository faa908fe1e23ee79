package strategy

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrFeedClosed = errors.New("quote feed closed")

// PriceState holds the latest spot bid price and futures bid size. Each
// field has exactly one writer; every change of the futures size closes the
// current change channel so waiters re-check their predicate.
type PriceState struct {
	mu             sync.Mutex
	spotBidPrice   decimal.Decimal
	futuresBidSize decimal.Decimal
	sizeChanged    chan struct{}
}

func NewPriceState(spot, futures Quote) *PriceState {
	return &PriceState{
		spotBidPrice:   spot.Price,
		futuresBidSize: futures.Size,
		sizeChanged:    make(chan struct{}),
	}
}

// AwaitFirstQuotes blocks until one quote from each feed has been observed.
func AwaitFirstQuotes(ctx context.Context, spot, futures <-chan Quote) (Quote, Quote, error) {
	var spotQuote, futuresQuote Quote
	for spot != nil || futures != nil {
		select {
		case <-ctx.Done():
			return Quote{}, Quote{}, ctx.Err()
		case q, ok := <-spot:
			if !ok {
				return Quote{}, Quote{}, ErrFeedClosed
			}
			spotQuote = q
			spot = nil
		case q, ok := <-futures:
			if !ok {
				return Quote{}, Quote{}, ErrFeedClosed
			}
			futuresQuote = q
			futures = nil
		}
	}
	return spotQuote, futuresQuote, nil
}

func (s *PriceState) SpotBidPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotBidPrice
}

// FuturesBidSize returns the current size and a channel that is closed on the
// next size update.
func (s *PriceState) FuturesBidSize() (decimal.Decimal, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.futuresBidSize, s.sizeChanged
}

func (s *PriceState) SetSpotBidPrice(price decimal.Decimal) {
	s.mu.Lock()
	s.spotBidPrice = price
	s.mu.Unlock()
}

func (s *PriceState) SetFuturesBidSize(size decimal.Decimal) {
	s.mu.Lock()
	s.futuresBidSize = size
	close(s.sizeChanged)
	s.sizeChanged = make(chan struct{})
	s.mu.Unlock()
}

// RelaySpot applies every spot quote until the feed closes or ctx is done.
func (s *PriceState) RelaySpot(ctx context.Context, quotes <-chan Quote) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-quotes:
			if !ok {
				return ErrFeedClosed
			}
			s.SetSpotBidPrice(q.Price)
		}
	}
}

// RelayFutures applies every futures quote until the feed closes or ctx is done.
func (s *PriceState) RelayFutures(ctx context.Context, quotes <-chan Quote) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-quotes:
			if !ok {
				return ErrFeedClosed
			}
			s.SetFuturesBidSize(q.Size)
		}
	}
}
