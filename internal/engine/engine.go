package engine

import (
	"context"
	"errors"
	"time"

	"spot-hedge-bot/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrFillStreamClosed = errors.New("fill stream closed")

const defaultSpotRetryDelay = 250 * time.Millisecond

// Gateway places orders on both legs. Calls are single-attempt.
type Gateway interface {
	SpotLimitBuy(ctx context.Context, clientOrderID string, size, price decimal.Decimal) (string, error)
	FuturesMarketSell(ctx context.Context, size decimal.Decimal) (string, decimal.Decimal, error)
}

type Sizer interface {
	DeduceSpotOrderParams(ctx context.Context) (decimal.Decimal, decimal.Decimal, error)
}

type Options struct {
	SpotRetryDelay time.Duration
	Sink           EventSink
	// NewClientOrderID names each cycle's spot order. Defaults to a UUID.
	NewClientOrderID func() string
}

// CycleResult summarizes one spot order lifecycle.
type CycleResult struct {
	Order    strategy.PendingOrder
	Filled   decimal.Decimal
	Hedged   decimal.Decimal
	Unhedged decimal.Decimal
}

// Engine buys on spot with a resting limit order and hedges every fill with a
// futures market sell.
type Engine struct {
	sizer      Sizer
	hedger     strategy.HedgeAccumulator
	gateway    Gateway
	fills      <-chan strategy.FillEvent
	sink       EventSink
	log        *zap.Logger
	retryDelay time.Duration
	sm         *strategy.StateMachine
	cycle      uint64
	newID      func() string
	now        func() time.Time
}

func New(sizer Sizer, hedger strategy.HedgeAccumulator, gateway Gateway, fills <-chan strategy.FillEvent, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	retryDelay := opts.SpotRetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultSpotRetryDelay
	}
	newID := opts.NewClientOrderID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Engine{
		sizer:      sizer,
		hedger:     hedger,
		gateway:    gateway,
		fills:      fills,
		sink:       sink,
		log:        log,
		retryDelay: retryDelay,
		sm:         strategy.NewStateMachine(),
		newID:      newID,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) State() strategy.State {
	return e.sm.Current()
}

// Run executes trade cycles until ctx is cancelled or the fill stream ends.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if _, err := e.RunCycle(ctx); err != nil {
			return err
		}
	}
}

// RunCycle places one spot order and hedges it until it is fully filled.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	e.cycle++
	price, size, err := e.sizer.DeduceSpotOrderParams(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	order, err := e.placeSpot(ctx, e.newID(), size, price)
	if err != nil {
		return CycleResult{}, err
	}
	e.sm.Apply(strategy.EventSubmitted)

	result := CycleResult{Order: order, Filled: decimal.Zero, Hedged: decimal.Zero}
	available := decimal.Zero
	for e.sm.Current() == strategy.StateAwaitingFills {
		fill, err := e.nextFill(ctx)
		if err != nil {
			e.sm.Apply(strategy.EventAborted)
			result.Unhedged = available
			return result, err
		}
		if fill.OrderID != order.OrderID {
			continue
		}
		switch fill.Status {
		case strategy.OrderStatusNew:
		case strategy.OrderStatusPartiallyFilled:
			available = available.Add(fill.LastFilledQty)
			result.Filled = result.Filled.Add(fill.LastFilledQty)
			e.log.Info("spot order partially filled",
				zap.String("order_id", order.OrderID),
				zap.String("stage", string(StagePartiallyFilled)),
				zap.Stringer("qty", fill.LastFilledQty),
				zap.Stringer("unhedged", available),
			)
			e.emit(Event{Stage: StagePartiallyFilled, OrderID: order.OrderID, Size: fill.LastFilledQty, Unhedged: available})
			executed := e.hedge(ctx, order, available, fill.RemainingQty())
			available = available.Sub(executed)
			result.Hedged = result.Hedged.Add(executed)
		case strategy.OrderStatusFilled:
			available = available.Add(fill.LastFilledQty)
			result.Filled = result.Filled.Add(fill.LastFilledQty)
			e.log.Info("spot order filled",
				zap.String("order_id", order.OrderID),
				zap.String("stage", string(StageFilled)),
				zap.Stringer("qty", fill.LastFilledQty),
				zap.Stringer("unhedged", available),
			)
			e.emit(Event{Stage: StageFilled, OrderID: order.OrderID, Size: fill.LastFilledQty, Unhedged: available})
			executed := e.hedge(ctx, order, available, decimal.Zero)
			available = available.Sub(executed)
			result.Hedged = result.Hedged.Add(executed)
			e.sm.Apply(strategy.EventFilled)
		default:
			e.log.Warn("unprocessed order status",
				zap.String("order_id", order.OrderID),
				zap.String("status", string(fill.Status)),
			)
		}
	}

	result.Unhedged = available
	e.log.Info("cycle completed",
		zap.String("order_id", order.OrderID),
		zap.String("stage", string(StageCycleCompleted)),
		zap.Stringer("filled", result.Filled),
		zap.Stringer("hedged", result.Hedged),
		zap.Stringer("unhedged", available),
	)
	e.emit(Event{Stage: StageCycleCompleted, OrderID: order.OrderID, Price: order.Price, Size: result.Filled, Unhedged: available})
	e.sm.Apply(strategy.EventReset)
	return result, nil
}

// placeSpot retries with the same parameters and client order id until the
// venue accepts the order.
func (e *Engine) placeSpot(ctx context.Context, clientOrderID string, size, price decimal.Decimal) (strategy.PendingOrder, error) {
	for attempt := 1; ; attempt++ {
		orderID, err := e.gateway.SpotLimitBuy(ctx, clientOrderID, size, price)
		if err == nil {
			e.log.Info("spot limit buy submitted",
				zap.String("order_id", orderID),
				zap.String("client_order_id", clientOrderID),
				zap.String("stage", string(StageSpotSubmitted)),
				zap.Stringer("size", size),
				zap.Stringer("price", price),
				zap.Int("attempt", attempt),
			)
			e.emit(Event{Stage: StageSpotSubmitted, OrderID: orderID, Price: price, Size: size})
			return strategy.PendingOrder{OrderID: orderID, ClientOrderID: clientOrderID, Size: size, Price: price}, nil
		}
		e.log.Warn("spot limit buy failed",
			zap.String("client_order_id", clientOrderID),
			zap.String("stage", string(StageSpotRejected)),
			zap.Stringer("size", size),
			zap.Stringer("price", price),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		e.emit(Event{Stage: StageSpotRejected, Price: price, Size: size, Err: err})
		select {
		case <-ctx.Done():
			return strategy.PendingOrder{}, ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}
}

// hedge sells what the accumulator allows and returns the executed size. A
// failed sale executes nothing; the quantity stays unhedged for the next fill.
func (e *Engine) hedge(ctx context.Context, order strategy.PendingOrder, available, remainsToBuy decimal.Decimal) decimal.Decimal {
	size, ok := e.hedger.SizeToSellOnFutures(available, remainsToBuy)
	if !ok {
		if available.IsPositive() {
			e.log.Debug("hedge deferred",
				zap.String("order_id", order.OrderID),
				zap.String("stage", string(StageHedgeDeferred)),
				zap.Stringer("unhedged", available),
				zap.Stringer("remains_to_buy", remainsToBuy),
			)
			e.emit(Event{Stage: StageHedgeDeferred, OrderID: order.OrderID, Unhedged: available})
		}
		return decimal.Zero
	}
	hedgeID, executed, err := e.gateway.FuturesMarketSell(ctx, size)
	if err != nil {
		e.log.Error("futures market sell failed",
			zap.String("order_id", order.OrderID),
			zap.String("stage", string(StageHedgeFailed)),
			zap.Stringer("size", size),
			zap.Stringer("unhedged", available),
			zap.Error(err),
		)
		e.emit(Event{Stage: StageHedgeFailed, OrderID: order.OrderID, Size: size, Unhedged: available, Err: err})
		return decimal.Zero
	}
	if executed.GreaterThan(size) {
		executed = size
	}
	if executed.IsNegative() {
		executed = decimal.Zero
	}
	e.log.Info("futures market sell submitted",
		zap.String("order_id", order.OrderID),
		zap.String("hedge_order_id", hedgeID),
		zap.String("stage", string(StageHedgeSubmitted)),
		zap.Stringer("size", size),
		zap.Stringer("executed", executed),
		zap.Stringer("unhedged", available.Sub(executed)),
	)
	e.emit(Event{Stage: StageHedgeSubmitted, OrderID: order.OrderID, HedgeOrderID: hedgeID, Size: executed, Unhedged: available.Sub(executed)})
	return executed
}

func (e *Engine) nextFill(ctx context.Context) (strategy.FillEvent, error) {
	select {
	case <-ctx.Done():
		return strategy.FillEvent{}, ctx.Err()
	case fill, ok := <-e.fills:
		if !ok {
			return strategy.FillEvent{}, ErrFillStreamClosed
		}
		return fill, nil
	}
}

func (e *Engine) emit(ev Event) {
	ev.Time = e.now()
	ev.Cycle = e.cycle
	e.sink.Record(ev)
}
