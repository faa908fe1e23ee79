package app

import (
	"context"
	"sync"
	"time"

	"spot-hedge-bot/internal/alerts"
	"spot-hedge-bot/internal/engine"
	"spot-hedge-bot/internal/metrics"
	persist "spot-hedge-bot/internal/state"
	"spot-hedge-bot/internal/timescale"

	"go.uber.org/zap"
)

const snapshotWriteTimeout = 2 * time.Second

func newMetricsSink(m *metrics.Metrics) engine.EventSink {
	return engine.EventSinkFunc(func(ev engine.Event) {
		switch ev.Stage {
		case engine.StageSpotSubmitted:
			m.SpotOrdersPlaced.Inc()
			return
		case engine.StageSpotRejected:
			m.SpotOrdersRejected.Inc()
			return
		case engine.StageHedgeSubmitted:
			m.HedgesPlaced.Inc()
		case engine.StageHedgeFailed:
			m.HedgesFailed.Inc()
		case engine.StageHedgeDeferred:
			m.HedgesDeferred.Inc()
		case engine.StageCycleCompleted:
			m.CyclesCompleted.Inc()
		}
		m.UnhedgedBase.Set(ev.Unhedged.InexactFloat64())
	})
}

// snapshotSink folds events into the last-cycle snapshot. Record only updates
// memory; a background writer persists the latest fold so the engine never
// waits on the store before hedging.
type snapshotSink struct {
	store persist.Store
	log   *zap.Logger
	dirty chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	snapshot persist.CycleSnapshot
	pending  bool
}

func newSnapshotSink(store persist.Store, log *zap.Logger) *snapshotSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &snapshotSink{
		store: store,
		log:   log,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *snapshotSink) Record(ev engine.Event) {
	s.mu.Lock()
	switch ev.Stage {
	case engine.StageSpotRejected:
		s.mu.Unlock()
		return
	case engine.StageSpotSubmitted:
		s.snapshot = persist.CycleSnapshot{
			Cycle:   ev.Cycle,
			OrderID: ev.OrderID,
			Price:   ev.Price,
			Size:    ev.Size,
		}
	case engine.StagePartiallyFilled, engine.StageFilled:
		s.snapshot.Filled = s.snapshot.Filled.Add(ev.Size)
	case engine.StageHedgeSubmitted:
		s.snapshot.Hedged = s.snapshot.Hedged.Add(ev.Size)
	case engine.StageCycleCompleted:
		s.snapshot.Completed = true
	}
	s.snapshot.Stage = string(ev.Stage)
	s.snapshot.Unhedged = ev.Unhedged
	s.snapshot.UpdatedAtMS = ev.Time.UnixMilli()
	s.pending = true
	s.mu.Unlock()

	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Start persists folds until ctx is done, then writes the final one.
func (s *snapshotSink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				s.flush()
				return
			case <-s.dirty:
				s.flush()
			}
		}
	}()
}

// Wait blocks until the writer started by Start has exited.
func (s *snapshotSink) Wait() {
	<-s.done
}

func (s *snapshotSink) flush() {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshot
	s.pending = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotWriteTimeout)
	defer cancel()
	if err := persist.SaveCycleSnapshot(ctx, s.store, snapshot); err != nil {
		s.log.Warn("cycle snapshot save failed", zap.String("order_id", snapshot.OrderID), zap.Error(err))
	}
}

func newTimescaleSink(writer *timescale.Writer, symbol string) engine.EventSink {
	return engine.EventSinkFunc(func(ev engine.Event) {
		if writer == nil {
			return
		}
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		writer.EnqueueEvent(timescale.HedgeEvent{
			Time:         ev.Time,
			Cycle:        ev.Cycle,
			Stage:        string(ev.Stage),
			Symbol:       symbol,
			OrderID:      ev.OrderID,
			HedgeOrderID: ev.HedgeOrderID,
			Price:        ev.Price,
			Size:         ev.Size,
			Unhedged:     ev.Unhedged,
			Error:        errText,
		})
	})
}

// newAlertSink pages on failed hedges only.
func newAlertSink(tg *alerts.Telegram, symbol string) engine.EventSink {
	return engine.EventSinkFunc(func(ev engine.Event) {
		if ev.Stage != engine.StageHedgeFailed || !tg.Enabled() {
			return
		}
		alert := alerts.Alert{
			Symbol:   symbol,
			Stage:    string(ev.Stage),
			OrderID:  ev.OrderID,
			Size:     ev.Size,
			Unhedged: ev.Unhedged,
			Err:      ev.Err,
		}
		tg.Notify(alert.Key(), alerts.FormatAlert(alert))
	})
}
