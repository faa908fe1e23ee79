package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageSpotSubmitted   Stage = "spot_submitted"
	StageSpotRejected    Stage = "spot_rejected"
	StagePartiallyFilled Stage = "partially_filled"
	StageFilled          Stage = "filled"
	StageHedgeSubmitted  Stage = "hedge_submitted"
	StageHedgeFailed     Stage = "hedge_failed"
	StageHedgeDeferred   Stage = "hedge_deferred"
	StageCycleCompleted  Stage = "cycle_completed"
)

// Event is a lifecycle record keyed by the spot order id.
type Event struct {
	Time         time.Time
	Cycle        uint64
	Stage        Stage
	OrderID      string
	HedgeOrderID string
	Price        decimal.Decimal
	Size         decimal.Decimal
	Unhedged     decimal.Decimal
	Err          error
}

type EventSink interface {
	Record(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Record(ev Event) { f(ev) }

// MultiSink fans an event out to every non-nil sink in order.
type MultiSink []EventSink

func (m MultiSink) Record(ev Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Record(ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Record(Event) {}
