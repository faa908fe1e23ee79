package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "spot_hedge"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	spotPlaced     prometheus.Counter
	spotRejected   prometheus.Counter
	hedgesPlaced   prometheus.Counter
	hedgesFailed   prometheus.Counter
	hedgesDeferred prometheus.Counter
	cycles         prometheus.Counter
	unhedged       prometheus.Gauge
	spotBid        prometheus.Gauge
	futuresBidSize prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:       registry,
		spotPlaced:     newCounter("spot_orders_placed_total", "Total number of spot limit buys accepted."),
		spotRejected:   newCounter("spot_orders_rejected_total", "Total number of spot limit buy attempts rejected."),
		hedgesPlaced:   newCounter("hedges_placed_total", "Total number of futures market sells executed."),
		hedgesFailed:   newCounter("hedges_failed_total", "Total number of futures market sell failures."),
		hedgesDeferred: newCounter("hedges_deferred_total", "Total number of fills left unhedged below the futures minimum."),
		cycles:         newCounter("cycles_completed_total", "Total number of completed trade cycles."),
		unhedged:       newGauge("unhedged_base", "Spot base quantity bought but not yet sold on futures."),
		spotBid:        newGauge("spot_bid_price", "Latest best spot bid price."),
		futuresBidSize: newGauge("futures_bid_size", "Latest best futures bid size."),
	}
	registry.MustRegister(
		p.spotPlaced, p.spotRejected,
		p.hedgesPlaced, p.hedgesFailed, p.hedgesDeferred,
		p.cycles,
		p.unhedged, p.spotBid, p.futuresBidSize,
	)
	p.Metrics = &Metrics{
		SpotOrdersPlaced:   promCounter{p.spotPlaced},
		SpotOrdersRejected: promCounter{p.spotRejected},
		HedgesPlaced:       promCounter{p.hedgesPlaced},
		HedgesFailed:       promCounter{p.hedgesFailed},
		HedgesDeferred:     promCounter{p.hedgesDeferred},
		CyclesCompleted:    promCounter{p.cycles},
		UnhedgedBase:       promGauge{p.unhedged},
		SpotBidPrice:       promGauge{p.spotBid},
		FuturesBidSize:     promGauge{p.futuresBidSize},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
