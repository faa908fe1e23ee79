package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	SpotOrdersPlaced   Counter
	SpotOrdersRejected Counter
	HedgesPlaced       Counter
	HedgesFailed       Counter
	HedgesDeferred     Counter
	CyclesCompleted    Counter
	UnhedgedBase       Gauge
	SpotBidPrice       Gauge
	FuturesBidSize     Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		SpotOrdersPlaced:   n,
		SpotOrdersRejected: n,
		HedgesPlaced:       n,
		HedgesFailed:       n,
		HedgesDeferred:     n,
		CyclesCompleted:    n,
		UnhedgedBase:       g,
		SpotBidPrice:       g,
		FuturesBidSize:     g,
	}
}
