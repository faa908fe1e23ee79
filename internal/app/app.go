package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"spot-hedge-bot/internal/account"
	"spot-hedge-bot/internal/alerts"
	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/binance/ws"
	"spot-hedge-bot/internal/config"
	"spot-hedge-bot/internal/engine"
	"spot-hedge-bot/internal/exec"
	"spot-hedge-bot/internal/market"
	"spot-hedge-bot/internal/metrics"
	persist "spot-hedge-bot/internal/state"
	"spot-hedge-bot/internal/state/sqlite"
	"spot-hedge-bot/internal/strategy"
	"spot-hedge-bot/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type App struct {
	cfg         *config.Config
	log         *zap.Logger
	store       *sqlite.Store
	spotREST    *rest.Client
	futuresREST *rest.Client
	spotFeed    *market.QuoteFeed
	futuresFeed *market.QuoteFeed
	fills       *account.FillStream
	executor    *exec.Executor
	prom        *metrics.Prometheus
	metrics     *metrics.Metrics
	alerts      *alerts.Telegram
	timescale   *timescale.Writer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if !cfg.Spot.HasCredentials() {
		return nil, errors.New("SPOT_API_KEY and SPOT_SECRET_KEY are required")
	}
	if !cfg.Futures.HasCredentials() {
		return nil, errors.New("FUTURES_API_KEY and FUTURES_SECRET_KEY are required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	spotREST := newRESTClient(cfg.Spot, log)
	futuresREST := newRESTClient(cfg.Futures, log)

	spotFeed := market.NewSpotFeed(ws.New(cfg.Spot.WSURL, cfg.Spot.ReconnectDelay, cfg.Spot.PingInterval, log), cfg.Spot.Symbol, log)
	futuresFeed := market.NewFuturesFeed(ws.New(cfg.Futures.WSURL, cfg.Futures.ReconnectDelay, cfg.Futures.PingInterval, log), cfg.Futures.Symbol, log)
	fills := account.NewFillStream(spotREST, cfg.Spot.WSURL, cfg.Spot.ReconnectDelay, cfg.Spot.PingInterval, log)
	executor := exec.New(spotREST, futuresREST, cfg.Spot.Symbol, cfg.Futures.Symbol, store, log)

	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	return &App{
		cfg:         cfg,
		log:         log,
		store:       store,
		spotREST:    spotREST,
		futuresREST: futuresREST,
		spotFeed:    spotFeed,
		futuresFeed: futuresFeed,
		fills:       fills,
		executor:    executor,
		prom:        prom,
		metrics:     m,
		alerts:      alerts.NewTelegram(cfg.Telegram, log),
		timescale:   writer,
	}, nil
}

func newRESTClient(cfg config.VenueConfig, log *zap.Logger) *rest.Client {
	client := rest.New(cfg.RESTURL, cfg.Timeout, log)
	client.SetCredentials(cfg.APIKey, cfg.SecretKey)
	client.SetRecvWindow(cfg.RecvWindow)
	return client
}

// Run connects every stream, derives the sizing constraints and trades until
// ctx is cancelled or a stream ends.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.reconcile(ctx)
	a.pruneJournal(ctx)

	filters, err := market.FetchFuturesSymbol(ctx, a.futuresREST, a.cfg.Futures.Symbol)
	if err != nil {
		return fmt.Errorf("futures exchange info: %w", err)
	}
	minQuote := EffectiveMinQuoteSize(a.cfg.Strategy.MinQuoteSize, filters.MinNotional)
	a.log.Info("futures symbol filters",
		zap.String("symbol", filters.Symbol),
		zap.Int("quantity_precision", filters.QuantityPrecision),
		zap.Stringer("min_lot_size", filters.MinLotSize),
		zap.Stringer("min_quote_size", minQuote),
	)

	a.startMetricsServer(ctx)
	a.timescale.Start(ctx)
	a.alerts.Start(ctx)

	if err := a.spotFeed.Start(ctx); err != nil {
		return fmt.Errorf("spot feed: %w", err)
	}
	if err := a.futuresFeed.Start(ctx); err != nil {
		return fmt.Errorf("futures feed: %w", err)
	}
	spotQuote, futuresQuote, err := strategy.AwaitFirstQuotes(ctx, a.spotFeed.Quotes(), a.futuresFeed.Quotes())
	if err != nil {
		return fmt.Errorf("await first quotes: %w", err)
	}
	a.log.Info("first quotes received",
		zap.Stringer("spot_bid_price", spotQuote.Price),
		zap.Stringer("futures_bid_price", futuresQuote.Price),
		zap.Stringer("futures_bid_size", futuresQuote.Size),
	)
	prices := strategy.NewPriceState(spotQuote, futuresQuote)
	go a.relay(ctx, cancel, "spot", func(ctx context.Context) error { return prices.RelaySpot(ctx, a.spotFeed.Quotes()) })
	go a.relay(ctx, cancel, "futures", func(ctx context.Context) error { return prices.RelayFutures(ctx, a.futuresFeed.Quotes()) })
	go a.sampleQuotes(ctx, prices)

	sizing, err := strategy.NewSizingPolicy(prices, minQuote, a.cfg.Strategy.MaxQuoteSize, filters.Precision(), a.log)
	if err != nil {
		return err
	}
	minBase := strategy.FuturesOrderMinBaseSize(filters.MinLotSize, filters.MinNotional, futuresQuote.Price, filters.Precision())
	hedger := strategy.NewHedgeAccumulator(minBase, filters.Precision())
	a.log.Info("hedge constraints", zap.Stringer("futures_min_base_size", minBase))

	if err := a.fills.Start(ctx); err != nil {
		return err
	}

	snapshots := newSnapshotSink(a.store, a.log)
	snapshots.Start(ctx)
	defer func() {
		cancel()
		snapshots.Wait()
	}()

	eng := engine.New(sizing, hedger, a.executor, a.fills.Fills(), a.log, engine.Options{
		SpotRetryDelay: a.cfg.Strategy.SpotRetryDelay,
		Sink:           a.sinks(snapshots),
	})
	return eng.Run(ctx)
}

func (a *App) sinks(snapshots engine.EventSink) engine.EventSink {
	return engine.MultiSink{
		newMetricsSink(a.metrics),
		snapshots,
		newTimescaleSink(a.timescale, a.cfg.Spot.Symbol),
		newAlertSink(a.alerts, a.cfg.Spot.Symbol),
	}
}

// EffectiveMinQuoteSize raises the configured minimum to the venue minimum notional.
func EffectiveMinQuoteSize(configured decimal.Decimal, minNotional decimal.NullDecimal) decimal.Decimal {
	if minNotional.Valid && minNotional.Decimal.GreaterThan(configured) {
		return minNotional.Decimal
	}
	return configured
}

// reconcile warns when the previous run stopped with unhedged spot exposure.
func (a *App) reconcile(ctx context.Context) {
	snapshot, ok, err := persist.LoadCycleSnapshot(ctx, a.store)
	if err != nil {
		a.log.Warn("cycle snapshot load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if !snapshot.NeedsReconciliation() {
		a.log.Info("previous cycle reconciled", zap.Uint64("cycle", snapshot.Cycle), zap.String("order_id", snapshot.OrderID))
		return
	}
	a.log.Warn("previous run left unhedged exposure",
		zap.Uint64("cycle", snapshot.Cycle),
		zap.String("order_id", snapshot.OrderID),
		zap.String("stage", snapshot.Stage),
		zap.Stringer("filled", snapshot.Filled),
		zap.Stringer("hedged", snapshot.Hedged),
		zap.Stringer("unhedged", snapshot.Unhedged),
		zap.Bool("completed", snapshot.Completed),
	)
	a.alerts.Notify("reconcile", alerts.FormatAlert(alerts.Alert{
		Symbol:   a.cfg.Spot.Symbol,
		Stage:    "unhedged_on_startup",
		OrderID:  snapshot.OrderID,
		Unhedged: snapshot.Unhedged,
	}))
}

func (a *App) pruneJournal(ctx context.Context) {
	removed, err := persist.PruneExpired(ctx, a.store, exec.JournalPrefix, a.cfg.State.JournalRetention, time.Now())
	if err != nil {
		a.log.Warn("order journal prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		a.log.Info("order journal pruned", zap.Int64("removed", removed))
	}
}

// relay stops the whole app when a quote feed ends.
func (a *App) relay(ctx context.Context, cancel context.CancelFunc, name string, fn func(context.Context) error) {
	err := fn(ctx)
	if ctx.Err() != nil {
		return
	}
	a.log.Error("quote relay stopped", zap.String("feed", name), zap.Error(err))
	cancel()
}

func (a *App) sampleQuotes(ctx context.Context, prices *strategy.PriceState) {
	interval := a.cfg.Strategy.QuoteSampleInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			recordQuoteSample(prices, a.metrics, a.timescale, a.cfg.Spot.Symbol, now)
		}
	}
}

func recordQuoteSample(prices *strategy.PriceState, m *metrics.Metrics, writer *timescale.Writer, symbol string, now time.Time) {
	spotPrice := prices.SpotBidPrice()
	futuresSize, _ := prices.FuturesBidSize()
	m.SpotBidPrice.Set(spotPrice.InexactFloat64())
	m.FuturesBidSize.Set(futuresSize.InexactFloat64())
	writer.EnqueueQuote(timescale.QuoteSample{
		Time:           now.UTC(),
		Symbol:         symbol,
		SpotBidPrice:   spotPrice,
		FuturesBidSize: futuresSize,
	})
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("metrics server started", zap.String("address", server.Addr), zap.String("path", a.cfg.Metrics.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
