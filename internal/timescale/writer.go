package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"spot-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// HedgeEvent is one engine lifecycle record.
type HedgeEvent struct {
	Time         time.Time
	Cycle        uint64
	Stage        string
	Symbol       string
	OrderID      string
	HedgeOrderID string
	Price        decimal.Decimal
	Size         decimal.Decimal
	Unhedged     decimal.Decimal
	Error        string
}

// QuoteSample is a periodic read of the shared price state.
type QuoteSample struct {
	Time           time.Time
	Symbol         string
	SpotBidPrice   decimal.Decimal
	FuturesBidSize decimal.Decimal
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	events     chan HedgeEvent
	quotes     chan QuoteSample
	started    atomic.Bool
	dropEvents atomic.Uint64
	dropQuotes atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		events: make(chan HedgeEvent, queueSize),
		quotes: make(chan QuoteSample, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueEvent never blocks the caller; events are dropped when the queue is full.
func (w *Writer) EnqueueEvent(ev HedgeEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- ev:
		return
	default:
		if w.dropEvents.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale event queue full")
		}
	}
}

func (w *Writer) EnqueueQuote(sample QuoteSample) {
	if w == nil {
		return
	}
	select {
	case w.quotes <- sample:
		return
	default:
		if w.dropQuotes.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale quote queue full")
		}
	}
}

func (w *Writer) Dropped() (events, quotes uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropEvents.Load(), w.dropQuotes.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.writeEvent(ctx, ev)
		case sample := <-w.quotes:
			w.writeQuote(ctx, sample)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		cycle BIGINT NOT NULL,
		stage TEXT NOT NULL,
		symbol TEXT NOT NULL,
		order_id TEXT NOT NULL,
		hedge_order_id TEXT NOT NULL,
		price NUMERIC NOT NULL,
		size NUMERIC NOT NULL,
		unhedged NUMERIC NOT NULL,
		error TEXT NOT NULL
	)`, w.table("hedge_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		spot_bid_price NUMERIC NOT NULL,
		futures_bid_size NUMERIC NOT NULL
	)`, w.table("quote_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, name := range []string{"hedge_events", "quote_samples"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil && w.log != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, ev HedgeEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, cycle, stage, symbol, order_id, hedge_order_id, price, size, unhedged, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("hedge_events"))
	if _, err := w.db.ExecContext(ctx, query,
		ev.Time,
		int64(ev.Cycle),
		ev.Stage,
		ev.Symbol,
		ev.OrderID,
		ev.HedgeOrderID,
		ev.Price,
		ev.Size,
		ev.Unhedged,
		ev.Error,
	); err != nil && w.log != nil {
		w.log.Warn("timescale event insert failed", zap.Error(err))
	}
}

func (w *Writer) writeQuote(ctx context.Context, sample QuoteSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, spot_bid_price, futures_bid_size
	) VALUES (
		$1,$2,$3,$4
	)`, w.table("quote_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.Symbol,
		sample.SpotBidPrice,
		sample.FuturesBidSize,
	); err != nil && w.log != nil {
		w.log.Warn("timescale quote insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
