// Command verify prints the sizing constraints the hedger would derive right
// now without placing any order.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"spot-hedge-bot/internal/app"
	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/config"
	"spot-hedge-bot/internal/logging"
	"spot-hedge-bot/internal/market"
	"spot-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const sizingWait = 2 * time.Second

type report struct {
	SpotSymbol         string           `json:"spot_symbol"`
	FuturesSymbol      string           `json:"futures_symbol"`
	QuantityPrecision  int              `json:"quantity_precision"`
	MinLotSize         decimal.Decimal  `json:"min_lot_size"`
	MinNotional        *decimal.Decimal `json:"min_notional,omitempty"`
	MinQuoteSize       decimal.Decimal  `json:"min_quote_size"`
	MaxQuoteSize       decimal.Decimal  `json:"max_quote_size"`
	FuturesMinBaseSize decimal.Decimal  `json:"futures_min_base_size"`
	SpotBidPrice       decimal.Decimal  `json:"spot_bid_price"`
	FuturesBidPrice    decimal.Decimal  `json:"futures_bid_price"`
	FuturesBidSize     decimal.Decimal  `json:"futures_bid_size"`
	OrderPrice         *decimal.Decimal `json:"order_price,omitempty"`
	OrderSize          *decimal.Decimal `json:"order_size,omitempty"`
	OrderNotional      *decimal.Decimal `json:"order_notional,omitempty"`
	Note               string           `json:"note,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := run(ctx, cfg, log)
	if err != nil {
		fatal(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) (report, error) {
	spotREST := rest.New(cfg.Spot.RESTURL, cfg.Spot.Timeout, log)
	futuresREST := rest.New(cfg.Futures.RESTURL, cfg.Futures.Timeout, log)

	filters, err := market.FetchFuturesSymbol(ctx, futuresREST, cfg.Futures.Symbol)
	if err != nil {
		return report{}, fmt.Errorf("futures exchange info: %w", err)
	}
	spotQuote, err := market.FetchBestBid(ctx, spotREST, market.SpotBookTickerPath, cfg.Spot.Symbol)
	if err != nil {
		return report{}, fmt.Errorf("spot book ticker: %w", err)
	}
	futuresQuote, err := market.FetchBestBid(ctx, futuresREST, market.FuturesBookTickerPath, cfg.Futures.Symbol)
	if err != nil {
		return report{}, fmt.Errorf("futures book ticker: %w", err)
	}

	precision := filters.Precision()
	minQuote := app.EffectiveMinQuoteSize(cfg.Strategy.MinQuoteSize, filters.MinNotional)
	out := report{
		SpotSymbol:         cfg.Spot.Symbol,
		FuturesSymbol:      filters.Symbol,
		QuantityPrecision:  filters.QuantityPrecision,
		MinLotSize:         filters.MinLotSize,
		MinQuoteSize:       minQuote,
		MaxQuoteSize:       cfg.Strategy.MaxQuoteSize,
		FuturesMinBaseSize: strategy.FuturesOrderMinBaseSize(filters.MinLotSize, filters.MinNotional, futuresQuote.Price, precision),
		SpotBidPrice:       spotQuote.Price,
		FuturesBidPrice:    futuresQuote.Price,
		FuturesBidSize:     futuresQuote.Size,
	}
	if filters.MinNotional.Valid {
		minNotional := filters.MinNotional.Decimal
		out.MinNotional = &minNotional
	}

	sizing, err := strategy.NewSizingPolicy(strategy.NewPriceState(spotQuote, futuresQuote), minQuote, cfg.Strategy.MaxQuoteSize, precision, log)
	if err != nil {
		return report{}, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, sizingWait)
	defer cancel()
	price, size, err := sizing.DeduceSpotOrderParams(waitCtx)
	switch {
	case err == nil:
		notional := price.Mul(size)
		out.OrderPrice = &price
		out.OrderSize = &size
		out.OrderNotional = &notional
	case errors.Is(err, context.DeadlineExceeded):
		out.Note = "futures bid size is too small for min_quote_size; the hedger would wait for liquidity"
	default:
		return report{}, err
	}
	return out, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
