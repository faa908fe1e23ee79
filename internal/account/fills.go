package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/binance/ws"
	"spot-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultKeepAliveInterval = 30 * time.Minute
	fillBuffer               = 1024
)

// executionReport is the spot user data stream order update.
type executionReport struct {
	Event               string      `json:"e"`
	Symbol              string      `json:"s"`
	ClientOrderID       string      `json:"c"`
	OrderID             json.Number `json:"i"`
	OrderQty            string      `json:"q"`
	ExecutionType       string      `json:"x"`
	Status              string      `json:"X"`
	LastFilledQty       string      `json:"l"`
	CumulativeFilledQty string      `json:"z"`
}

// FillStream delivers spot execution reports in exchange order. Events are
// never dropped: a full buffer blocks the websocket reader.
type FillStream struct {
	rest              *rest.Client
	wsBaseURL         string
	reconnectDelay    time.Duration
	pingInterval      time.Duration
	keepAliveInterval time.Duration
	log               *zap.Logger

	fills chan strategy.FillEvent
}

func NewFillStream(restClient *rest.Client, wsBaseURL string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *FillStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &FillStream{
		rest:              restClient,
		wsBaseURL:         strings.TrimRight(wsBaseURL, "/"),
		reconnectDelay:    reconnectDelay,
		pingInterval:      pingInterval,
		keepAliveInterval: defaultKeepAliveInterval,
		log:               log.With(zap.String("feed", "user")),
		fills:             make(chan strategy.FillEvent, fillBuffer),
	}
}

func (s *FillStream) Fills() <-chan strategy.FillEvent {
	return s.fills
}

// Start opens the private stream. An error here means the stream could not
// be established at all (for example bad credentials) and is fatal.
func (s *FillStream) Start(ctx context.Context) error {
	if s.rest == nil {
		return errors.New("rest client is required")
	}
	listenKey, err := createListenKey(ctx, s.rest)
	if err != nil {
		return fmt.Errorf("start user data stream: %w", err)
	}
	client := ws.New(s.wsBaseURL+"/"+listenKey, s.reconnectDelay, s.pingInterval, s.log)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect user data stream: %w", err)
	}
	s.log.Info("user data stream connected")
	go s.keepAlive(ctx, listenKey)
	go func() {
		defer close(s.fills)
		if err := client.Run(ctx, func(msg json.RawMessage) { s.handleMessage(ctx, msg) }); err != nil && ctx.Err() == nil {
			s.log.Error("user data stream stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *FillStream) keepAlive(ctx context.Context, listenKey string) {
	if s.keepAliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := keepAliveListenKey(ctx, s.rest, listenKey); err != nil {
				s.log.Warn("listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

func (s *FillStream) handleMessage(ctx context.Context, msg json.RawMessage) {
	fill, ok, err := parseExecutionReport(msg)
	if err != nil {
		s.log.Warn("execution report decode failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	select {
	case s.fills <- fill:
	case <-ctx.Done():
	}
}

// parseExecutionReport returns false for events other than executionReport.
func parseExecutionReport(msg json.RawMessage) (strategy.FillEvent, bool, error) {
	var report executionReport
	if err := json.Unmarshal(msg, &report); err != nil {
		return strategy.FillEvent{}, false, err
	}
	if report.Event != "executionReport" {
		return strategy.FillEvent{}, false, nil
	}
	orderID := report.OrderID.String()
	if _, err := strconv.ParseInt(orderID, 10, 64); err != nil {
		return strategy.FillEvent{}, false, fmt.Errorf("order id %q: %w", orderID, err)
	}
	last, err := parseQty(report.LastFilledQty)
	if err != nil {
		return strategy.FillEvent{}, false, fmt.Errorf("order %s last filled qty: %w", orderID, err)
	}
	cumulative, err := parseQty(report.CumulativeFilledQty)
	if err != nil {
		return strategy.FillEvent{}, false, fmt.Errorf("order %s cumulative qty: %w", orderID, err)
	}
	qty, err := parseQty(report.OrderQty)
	if err != nil {
		return strategy.FillEvent{}, false, fmt.Errorf("order %s qty: %w", orderID, err)
	}
	return strategy.FillEvent{
		OrderID:             orderID,
		Status:              strategy.OrderStatus(report.Status),
		LastFilledQty:       last,
		CumulativeFilledQty: cumulative,
		OrderQty:            qty,
	}, true, nil
}

func parseQty(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
