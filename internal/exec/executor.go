package exec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	spotOrderPath    = "/api/v3/order"
	futuresOrderPath = "/fapi/v1/order"

	// JournalPrefix namespaces order journal keys in the state store.
	JournalPrefix = "cloid:"
)

type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

type Order struct {
	Market        Market
	Symbol        string
	Side          string
	Type          string
	Size          decimal.Decimal
	LimitPrice    decimal.Decimal
	ClientOrderID string
}

// Placement is the exchange acknowledgement of an order.
type Placement struct {
	OrderID     string
	ExecutedQty decimal.Decimal
}

type RestClient interface {
	DoSigned(ctx context.Context, method, path string, params url.Values, out any) error
}

type orderResponse struct {
	OrderID     json.Number `json:"orderId"`
	Status      string      `json:"status"`
	OrigQty     string      `json:"origQty"`
	ExecutedQty string      `json:"executedQty"`
}

const (
	journalPending = "pending"
	journalPlaced  = "placed"

	// Binance "Order does not exist."
	codeUnknownOrder = -2013
)

type journalEntry struct {
	State       string          `json:"state"`
	OrderID     string          `json:"order_id,omitempty"`
	ExecutedQty decimal.Decimal `json:"executed_qty"`
}

// Executor places single-attempt orders on both markets. Spot orders carry a
// caller-supplied client order id that is journaled before submission; a
// repeated id either returns the journaled acknowledgement or, when the earlier
// attempt never confirmed, asks the venue for the order before placing again.
type Executor struct {
	spot          RestClient
	futures       RestClient
	spotSymbol    string
	futuresSymbol string
	store         state.Store
	log           *zap.Logger
	newID         func() string

	// pending tracks unconfirmed client ids when no store is configured.
	mu      sync.Mutex
	pending map[string]struct{}
}

func New(spot, futures RestClient, spotSymbol, futuresSymbol string, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		spot:          spot,
		futures:       futures,
		spotSymbol:    strings.ToUpper(spotSymbol),
		futuresSymbol: strings.ToUpper(futuresSymbol),
		store:         store,
		log:           log,
		newID:         uuid.NewString,
		pending:       make(map[string]struct{}),
	}
}

// SpotLimitBuy places a GTC limit buy and returns the exchange order id.
// Retrying with the same clientOrderID never creates a second order.
func (e *Executor) SpotLimitBuy(ctx context.Context, clientOrderID string, size, price decimal.Decimal) (string, error) {
	if clientOrderID == "" {
		clientOrderID = e.newID()
	}
	placement, err := e.PlaceOrder(ctx, Order{
		Market:        MarketSpot,
		Symbol:        e.spotSymbol,
		Side:          "BUY",
		Type:          "LIMIT",
		Size:          size,
		LimitPrice:    price,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return "", err
	}
	return placement.OrderID, nil
}

// FuturesMarketSell places a market sell and returns the order id and the
// executed quantity. Hedges are never retried in place, so they skip the journal.
func (e *Executor) FuturesMarketSell(ctx context.Context, size decimal.Decimal) (string, decimal.Decimal, error) {
	placement, err := e.place(ctx, Order{
		Market:        MarketFutures,
		Symbol:        e.futuresSymbol,
		Side:          "SELL",
		Type:          "MARKET",
		Size:          size,
		ClientOrderID: e.newID(),
	})
	if err != nil {
		return "", decimal.Zero, err
	}
	return placement.OrderID, placement.ExecutedQty, nil
}

func (e *Executor) PlaceOrder(ctx context.Context, order Order) (Placement, error) {
	if order.ClientOrderID == "" {
		return e.place(ctx, order)
	}
	key := JournalPrefix + order.ClientOrderID
	entry, ok, err := e.readJournal(ctx, key)
	if err != nil {
		return Placement{}, err
	}
	switch {
	case ok && entry.State == journalPlaced:
		return Placement{OrderID: entry.OrderID, ExecutedQty: entry.ExecutedQty}, nil
	case ok:
		placement, found, err := e.lookup(ctx, order)
		if err != nil {
			return Placement{}, err
		}
		if found {
			e.log.Info("recovered order from earlier attempt",
				zap.String("market", string(order.Market)),
				zap.String("order_id", placement.OrderID),
				zap.String("client_order_id", order.ClientOrderID),
			)
			e.writeJournal(ctx, key, journalEntry{State: journalPlaced, OrderID: placement.OrderID, ExecutedQty: placement.ExecutedQty})
			return placement, nil
		}
	default:
		e.writeJournal(ctx, key, journalEntry{State: journalPending})
	}
	placement, err := e.place(ctx, order)
	if err != nil {
		if rejected(err) {
			e.clearJournal(ctx, key)
		}
		return Placement{}, err
	}
	e.writeJournal(ctx, key, journalEntry{State: journalPlaced, OrderID: placement.OrderID, ExecutedQty: placement.ExecutedQty})
	return placement, nil
}

func (e *Executor) readJournal(ctx context.Context, key string) (journalEntry, bool, error) {
	if e.store == nil {
		e.mu.Lock()
		_, ok := e.pending[key]
		e.mu.Unlock()
		return journalEntry{State: journalPending}, ok, nil
	}
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return journalEntry{}, false, err
	}
	var entry journalEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return journalEntry{}, false, fmt.Errorf("decode journal entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (e *Executor) writeJournal(ctx context.Context, key string, entry journalEntry) {
	if e.store == nil {
		e.mu.Lock()
		if entry.State == journalPending {
			e.pending[key] = struct{}{}
		} else {
			delete(e.pending, key)
		}
		e.mu.Unlock()
		return
	}
	payload, err := json.Marshal(entry)
	if err == nil {
		err = e.store.Set(ctx, key, string(payload))
	}
	if err != nil {
		e.log.Warn("failed to journal order", zap.String("key", key), zap.String("state", entry.State), zap.Error(err))
	}
}

// clearJournal forgets an attempt the venue rejected outright.
func (e *Executor) clearJournal(ctx context.Context, key string) {
	if e.store == nil {
		e.mu.Lock()
		delete(e.pending, key)
		e.mu.Unlock()
		return
	}
	if err := e.store.Delete(ctx, key); err != nil {
		e.log.Warn("failed to clear journal entry", zap.String("key", key), zap.Error(err))
	}
}

// lookup queries the venue for an order by client id.
func (e *Executor) lookup(ctx context.Context, order Order) (Placement, bool, error) {
	client, path, err := e.endpoint(order.Market)
	if err != nil {
		return Placement{}, false, err
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("origClientOrderId", order.ClientOrderID)
	var resp orderResponse
	if err := client.DoSigned(ctx, http.MethodGet, path, params, &resp); err != nil {
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder {
			return Placement{}, false, nil
		}
		return Placement{}, false, fmt.Errorf("query %s order %s: %w", order.Market, order.ClientOrderID, err)
	}
	placement, err := placementFrom(resp)
	if err != nil {
		return Placement{}, false, err
	}
	return placement, true, nil
}

func (e *Executor) place(ctx context.Context, order Order) (Placement, error) {
	client, path, params, err := e.request(order)
	if err != nil {
		return Placement{}, err
	}
	var resp orderResponse
	if err := client.DoSigned(ctx, http.MethodPost, path, params, &resp); err != nil {
		return Placement{}, fmt.Errorf("%s %s order: %w", order.Market, strings.ToLower(order.Type), err)
	}
	placement, err := placementFrom(resp)
	if err != nil {
		return Placement{}, err
	}
	e.log.Debug("order placed",
		zap.String("market", string(order.Market)),
		zap.String("order_id", placement.OrderID),
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("status", resp.Status),
	)
	return placement, nil
}

// rejected reports whether the venue refused the order outright. A 5xx leaves
// the execution status unknown.
func rejected(err error) bool {
	var apiErr *rest.APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

func placementFrom(resp orderResponse) (Placement, error) {
	orderID := resp.OrderID.String()
	if orderID == "" {
		return Placement{}, errors.New("empty order id")
	}
	executed, err := executedQty(resp)
	if err != nil {
		return Placement{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	return Placement{OrderID: orderID, ExecutedQty: executed}, nil
}

func (e *Executor) request(order Order) (RestClient, string, url.Values, error) {
	if !order.Size.IsPositive() {
		return nil, "", nil, errors.New("order size must be positive")
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side)
	params.Set("type", order.Type)
	params.Set("quantity", order.Size.String())
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}
	if order.Type == "LIMIT" {
		if !order.LimitPrice.IsPositive() {
			return nil, "", nil, errors.New("limit price must be positive")
		}
		params.Set("price", order.LimitPrice.String())
		params.Set("timeInForce", "GTC")
	}
	client, path, err := e.endpoint(order.Market)
	if err != nil {
		return nil, "", nil, err
	}
	if order.Market == MarketSpot {
		params.Set("newOrderRespType", "ACK")
	} else {
		params.Set("newOrderRespType", "RESULT")
	}
	return client, path, params, nil
}

func (e *Executor) endpoint(market Market) (RestClient, string, error) {
	switch market {
	case MarketSpot:
		if e.spot == nil {
			return nil, "", errors.New("spot client is required")
		}
		return e.spot, spotOrderPath, nil
	case MarketFutures:
		if e.futures == nil {
			return nil, "", errors.New("futures client is required")
		}
		return e.futures, futuresOrderPath, nil
	default:
		return nil, "", fmt.Errorf("unknown market %q", market)
	}
}

// executedQty trusts the venue's executedQty only once the order is terminal.
// A market order acknowledged while still working reports its original size.
func executedQty(resp orderResponse) (decimal.Decimal, error) {
	orig, err := parseQty(resp.OrigQty)
	if err != nil {
		return decimal.Zero, err
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case "FILLED", "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH", "REJECTED":
		if strings.TrimSpace(resp.ExecutedQty) == "" {
			return orig, nil
		}
		return parseQty(resp.ExecutedQty)
	default:
		return orig, nil
	}
}

func parseQty(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
