package market

import (
	"encoding/json"

	"spot-hedge-bot/internal/strategy"
)

// spotDepth is the spot partial book depth payload (<symbol>@depth5@100ms).
type spotDepth struct {
	LastUpdateID *int64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
}

// futuresDepth is the USD-M futures partial book depth payload.
type futuresDepth struct {
	Event  string     `json:"e"`
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
}

func decodeSpotDepth(msg json.RawMessage) (strategy.Quote, error) {
	var payload spotDepth
	if err := json.Unmarshal(msg, &payload); err != nil {
		return strategy.Quote{}, err
	}
	if payload.LastUpdateID == nil {
		return strategy.Quote{}, errNotBookUpdate
	}
	return topLevel(payload.Bids)
}

func decodeFuturesDepth(msg json.RawMessage) (strategy.Quote, error) {
	var payload futuresDepth
	if err := json.Unmarshal(msg, &payload); err != nil {
		return strategy.Quote{}, err
	}
	if payload.Event != "depthUpdate" {
		return strategy.Quote{}, errNotBookUpdate
	}
	return topLevel(payload.Bids)
}
