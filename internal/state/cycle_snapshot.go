package state

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const CycleSnapshotKey = "engine:last_cycle"

// CycleSnapshot is the most recent view of a trade cycle. A snapshot that is
// not Completed, or that carries Unhedged quantity, means the previous run
// stopped with spot exposure that was never sold on futures.
type CycleSnapshot struct {
	Cycle       uint64          `json:"cycle"`
	Stage       string          `json:"stage"`
	OrderID     string          `json:"order_id"`
	Price       decimal.Decimal `json:"price"`
	Size        decimal.Decimal `json:"size"`
	Filled      decimal.Decimal `json:"filled"`
	Hedged      decimal.Decimal `json:"hedged"`
	Unhedged    decimal.Decimal `json:"unhedged"`
	Completed   bool            `json:"completed"`
	UpdatedAtMS int64           `json:"updated_at_ms"`
}

// NeedsReconciliation reports whether the snapshot left exposure behind.
func (s CycleSnapshot) NeedsReconciliation() bool {
	if s.Unhedged.IsPositive() {
		return true
	}
	return s.OrderID != "" && !s.Completed && s.Filled.IsPositive()
}

func LoadCycleSnapshot(ctx context.Context, store Store) (CycleSnapshot, bool, error) {
	if store == nil {
		return CycleSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, CycleSnapshotKey)
	if err != nil {
		return CycleSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return CycleSnapshot{}, false, nil
	}
	var snapshot CycleSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return CycleSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveCycleSnapshot(ctx context.Context, store Store, snapshot CycleSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, CycleSnapshotKey, string(payload))
}
