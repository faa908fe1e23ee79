package state

import (
	"context"
	"testing"
	"time"
)

type recordingPruner struct {
	prefix string
	cutoff time.Time
	calls  int
}

func (r *recordingPruner) DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int64, error) {
	r.calls++
	r.prefix = prefix
	r.cutoff = cutoff
	return 3, nil
}

func TestPruneExpiredComputesCutoff(t *testing.T) {
	p := &recordingPruner{}
	now := time.UnixMilli(1_700_000_000_000)
	removed, err := PruneExpired(context.Background(), p, "cloid:", time.Hour, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if p.prefix != "cloid:" {
		t.Fatalf("unexpected prefix %q", p.prefix)
	}
	if !p.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected cutoff %v", p.cutoff)
	}
}

func TestPruneExpiredSkipsWithoutRetention(t *testing.T) {
	p := &recordingPruner{}
	removed, err := PruneExpired(context.Background(), p, "cloid:", 0, time.Now())
	if err != nil || removed != 0 || p.calls != 0 {
		t.Fatalf("expected no-op, got removed=%d calls=%d err=%v", removed, p.calls, err)
	}
}

func TestPruneExpiredRequiresPrefix(t *testing.T) {
	if _, err := PruneExpired(context.Background(), &recordingPruner{}, "", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty prefix")
	}
}
