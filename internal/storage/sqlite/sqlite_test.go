package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chronicreport/internal/baseline"
	"chronicreport/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chronic-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func testSnapshot(runID string, period domain.Period, created time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		RunID:     runID,
		Period:    period,
		CreatedAt: created,
		Records: []domain.ClassificationRecord{
			{CircuitID: "CID-1", Category: domain.CategoryConsistent, Source: domain.StatusRuleComputed, RollingTickets: 7, Regional: true},
			{CircuitID: "CID-2", Category: domain.CategoryWatch30, Watch: domain.Watch30},
		},
		Metrics: []domain.SnapshotMetrics{
			{CircuitID: "CID-1", TicketTotal: 7, OutageHours: 3.5, Availability: 99.2, MTBFDays: 12.5, MTBFDefined: true, Cost: 210},
		},
		Rankings: map[domain.Metric][]domain.RankEntry{
			domain.MetricTickets: {{CircuitID: "CID-1", Rank: 1, Value: 7}, {CircuitID: "CID-2", Rank: 2, Value: 1}},
			domain.MetricCost:    {{CircuitID: "CID-1", Rank: 1, Value: 210}},
		},
		Headline: domain.CategoryCounts{TotalChronic: 1, Consistent: 1, Watch30: 1},
	}
}

func TestLatestBeforeEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestBefore(context.Background(), domain.NewPeriod(2025, time.June))
	if !errors.Is(err, baseline.ErrNoPriorSnapshot) {
		t.Fatalf("expected ErrNoPriorSnapshot, got %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	created := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	if err := store.SaveSnapshot(ctx, testSnapshot("run-may", domain.NewPeriod(2025, time.May), created)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.LatestBefore(ctx, domain.NewPeriod(2025, time.June))
	if err != nil {
		t.Fatalf("LatestBefore: %v", err)
	}
	if got.RunID != "run-may" || got.Period != domain.NewPeriod(2025, time.May) || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected snapshot header: %+v", got)
	}
	if len(got.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got.Records))
	}
	first := got.Records[0]
	if first.CircuitID != "CID-1" || first.Category != domain.CategoryConsistent || !first.Regional || first.RollingTickets != 7 {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if got.Records[1].Watch != domain.Watch30 {
		t.Fatalf("expected watch level to survive, got %+v", got.Records[1])
	}
	if len(got.Metrics) != 1 || !got.Metrics[0].MTBFDefined || got.Metrics[0].Availability != 99.2 {
		t.Fatalf("unexpected metrics: %+v", got.Metrics)
	}
	tickets := got.Rankings[domain.MetricTickets]
	if len(tickets) != 2 || tickets[0].CircuitID != "CID-1" || tickets[1].Rank != 2 {
		t.Fatalf("unexpected ticket ranking: %+v", tickets)
	}
	if got.Headline.TotalChronic != 1 || got.Headline.Watch30 != 1 {
		t.Fatalf("unexpected headline: %+v", got.Headline)
	}
}

func TestLatestBeforeIsStrictAndPrefersNewestRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 5, 2, 6, 0, 0, 0, time.UTC)

	snaps := []*domain.Snapshot{
		testSnapshot("run-apr", domain.NewPeriod(2025, time.April), base),
		testSnapshot("run-may-1", domain.NewPeriod(2025, time.May), base.AddDate(0, 1, 0)),
		testSnapshot("run-may-2", domain.NewPeriod(2025, time.May), base.AddDate(0, 1, 1)),
		testSnapshot("run-jun", domain.NewPeriod(2025, time.June), base.AddDate(0, 2, 0)),
	}
	for _, s := range snaps {
		if err := store.SaveSnapshot(ctx, s); err != nil {
			t.Fatalf("SaveSnapshot %s: %v", s.RunID, err)
		}
	}

	tests := []struct {
		period domain.Period
		want   string
	}{
		{domain.NewPeriod(2025, time.June), "run-may-2"},
		{domain.NewPeriod(2025, time.May), "run-apr"},
		{domain.NewPeriod(2026, time.January), "run-jun"},
	}
	for _, tt := range tests {
		got, err := store.LatestBefore(ctx, tt.period)
		if err != nil {
			t.Fatalf("LatestBefore(%s): %v", tt.period, err)
		}
		if got.RunID != tt.want {
			t.Fatalf("LatestBefore(%s) = %s, want %s", tt.period, got.RunID, tt.want)
		}
	}

	if _, err := store.LatestBefore(ctx, domain.NewPeriod(2025, time.April)); !errors.Is(err, baseline.ErrNoPriorSnapshot) {
		t.Fatalf("expected no snapshot before April, got %v", err)
	}

	history, err := store.History(ctx, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].RunID != "run-jun" || history[1].RunID != "run-may-2" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].Circuits != 2 {
		t.Fatalf("expected circuit count 2, got %d", history[0].Circuits)
	}
}

func TestSaveSnapshotRejectsIncomplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SaveSnapshot(ctx, &domain.Snapshot{RunID: "x"}); err == nil {
		t.Fatalf("expected error for missing period")
	}
	if err := store.SaveSnapshot(ctx, &domain.Snapshot{Period: domain.NewPeriod(2025, time.May)}); err == nil {
		t.Fatalf("expected error for missing run id")
	}
	if err := store.SaveSnapshot(ctx, testSnapshot("dup", domain.NewPeriod(2025, time.May), time.Now())); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, testSnapshot("dup", domain.NewPeriod(2025, time.May), time.Now())); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}
