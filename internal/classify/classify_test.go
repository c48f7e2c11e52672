package classify

import (
	"testing"

	"chronicreport/internal/baseline"
	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
	"chronicreport/internal/roster"
)

func testMatcher(t *testing.T) *identity.Matcher {
	t.Helper()
	m, err := identity.NewMatcher(identity.MatcherOptions{
		TestPrefix:   "CID_TEST",
		MediaPattern: `^VID-\d+`,
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m
}

func priorStore(records ...domain.ClassificationRecord) *baseline.Store {
	return baseline.New(&domain.Snapshot{Period: domain.NewPeriod(2025, 5), Records: records}, nil, nil)
}

func TestFrozenStatusIgnoresCurrentMetrics(t *testing.T) {
	store := priorStore(domain.ClassificationRecord{CircuitID: "A1", Category: domain.CategoryConsistent})
	m := New(Settings{Matcher: testMatcher(t)}, store, roster.Roster{})

	res := m.Classify([]domain.CircuitMetrics{{CircuitID: "A1", RollingTickets: 0, MonthsWithIncidents: 5}})
	rec := res.ByID()["A1"]
	if rec.Category != domain.CategoryConsistent || rec.Source != domain.StatusBaselineFrozen {
		t.Fatalf("expected frozen Consistent, got %+v", rec)
	}
}

func TestFrozenCircuitWithoutCurrentDataStillReported(t *testing.T) {
	store := priorStore(domain.ClassificationRecord{CircuitID: "A1", Category: domain.CategoryInconsistent})
	res := New(Settings{}, store, roster.Roster{}).Classify(nil)
	if len(res.Records) != 1 || res.Records[0].Category != domain.CategoryInconsistent {
		t.Fatalf("expected frozen circuit in output, got %+v", res.Records)
	}
	if res.Counts.TotalChronic != 1 {
		t.Fatalf("expected total chronic 1, got %d", res.Counts.TotalChronic)
	}
}

func TestPendingPromotion(t *testing.T) {
	tests := []struct {
		name    string
		rolling float64
		want    domain.Category
	}{
		{"above threshold", 7, domain.CategoryConsistent},
		{"at threshold", 6, domain.CategoryConsistent},
		{"below threshold", 4, domain.CategoryInconsistent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := priorStore(domain.ClassificationRecord{CircuitID: "N1", Category: domain.CategoryNewChronic})
			m := New(Settings{}, store, roster.Roster{})
			rec := m.Classify([]domain.CircuitMetrics{{CircuitID: "N1", RollingTickets: tt.rolling, MonthsWithIncidents: 3}}).ByID()["N1"]
			if rec.Category != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, rec.Category)
			}
			if !rec.Promoted || rec.Source != domain.StatusRuleComputed {
				t.Fatalf("expected promoted rule-computed record, got %+v", rec)
			}
		})
	}
}

func TestConsistentThresholdConfigurable(t *testing.T) {
	store := priorStore(domain.ClassificationRecord{CircuitID: "N1", Category: domain.CategoryNewChronic})
	m := New(Settings{ConsistentThreshold: 8}, store, roster.Roster{})
	rec := m.Classify([]domain.CircuitMetrics{{CircuitID: "N1", RollingTickets: 7}}).ByID()["N1"]
	if rec.Category != domain.CategoryInconsistent {
		t.Fatalf("expected Inconsistent under threshold 8, got %s", rec.Category)
	}
}

func TestNewChronicDetection(t *testing.T) {
	r := roster.New(roster.File{Regional: []string{"R1"}, TrackedChronic: []string{"T1"}}, nil)
	metrics := []domain.CircuitMetrics{
		{CircuitID: "A1", MonthsWithIncidents: 3},
		{CircuitID: "B2", MonthsWithIncidents: 2},
		{CircuitID: "R1", MonthsWithIncidents: 4},
		{CircuitID: "T1", MonthsWithIncidents: 4, RollingTickets: 9},
	}

	res := New(Settings{}, nil, r).Classify(metrics).ByID()
	if res["A1"].Category != domain.CategoryNewChronic {
		t.Fatalf("A1: expected New-Chronic, got %s", res["A1"].Category)
	}
	if res["B2"].Category != domain.CategoryNotChronic {
		t.Fatalf("B2: expected Not-Chronic, got %s", res["B2"].Category)
	}
	if res["R1"].Category != domain.CategoryNewChronic || !res["R1"].Regional {
		t.Fatalf("R1: expected regional New-Chronic without exclusion, got %+v", res["R1"])
	}
	if res["T1"].Category != domain.CategoryConsistent {
		t.Fatalf("T1: tracked circuit should use rolling rule, got %s", res["T1"].Category)
	}
}

func TestExcludeRegionalOnlyAffectsNewChronicRule(t *testing.T) {
	r := roster.New(roster.File{Regional: []string{"R1", "R2"}}, nil)
	store := priorStore(domain.ClassificationRecord{CircuitID: "R2", Category: domain.CategoryConsistent})
	res := New(Settings{ExcludeRegional: true}, store, r).Classify([]domain.CircuitMetrics{
		{CircuitID: "R1", MonthsWithIncidents: 4},
		{CircuitID: "R2", MonthsWithIncidents: 4},
	}).ByID()

	if res["R1"].Category != domain.CategoryNotChronic {
		t.Fatalf("R1: excluded regional must not become New-Chronic, got %s", res["R1"].Category)
	}
	if res["R2"].Category != domain.CategoryConsistent || res["R2"].Source != domain.StatusBaselineFrozen {
		t.Fatalf("R2: frozen regional must keep status, got %+v", res["R2"])
	}
}

func TestMediaAndWatch(t *testing.T) {
	r := roster.New(roster.File{Watch30: []string{"W1"}, Watch60: []string{"W2"}}, nil)
	res := New(Settings{Matcher: testMatcher(t)}, nil, r).Classify([]domain.CircuitMetrics{
		{CircuitID: "VID-1583", MonthsWithIncidents: 1},
		{CircuitID: "X9", RawIDs: []string{"VID-22 backup"}},
		{CircuitID: "W1", MonthsWithIncidents: 1},
	})
	byID := res.ByID()

	if byID["VID-1583"].Category != domain.CategoryMedia {
		t.Fatalf("expected media by canonical id, got %s", byID["VID-1583"].Category)
	}
	if byID["X9"].Category != domain.CategoryMedia {
		t.Fatalf("expected media by raw id, got %s", byID["X9"].Category)
	}
	if byID["W1"].Category != domain.CategoryWatch30 || byID["W1"].Watch != domain.Watch30 {
		t.Fatalf("expected Watch30, got %+v", byID["W1"])
	}
	if byID["W2"].Category != domain.CategoryWatch60 {
		t.Fatalf("watch-only roster circuit should be reported as Watch60, got %s", byID["W2"].Category)
	}

	if res.Counts.TotalChronic != 0 {
		t.Fatalf("media and watch circuits must not count as chronic, got %d", res.Counts.TotalChronic)
	}
	if res.Counts.Media != 2 || res.Counts.Watch30 != 1 || res.Counts.Watch60 != 1 {
		t.Fatalf("unexpected counts %+v", res.Counts)
	}
}

func TestHeadlineCountsChronicUnion(t *testing.T) {
	store := priorStore(
		domain.ClassificationRecord{CircuitID: "C1", Category: domain.CategoryConsistent},
		domain.ClassificationRecord{CircuitID: "I1", Category: domain.CategoryInconsistent},
		domain.ClassificationRecord{CircuitID: "M1", Category: domain.CategoryMedia},
	)
	res := New(Settings{}, store, roster.Roster{}).Classify([]domain.CircuitMetrics{
		{CircuitID: "N1", MonthsWithIncidents: 3},
	})
	if res.Counts.TotalChronic != 3 {
		t.Fatalf("expected Consistent+Inconsistent+New-Chronic = 3, got %d", res.Counts.TotalChronic)
	}
}

func TestTestCircuitsFromRosterExcluded(t *testing.T) {
	m := testMatcher(t)
	r := roster.New(roster.File{TrackedChronic: []string{"CID_TEST_01"}}, m)
	store := baseline.New(&domain.Snapshot{Records: []domain.ClassificationRecord{
		{CircuitID: "CID_TEST_02", Category: domain.CategoryConsistent},
	}}, nil, m)
	res := New(Settings{Matcher: m}, store, r).Classify(nil)
	if len(res.Records) != 0 {
		t.Fatalf("test circuits must not be classified, got %+v", res.Records)
	}
}
