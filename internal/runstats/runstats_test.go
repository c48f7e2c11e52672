package runstats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

func TestWriteTextfileAfterSuccess(t *testing.T) {
	m := New()
	res := &engine.Result{
		Circuits: []engine.CircuitReport{
			{CircuitID: "A", Classification: domain.ClassificationRecord{Category: domain.CategoryConsistent}},
			{CircuitID: "B", Classification: domain.ClassificationRecord{Category: domain.CategoryConsistent}},
			{CircuitID: "C", Classification: domain.ClassificationRecord{Category: domain.CategoryMedia}},
		},
		Counts:   domain.CategoryCounts{TotalChronic: 2, Consistent: 2, Media: 1},
		Metadata: engine.Metadata{DuplicatesRemoved: 4, TestRowsFiltered: 1},
		Warnings: []domain.Warning{
			domain.Warnf(domain.WarnMissingBaseline, "none"),
			domain.Warnf(domain.WarnImpossibleAvailability, "a"),
			domain.Warnf(domain.WarnImpossibleAvailability, "b"),
		},
	}
	m.ObserveSuccess(res, 1500*time.Millisecond, time.Unix(1751436000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "chronic_report.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	wants := []string{
		`chronic_report_circuits{category="Consistent"} 2`,
		`chronic_report_circuits{category="Not-Chronic"} 0`,
		`chronic_report_total_chronic 2`,
		`chronic_report_warnings{kind="impossible_availability"} 2`,
		`chronic_report_duplicates_removed 4`,
		`chronic_report_baseline_found 0`,
		`chronic_report_run_duration_seconds 1.5`,
		`chronic_report_last_success_timestamp_seconds 1.751436e+09`,
		`chronic_report_runs_total{outcome="success"} 1`,
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Fatalf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestWarningsResetBetweenRuns(t *testing.T) {
	m := New()
	m.ObserveSuccess(&engine.Result{Warnings: []domain.Warning{domain.Warnf(domain.WarnBlankPeriods, "x")}}, time.Second, time.Now())
	m.ObserveSuccess(&engine.Result{}, time.Second, time.Now())
	m.ObserveFailure(time.Second)

	path := filepath.Join(t.TempDir(), "run.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, "blank_periods") {
		t.Fatalf("stale warning kind should be cleared:\n%s", out)
	}
	if !strings.Contains(out, `chronic_report_runs_total{outcome="success"} 2`) || !strings.Contains(out, `chronic_report_runs_total{outcome="failure"} 1`) {
		t.Fatalf("unexpected run counters:\n%s", out)
	}
}

func TestWriteTextfileDisabled(t *testing.T) {
	if err := New().WriteTextfile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}
