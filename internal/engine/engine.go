// Package engine runs one reporting period end to end: aggregate, classify,
// compare, and build the snapshot the next run will use as its baseline.
package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"chronicreport/internal/aggregate"
	"chronicreport/internal/baseline"
	"chronicreport/internal/classify"
	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
	"chronicreport/internal/roster"
	"chronicreport/internal/trend"
)

// ErrMissingColumns aborts a run before aggregation when a required field is
// entirely absent from an extract after alias resolution.
var ErrMissingColumns = errors.New("required columns missing")

type Settings struct {
	ConsistentThreshold int
	Core                domain.Thresholds
	Trend               domain.Thresholds
	ExcludeRegional     bool
	ShowIndicators      bool
	TopN                int
	WindowMonths        int
	DaysPerMonth        float64
	Matcher             *identity.Matcher
}

type Input struct {
	Period   domain.Period
	Impacts  domain.Batch
	Counts   domain.Batch
	Settings Settings
	// Baseline must be loaded before the run starts and is only read here.
	Baseline         *baseline.Store
	BaselineWarnings []domain.Warning
	Roster           roster.Roster
	RunID            string
	Now              time.Time
}

const (
	IndicatorChronic  = "C"
	IndicatorRegional = "R"
	IndicatorBoth     = "C/R"
)

// CircuitReport merges identity, metrics and classification for one circuit.
type CircuitReport struct {
	CircuitID      string
	Vendor         string
	RawIDs         []string
	Metrics        domain.CircuitMetrics
	Classification domain.ClassificationRecord
	// Indicator is empty unless indicators are enabled.
	Indicator string
}

type Metadata struct {
	RunID               string            `json:"run_id"`
	Period              domain.Period     `json:"period"`
	GeneratedAt         time.Time         `json:"generated_at"`
	ConsistentThreshold int               `json:"consistent_threshold"`
	CoreThresholds      domain.Thresholds `json:"core_thresholds"`
	TrendThresholds     domain.Thresholds `json:"trend_thresholds"`
	ExcludeRegional     bool              `json:"exclude_regional"`
	ShowIndicators      bool              `json:"show_indicators"`
	TopN                int               `json:"top_n"`
	WindowMonths        int               `json:"window_months"`
	PotentialHours      float64           `json:"potential_hours"`
	DurationUnit        string            `json:"duration_unit,omitempty"`
	DuplicatesRemoved   int               `json:"duplicates_removed"`
	DedupeSkipped       bool              `json:"dedupe_skipped"`
	TestRowsFiltered    int               `json:"test_rows_filtered"`
	BlankPeriods        int               `json:"blank_periods"`
	NonNumericTickets   int               `json:"non_numeric_tickets"`
	BaselineFound       bool              `json:"baseline_found"`
	BaselinePeriod      domain.Period     `json:"baseline_period"`
	BaselineRunID       string            `json:"baseline_run_id,omitempty"`
	CircuitCount        int               `json:"circuit_count"`
	// InputDigests is filled by the caller that read the input files.
	InputDigests map[string]string `json:"input_digests,omitempty"`
}

type Result struct {
	Circuits []CircuitReport
	Counts   domain.CategoryCounts
	// Rankings holds the worst-N list per metric.
	Rankings map[domain.Metric][]domain.RankEntry
	// Trend is gated by the narration thresholds, Headline by the core set.
	Trend    domain.TrendReport
	Headline domain.TrendReport
	Metadata Metadata
	Warnings []domain.Warning
	Snapshot *domain.Snapshot
}

func (r *Result) Circuit(id string) (CircuitReport, bool) {
	for _, c := range r.Circuits {
		if c.CircuitID == id {
			return c, true
		}
	}
	return CircuitReport{}, false
}

// Run either returns a complete result or an error and nothing else.
func Run(in Input) (*Result, error) {
	if in.Period.IsZero() {
		return nil, fmt.Errorf("reporting period is required")
	}
	if err := checkFields(in.Impacts, in.Counts); err != nil {
		return nil, err
	}
	s := in.Settings
	if s.TopN <= 0 {
		s.TopN = 5
	}
	store := in.Baseline
	if store == nil {
		store = baseline.Empty()
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	agg := aggregate.Aggregate(in.Impacts, in.Counts, aggregate.Options{
		Period:       in.Period,
		WindowMonths: s.WindowMonths,
		DaysPerMonth: s.DaysPerMonth,
		Matcher:      s.Matcher,
	})

	machine := classify.New(classify.Settings{
		ConsistentThreshold: s.ConsistentThreshold,
		ExcludeRegional:     s.ExcludeRegional,
		Matcher:             s.Matcher,
		TestCircuits:        toSet(agg.TestCircuits),
	}, store, in.Roster)
	classified := machine.Classify(agg.Circuits)

	top := aggregate.TopN(agg.Rankings, s.TopN)
	opts := trend.Options{TopN: s.TopN}
	narration := trend.Compare(store, in.Period, agg.Rankings, classified.Counts, s.Trend, opts)
	headline := trend.Compare(store, in.Period, agg.Rankings, classified.Counts, s.Core, opts)

	metricsByID := agg.ByID()
	res := &Result{
		Counts:   classified.Counts,
		Rankings: top,
		Trend:    narration,
		Headline: headline,
	}
	for _, rec := range classified.Records {
		m, ok := metricsByID[rec.CircuitID]
		if !ok {
			m = domain.CircuitMetrics{CircuitID: rec.CircuitID}
		}
		cr := CircuitReport{
			CircuitID:      rec.CircuitID,
			Vendor:         m.Vendor,
			RawIDs:         m.RawIDs,
			Metrics:        m,
			Classification: rec,
		}
		if s.ShowIndicators {
			cr.Indicator = Indicator(rec)
		}
		res.Circuits = append(res.Circuits, cr)
	}

	res.Warnings = append(res.Warnings, in.BaselineWarnings...)
	res.Warnings = append(res.Warnings, agg.Warnings...)

	res.Metadata = Metadata{
		RunID:               runID,
		Period:              in.Period,
		GeneratedAt:         now,
		ConsistentThreshold: machineThreshold(s.ConsistentThreshold),
		CoreThresholds:      s.Core,
		TrendThresholds:     s.Trend,
		ExcludeRegional:     s.ExcludeRegional,
		ShowIndicators:      s.ShowIndicators,
		TopN:                s.TopN,
		WindowMonths:        windowOrDefault(s.WindowMonths),
		PotentialHours:      agg.PotentialHours,
		DurationUnit:        string(agg.DurationUnit),
		DuplicatesRemoved:   agg.DuplicatesRemoved,
		DedupeSkipped:       agg.DedupeSkipped,
		TestRowsFiltered:    agg.TestRowsFiltered,
		BlankPeriods:        agg.BlankPeriods,
		NonNumericTickets:   agg.NonNumericTickets,
		BaselineFound:       store.Found(),
		BaselinePeriod:      store.Period(),
		BaselineRunID:       store.RunID(),
		CircuitCount:        len(res.Circuits),
	}
	res.Snapshot = buildSnapshot(runID, in.Period, now, classified, agg)

	log.Printf("engine: period=%s run=%s circuits=%d chronic=%d dedup_removed=%d test_rows=%d warnings=%d",
		in.Period, runID, len(res.Circuits), res.Counts.TotalChronic, agg.DuplicatesRemoved, agg.TestRowsFiltered, len(res.Warnings))
	return res, nil
}

// Indicator returns C for chronic, R for regional and C/R for both.
func Indicator(rec domain.ClassificationRecord) string {
	chronic := rec.Category.IsChronic()
	switch {
	case chronic && rec.Regional:
		return IndicatorBoth
	case chronic:
		return IndicatorChronic
	case rec.Regional:
		return IndicatorRegional
	}
	return ""
}

func checkFields(impacts, counts domain.Batch) error {
	var missing []string
	need := func(source string, b domain.Batch, f domain.Field) {
		if !b.Fields.Has(f) {
			missing = append(missing, source+"."+f.String())
		}
	}
	need("impacts", impacts, domain.FieldCircuitID)
	need("impacts", impacts, domain.FieldTicketCount)
	if !impacts.Fields.Has(domain.FieldDuration) && !impacts.Fields.Has(domain.FieldOutageHours) {
		missing = append(missing, "impacts.outage_duration|outage_hours")
	}
	need("counts", counts, domain.FieldCircuitID)
	need("counts", counts, domain.FieldMonthsChronic)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

func buildSnapshot(runID string, period domain.Period, now time.Time, classified classify.Result, agg aggregate.Result) *domain.Snapshot {
	snap := &domain.Snapshot{
		RunID:     runID,
		Period:    period,
		CreatedAt: now.UTC(),
		Records:   append([]domain.ClassificationRecord(nil), classified.Records...),
		Rankings:  make(map[domain.Metric][]domain.RankEntry, len(agg.Rankings)),
		Headline:  classified.Counts,
	}
	for _, c := range agg.Circuits {
		snap.Metrics = append(snap.Metrics, domain.SnapshotMetrics{
			CircuitID:    c.CircuitID,
			TicketTotal:  c.TicketTotal,
			OutageHours:  c.OutageHours,
			Availability: c.Availability,
			MTBFDays:     c.MTBF.Days,
			MTBFDefined:  c.MTBF.Defined,
			Cost:         c.Cost,
		})
	}
	for metric, entries := range agg.Rankings {
		snap.Rankings[metric] = append([]domain.RankEntry(nil), entries...)
	}
	return snap
}

func machineThreshold(v int) int {
	if v <= 0 {
		return classify.DefaultConsistentThreshold
	}
	return v
}

func windowOrDefault(v int) int {
	if v < 1 {
		return aggregate.DefaultWindowMonths
	}
	return v
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
