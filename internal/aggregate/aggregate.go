// Package aggregate turns filtered, deduplicated incident rows into per-circuit
// ticket, outage, availability, MTBF and cost figures with per-metric ranks.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"chronicreport/internal/dedupe"
	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
)

const (
	DefaultWindowMonths = 3
	DefaultDaysPerMonth = 30.44
	// Ratio of bad rows above which a data-quality warning is raised.
	qualityWarnRatio = 0.10
)

type DurationUnit string

const (
	UnitNone    DurationUnit = ""
	UnitHours   DurationUnit = "hours"
	UnitMinutes DurationUnit = "minutes"
	UnitSeconds DurationUnit = "seconds"
)

type Options struct {
	// Period is the reporting month; the rolling window ends here.
	Period       domain.Period
	WindowMonths int
	DaysPerMonth float64
	Matcher      *identity.Matcher
}

// PotentialHours is the availability denominator for the whole window.
func (o Options) PotentialHours() float64 {
	return float64(o.windowMonths()) * o.daysPerMonth() * 24
}

func (o Options) windowMonths() int {
	if o.WindowMonths < 1 {
		return DefaultWindowMonths
	}
	return o.WindowMonths
}

func (o Options) daysPerMonth() float64 {
	if o.DaysPerMonth <= 0 {
		return DefaultDaysPerMonth
	}
	return o.DaysPerMonth
}

type Result struct {
	Circuits         []domain.CircuitMetrics
	Rankings         map[domain.Metric][]domain.RankEntry
	PotentialHours   float64
	DurationUnit     DurationUnit
	TestRowsFiltered int
	// TestCircuits lists the canonical ids flagged as test in either batch.
	TestCircuits      []string
	DuplicatesRemoved int
	DedupeSkipped     bool
	BlankPeriods      int
	NonNumericTickets int
	Warnings          []domain.Warning
}

// ByID indexes the circuits by canonical id.
func (r Result) ByID() map[string]domain.CircuitMetrics {
	out := make(map[string]domain.CircuitMetrics, len(r.Circuits))
	for _, c := range r.Circuits {
		out[c.CircuitID] = c
	}
	return out
}

type accumulator struct {
	id          string
	rawIDs      map[string]bool
	vendor      string
	tickets     float64
	rolling     float64
	hours       float64
	hasHours    bool
	duration    float64
	cost        float64
	monthsField int
	periods     map[domain.Period]bool
}

// Aggregate computes CircuitMetrics from the two extracts. Tickets, outage and
// cost come only from the impacts batch; the counts batch contributes
// months-chronic and vendor labels. Any ticket column the counts extract
// carries is ignored so the same incidents are never counted twice.
func Aggregate(impacts, counts domain.Batch, opts Options) Result {
	res := Result{PotentialHours: opts.PotentialHours()}

	testIDs := testCircuitIDs(opts.Matcher, impacts.Rows, counts.Rows)
	res.TestCircuits = sortedKeys(testIDs)
	impactRows, filtered := dropTestCircuits(impacts.Rows, opts.Matcher, testIDs)
	res.TestRowsFiltered += filtered
	countRows, filtered := dropTestCircuits(counts.Rows, opts.Matcher, testIDs)
	res.TestRowsFiltered += filtered

	if impacts.Fields.Has(domain.FieldPeriod) {
		var blanks int
		impactRows, blanks = forwardFillPeriods(impactRows)
		res.BlankPeriods += blanks
		if ratioAbove(blanks, len(impactRows)) {
			res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnBlankPeriods,
				"%d of %d impact rows had a blank period marker and were forward-filled", blanks, len(impactRows)))
		}
	}
	if counts.Fields.Has(domain.FieldPeriod) {
		countRows, _ = forwardFillPeriods(countRows)
	}

	deduped := dedupe.Deduplicate(impactRows, impacts.Fields.Has(domain.FieldIncidentNumber))
	impactRows = deduped.Rows
	res.DuplicatesRemoved = deduped.Removed
	res.DedupeSkipped = deduped.Skipped
	if deduped.Skipped {
		res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnDedupeSkipped,
			"incident number field missing from impacts extract; duplicate incidents were not removed"))
	}

	accs := make(map[string]*accumulator)
	get := func(row domain.IncidentRecord) *accumulator {
		id := identity.CanonicalID(row.RawCircuitID)
		if id == "" {
			return nil
		}
		a, ok := accs[id]
		if !ok {
			a = &accumulator{id: id, rawIDs: make(map[string]bool), periods: make(map[domain.Period]bool)}
			accs[id] = a
		}
		a.rawIDs[strings.TrimSpace(row.RawCircuitID)] = true
		if a.vendor == "" {
			a.vendor = strings.TrimSpace(row.Vendor)
		}
		return a
	}

	checkTickets := impacts.Fields.Has(domain.FieldTicketCount)
	for _, row := range impactRows {
		a := get(row)
		if a == nil {
			continue
		}
		if checkTickets {
			if n, ok := domain.ParseNumber(row.TicketValue); ok {
				a.tickets += n
				if opts.Period.IsZero() || row.Period.IsZero() || row.Period.Within(opts.Period, opts.windowMonths()) {
					a.rolling += n
				}
			} else {
				res.NonNumericTickets++
			}
		}
		if row.OutageHours != nil {
			a.hours += *row.OutageHours
			a.hasHours = true
		}
		if row.Duration != nil {
			a.duration += *row.Duration
		}
		if row.Cost != nil {
			a.cost += *row.Cost
		}
		if !row.Period.IsZero() {
			a.periods[row.Period] = true
		}
		if row.MonthsChronic != nil && *row.MonthsChronic > a.monthsField {
			a.monthsField = *row.MonthsChronic
		}
	}
	if checkTickets && ratioAbove(res.NonNumericTickets, len(impactRows)) {
		res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnNonNumericTickets,
			"%d of %d ticket values were non-numeric and counted as zero", res.NonNumericTickets, len(impactRows)))
	}

	for _, row := range countRows {
		a := get(row)
		if a == nil {
			continue
		}
		if row.MonthsChronic != nil && *row.MonthsChronic > a.monthsField {
			a.monthsField = *row.MonthsChronic
		}
	}

	res.DurationUnit = detectDurationUnit(accs, res.PotentialHours)

	ids := make([]string, 0, len(accs))
	for id := range accs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := accs[id]
		m := domain.CircuitMetrics{
			CircuitID:           id,
			RawIDs:              sortedKeys(a.rawIDs),
			Vendor:              a.vendor,
			TicketTotal:         a.tickets,
			RollingTickets:      a.rolling,
			Cost:                a.cost,
			MonthsWithIncidents: max(a.monthsField, len(a.periods)),
			Ranks:               make(map[domain.Metric]int),
		}
		if a.hasHours {
			m.OutageHours = a.hours
		} else {
			m.OutageHours = toHours(a.duration, res.DurationUnit)
		}
		m.Availability, m.AvailabilityReview = Availability(m.OutageHours, res.PotentialHours)
		if m.AvailabilityReview {
			res.Warnings = append(res.Warnings, domain.Warning{
				Kind:    domain.WarnImpossibleAvailability,
				Circuit: id,
				Message: "outage hours exceed potential hours for the window; availability clamped to 0%",
			})
		}
		m.MTBF = MTBF(res.PotentialHours, m.TicketTotal)
		res.Circuits = append(res.Circuits, m)
	}

	res.Rankings = Rank(res.Circuits)
	return res
}

// Availability returns 100 × (1 − outage/potential) clamped to [0, 100].
// review is true when outage exceeds potential, which no real circuit can do.
func Availability(outageHours, potentialHours float64) (pct float64, review bool) {
	if potentialHours <= 0 {
		return 100, false
	}
	if outageHours < 0 {
		outageHours = 0
	}
	pct = 100 * (1 - outageHours/potentialHours)
	if outageHours > potentialHours {
		review = true
	}
	return math.Max(0, math.Min(100, pct)), review
}

// MTBF is potential hours per ticket, expressed in days. Zero tickets yields
// an undefined MTBF rather than zero or infinity.
func MTBF(potentialHours, tickets float64) domain.MTBF {
	if tickets <= 0 {
		return domain.MTBF{}
	}
	return domain.MTBF{Days: potentialHours / tickets / 24, Defined: true}
}

// Rank orders circuits per metric, worst first, breaking ties by canonical id.
// It fills CircuitMetrics.Ranks in place and returns the ordered lists.
func Rank(circuits []domain.CircuitMetrics) map[domain.Metric][]domain.RankEntry {
	out := make(map[domain.Metric][]domain.RankEntry)
	for _, metric := range domain.TrackedMetrics() {
		var idx []int
		for i := range circuits {
			if _, ok := circuits[i].Value(metric); ok {
				idx = append(idx, i)
			}
		}
		sort.SliceStable(idx, func(a, b int) bool {
			va, _ := circuits[idx[a]].Value(metric)
			vb, _ := circuits[idx[b]].Value(metric)
			if va != vb {
				if metric.HigherIsWorse() {
					return va > vb
				}
				return va < vb
			}
			return circuits[idx[a]].CircuitID < circuits[idx[b]].CircuitID
		})
		entries := make([]domain.RankEntry, 0, len(idx))
		for pos, i := range idx {
			v, _ := circuits[i].Value(metric)
			if circuits[i].Ranks == nil {
				circuits[i].Ranks = make(map[domain.Metric]int)
			}
			circuits[i].Ranks[metric] = pos + 1
			entries = append(entries, domain.RankEntry{CircuitID: circuits[i].CircuitID, Rank: pos + 1, Value: v})
		}
		out[metric] = entries
	}
	return out
}

// TopN truncates each ranked list to its first n entries.
func TopN(rankings map[domain.Metric][]domain.RankEntry, n int) map[domain.Metric][]domain.RankEntry {
	out := make(map[domain.Metric][]domain.RankEntry, len(rankings))
	for metric, entries := range rankings {
		if n > 0 && len(entries) > n {
			entries = entries[:n]
		}
		out[metric] = append([]domain.RankEntry(nil), entries...)
	}
	return out
}

// testCircuitIDs flags a circuit when any of its rows, in either batch, has
// the test prefix on its raw id or the test marker in its vendor. Counts rows
// often carry no vendor, so a flag from one batch must apply to both.
func testCircuitIDs(m *identity.Matcher, batches ...[]domain.IncidentRecord) map[string]bool {
	ids := make(map[string]bool)
	if m == nil {
		return ids
	}
	for _, rows := range batches {
		for _, row := range rows {
			if !m.IsTestCircuit(row.RawCircuitID, row.Vendor) {
				continue
			}
			if id := identity.CanonicalID(row.RawCircuitID); id != "" {
				ids[id] = true
			}
		}
	}
	return ids
}

// dropTestCircuits removes every row of a flagged circuit before grouping.
func dropTestCircuits(rows []domain.IncidentRecord, m *identity.Matcher, ids map[string]bool) ([]domain.IncidentRecord, int) {
	if m == nil {
		return rows, 0
	}
	out := make([]domain.IncidentRecord, 0, len(rows))
	for _, row := range rows {
		if m.IsTestCircuit(row.RawCircuitID, row.Vendor) || ids[identity.CanonicalID(row.RawCircuitID)] {
			continue
		}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

// forwardFillPeriods carries the last non-blank period marker down into blank
// cells. Leading blanks stay blank. The input slice is not modified.
func forwardFillPeriods(rows []domain.IncidentRecord) ([]domain.IncidentRecord, int) {
	out := make([]domain.IncidentRecord, len(rows))
	var last domain.Period
	blanks := 0
	for i, row := range rows {
		if row.Period.IsZero() {
			blanks++
			row.Period = last
		} else {
			last = row.Period
		}
		out[i] = row
	}
	return out, blanks
}

// detectDurationUnit runs once per batch so every circuit shares one unit.
// Durations larger than twice the window cannot be hours.
func detectDurationUnit(accs map[string]*accumulator, potentialHours float64) DurationUnit {
	maxDuration := 0.0
	seen := false
	for _, a := range accs {
		if a.hasHours {
			continue
		}
		seen = true
		if a.duration > maxDuration {
			maxDuration = a.duration
		}
	}
	if !seen {
		return UnitNone
	}
	limit := 2 * potentialHours
	switch {
	case maxDuration/60 > limit:
		return UnitSeconds
	case maxDuration > limit:
		return UnitMinutes
	default:
		return UnitHours
	}
}

func toHours(v float64, unit DurationUnit) float64 {
	switch unit {
	case UnitSeconds:
		return v / 3600
	case UnitMinutes:
		return v / 60
	default:
		return v
	}
}

func ratioAbove(n, total int) bool {
	if total == 0 {
		return false
	}
	return float64(n)/float64(total) > qualityWarnRatio
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
