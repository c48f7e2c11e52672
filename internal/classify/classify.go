// Package classify assigns every circuit in scope to a chronic category.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. frozen baseline status is kept unconditionally
//  2. a prior New-Chronic is promoted by the rolling ticket rule
//  3. months-with-incidents at or above the bar makes an untracked circuit New-Chronic
//  4. media naming pattern makes the circuit Media
//  5. tracked chronic circuits get the rolling ticket rule
//  6. watch signals place the circuit on a performance watch list
//
// Anything left is Not-Chronic.
package classify

import (
	"sort"

	"chronicreport/internal/baseline"
	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
	"chronicreport/internal/roster"
)

const (
	DefaultConsistentThreshold = 6
	DefaultNewChronicMonths    = 3
)

type Settings struct {
	// ConsistentThreshold is the rolling ticket total at or above which a
	// circuit is Consistent rather than Inconsistent.
	ConsistentThreshold int
	NewChronicMonths    int
	// ExcludeRegional keeps regional circuits out of New-Chronic detection only.
	ExcludeRegional bool
	Matcher         *identity.Matcher
	// TestCircuits are never classified, even when the baseline or roster
	// still lists them.
	TestCircuits map[string]bool
}

type Machine struct {
	settings Settings
	baseline *baseline.Store
	roster   roster.Roster
}

type Result struct {
	Records []domain.ClassificationRecord
	Counts  domain.CategoryCounts
}

// ByID indexes the records by canonical id.
func (r Result) ByID() map[string]domain.ClassificationRecord {
	out := make(map[string]domain.ClassificationRecord, len(r.Records))
	for _, rec := range r.Records {
		out[rec.CircuitID] = rec
	}
	return out
}

// New takes the baseline as an explicit immutable value. A nil store is
// treated as empty.
func New(settings Settings, store *baseline.Store, r roster.Roster) *Machine {
	if settings.ConsistentThreshold <= 0 {
		settings.ConsistentThreshold = DefaultConsistentThreshold
	}
	if settings.NewChronicMonths <= 0 {
		settings.NewChronicMonths = DefaultNewChronicMonths
	}
	if store == nil {
		store = baseline.Empty()
	}
	return &Machine{settings: settings, baseline: store, roster: r}
}

// Classify covers every current circuit plus every circuit the baseline or
// roster knows about, so a frozen circuit with no incidents this period still
// reports its status.
func (m *Machine) Classify(metrics []domain.CircuitMetrics) Result {
	byID := make(map[string]domain.CircuitMetrics, len(metrics))
	for _, c := range metrics {
		byID[c.CircuitID] = c
	}
	universe := make(map[string]bool, len(metrics))
	for id := range byID {
		universe[id] = true
	}
	for _, ids := range [][]string{m.baseline.IDs(), m.roster.Tracked(), m.roster.Watched()} {
		for _, id := range ids {
			universe[id] = true
		}
	}

	ids := make([]string, 0, len(universe))
	for id := range universe {
		if m.settings.TestCircuits[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var res Result
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			c = domain.CircuitMetrics{CircuitID: id}
		}
		res.Records = append(res.Records, m.classifyOne(c))
	}
	res.Counts = domain.CountCategories(res.Records)
	return res
}

func (m *Machine) classifyOne(c domain.CircuitMetrics) domain.ClassificationRecord {
	rec := domain.ClassificationRecord{
		CircuitID:      c.CircuitID,
		Source:         domain.StatusRuleComputed,
		RollingTickets: c.RollingTickets,
		Regional:       m.roster.IsRegional(c.CircuitID),
		Watch:          m.roster.Watch(c.CircuitID),
	}

	if cat, ok := m.baseline.Frozen(c.CircuitID); ok {
		rec.Category = cat
		rec.Source = domain.StatusBaselineFrozen
		return rec
	}
	if m.baseline.Pending(c.CircuitID) {
		rec.Category = m.rollingRule(c.RollingTickets)
		rec.Promoted = true
		return rec
	}
	if c.MonthsWithIncidents >= m.settings.NewChronicMonths &&
		!m.roster.IsTracked(c.CircuitID) &&
		!(m.settings.ExcludeRegional && rec.Regional) {
		rec.Category = domain.CategoryNewChronic
		return rec
	}
	if m.isMedia(c) {
		rec.Category = domain.CategoryMedia
		return rec
	}
	if m.roster.IsTracked(c.CircuitID) {
		rec.Category = m.rollingRule(c.RollingTickets)
		return rec
	}
	switch rec.Watch {
	case domain.Watch60:
		rec.Category = domain.CategoryWatch60
	case domain.Watch30:
		rec.Category = domain.CategoryWatch30
	default:
		rec.Category = domain.CategoryNotChronic
	}
	return rec
}

func (m *Machine) rollingRule(rolling float64) domain.Category {
	if rolling >= float64(m.settings.ConsistentThreshold) {
		return domain.CategoryConsistent
	}
	return domain.CategoryInconsistent
}

func (m *Machine) isMedia(c domain.CircuitMetrics) bool {
	if m.settings.Matcher.IsMedia(c.CircuitID) {
		return true
	}
	for _, raw := range c.RawIDs {
		if m.settings.Matcher.IsMedia(raw) {
			return true
		}
	}
	return false
}
