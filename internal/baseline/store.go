// Package baseline holds the prior-period classification snapshot the current
// run treats as an override authority.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
)

var ErrNoPriorSnapshot = errors.New("no prior snapshot found")

// Source finds the most recent snapshot whose own reporting period is strictly
// before the given period. It returns ErrNoPriorSnapshot when there is none.
type Source interface {
	LatestBefore(ctx context.Context, period domain.Period) (*domain.Snapshot, error)
}

// Sink persists a completed run's snapshot for use as the next baseline.
type Sink interface {
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
}

// Entry is one circuit's baseline status.
type Entry struct {
	Category domain.Category
	// Pending marks a prior New-Chronic circuit awaiting promotion this run.
	Pending bool
	// Legacy is true when the status came from the frozen legacy list rather
	// than the prior snapshot.
	Legacy bool
}

// Store is immutable after construction and safe to share between readers.
type Store struct {
	found       bool
	period      domain.Period
	runID       string
	entries     map[string]Entry
	rankings    map[domain.Metric][]domain.RankEntry
	placeholder map[domain.Metric]bool
	// placeholderRecords is set when any prior record id is a placeholder.
	placeholderRecords bool
	ranked             map[domain.Metric]bool
	headline           domain.CategoryCounts
}

// Empty is the store used when no prior snapshot exists.
func Empty() *Store {
	return &Store{
		entries:     map[string]Entry{},
		rankings:    map[domain.Metric][]domain.RankEntry{},
		placeholder: map[domain.Metric]bool{},
		ranked:      map[domain.Metric]bool{},
	}
}

// New builds a store from a prior snapshot (which may be nil) and the frozen
// legacy list. Every identifier is canonicalized here so lookups share the
// identity space of the current run. Placeholder ids are detected on the raw
// stored form, before canonicalization can hide them.
func New(snap *domain.Snapshot, frozen map[string]domain.Category, matcher *identity.Matcher) *Store {
	s := Empty()
	if snap != nil {
		s.found = true
		s.period = snap.Period
		s.runID = snap.RunID
		s.headline = snap.Headline

		for _, rec := range snap.Records {
			if matcher.IsPlaceholder(rec.CircuitID) {
				s.placeholderRecords = true
				continue
			}
			if matcher.IsTestCircuit(rec.CircuitID, "") {
				continue
			}
			id := identity.CanonicalID(rec.CircuitID)
			if id == "" {
				continue
			}
			if _, seen := s.entries[id]; seen {
				continue
			}
			switch rec.Category {
			case domain.CategoryConsistent, domain.CategoryInconsistent, domain.CategoryMedia:
				s.entries[id] = Entry{Category: rec.Category}
			case domain.CategoryNewChronic:
				s.entries[id] = Entry{Category: rec.Category, Pending: true}
			}
		}

		for metric, entries := range snap.Rankings {
			seen := make(map[string]bool, len(entries))
			var out []domain.RankEntry
			for _, e := range entries {
				if matcher.IsPlaceholder(e.CircuitID) {
					s.placeholder[metric] = true
				}
				if matcher.IsTestCircuit(e.CircuitID, "") {
					continue
				}
				id := identity.CanonicalID(e.CircuitID)
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, domain.RankEntry{CircuitID: id, Rank: e.Rank, Value: e.Value})
			}
			sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
			s.rankings[metric] = out
			s.ranked[metric] = !s.placeholder[metric] && len(out) > 0
		}
	}

	for raw, cat := range frozen {
		if matcher.IsTestCircuit(raw, "") {
			continue
		}
		id := identity.CanonicalID(raw)
		if id == "" || !cat.Valid() {
			continue
		}
		s.entries[id] = Entry{Category: cat, Legacy: true}
	}
	return s
}

// Load fetches the latest prior snapshot from src and builds the store. A
// missing snapshot is not an error: the store is empty apart from the frozen
// legacy list and a missing_baseline warning is returned.
func Load(ctx context.Context, src Source, period domain.Period, frozen map[string]domain.Category, matcher *identity.Matcher) (*Store, []domain.Warning, error) {
	var warnings []domain.Warning
	var snap *domain.Snapshot
	if src != nil {
		var err error
		snap, err = src.LatestBefore(ctx, period)
		if err != nil && !errors.Is(err, ErrNoPriorSnapshot) {
			return nil, nil, fmt.Errorf("load prior snapshot: %w", err)
		}
	}
	if snap == nil {
		warnings = append(warnings, domain.Warnf(domain.WarnMissingBaseline,
			"no snapshot found before %s; every chronic circuit is treated as newly entering", period.Label()))
	}

	s := New(snap, frozen, matcher)
	if s.placeholderRecords {
		warnings = append(warnings, domain.Warnf(domain.WarnPlaceholderBaseline,
			"prior snapshot records contain placeholder circuit ids; headline comparison skipped"))
	}
	for _, metric := range domain.TrackedMetrics() {
		if s.placeholder[metric] {
			warnings = append(warnings, domain.Warnf(domain.WarnPlaceholderBaseline,
				"prior %s ranking contains placeholder circuit ids; comparison skipped", metric))
		}
	}
	return s, warnings, nil
}

func (s *Store) Found() bool { return s.found }

func (s *Store) Period() domain.Period { return s.period }

func (s *Store) RunID() string { return s.runID }

func (s *Store) Headline() domain.CategoryCounts { return s.headline }

func (s *Store) Lookup(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Frozen returns the status a circuit must keep unconditionally this run.
func (s *Store) Frozen(id string) (domain.Category, bool) {
	e, ok := s.entries[id]
	if !ok || e.Pending {
		return "", false
	}
	return e.Category, true
}

func (s *Store) Pending(id string) bool {
	return s.entries[id].Pending
}

// IDs lists every circuit with a baseline status, in id order.
func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Rankings returns a copy of the prior ranked list for metric.
func (s *Store) Rankings(metric domain.Metric) []domain.RankEntry {
	return append([]domain.RankEntry(nil), s.rankings[metric]...)
}

// HasPlaceholders reports whether the prior ranking for metric contained
// synthetic placeholder ids.
func (s *Store) HasPlaceholders(metric domain.Metric) bool {
	return s.placeholder[metric]
}

// Tainted reports whether placeholder ids appear anywhere in the prior
// snapshot, in its records or in any ranking.
func (s *Store) Tainted() bool {
	if s.placeholderRecords {
		return true
	}
	for _, p := range s.placeholder {
		if p {
			return true
		}
	}
	return false
}

// HasCleanRanking reports whether the prior snapshot holds a non-empty
// ranking for metric with no placeholder ids.
func (s *Store) HasCleanRanking(metric domain.Metric) bool {
	return s.ranked[metric]
}
