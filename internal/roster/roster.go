// Package roster loads the externally maintained circuit lists the engine
// treats as injected inputs: regional membership, the tracked chronic list,
// performance watch signals and the frozen legacy statuses.
package roster

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
)

type File struct {
	Regional       []string     `yaml:"regional"`
	TrackedChronic []string     `yaml:"tracked_chronic"`
	Watch30        []string     `yaml:"watch_30"`
	Watch60        []string     `yaml:"watch_60"`
	Frozen         FrozenLegacy `yaml:"frozen"`
}

// FrozenLegacy is the hand-maintained legacy list. Statuses listed here win
// over whatever the prior snapshot recorded.
type FrozenLegacy struct {
	Consistent   []string `yaml:"consistent"`
	Inconsistent []string `yaml:"inconsistent"`
	Media        []string `yaml:"media"`
}

// Roster is the canonicalized, read-only form of File.
type Roster struct {
	regional map[string]bool
	tracked  map[string]bool
	watch    map[string]domain.WatchLevel
	frozen   map[string]domain.Category
}

// Load reads a roster YAML file. An empty path yields an empty roster.
func Load(path string, matcher *identity.Matcher) (Roster, error) {
	if strings.TrimSpace(path) == "" {
		return New(File{}, matcher), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Roster{}, fmt.Errorf("parse roster yaml: %w", err)
	}
	return New(f, matcher), nil
}

// New canonicalizes every listed id and drops test circuits, which are
// recognized on the raw id. A circuit on both watch lists is Watch60.
func New(f File, matcher *identity.Matcher) Roster {
	toSet := func(ids []string) map[string]bool {
		return canonicalSet(ids, matcher)
	}
	r := Roster{
		regional: toSet(f.Regional),
		tracked:  toSet(f.TrackedChronic),
		watch:    make(map[string]domain.WatchLevel),
		frozen:   make(map[string]domain.Category),
	}
	for id := range toSet(f.Watch30) {
		r.watch[id] = domain.Watch30
	}
	for id := range toSet(f.Watch60) {
		r.watch[id] = domain.Watch60
	}
	for id := range toSet(f.Frozen.Media) {
		r.frozen[id] = domain.CategoryMedia
	}
	for id := range toSet(f.Frozen.Inconsistent) {
		r.frozen[id] = domain.CategoryInconsistent
	}
	for id := range toSet(f.Frozen.Consistent) {
		r.frozen[id] = domain.CategoryConsistent
	}
	return r
}

func (r Roster) IsRegional(id string) bool {
	return r.regional[id]
}

func (r Roster) IsTracked(id string) bool {
	return r.tracked[id]
}

func (r Roster) Watch(id string) domain.WatchLevel {
	return r.watch[id]
}

// Frozen returns the legacy frozen statuses keyed by canonical id. The map is
// a copy.
func (r Roster) Frozen() map[string]domain.Category {
	out := make(map[string]domain.Category, len(r.frozen))
	for id, c := range r.frozen {
		out[id] = c
	}
	return out
}

// Tracked lists the tracked chronic circuits in id order.
func (r Roster) Tracked() []string {
	return sortedIDs(r.tracked)
}

func (r Roster) Regional() []string {
	return sortedIDs(r.regional)
}

// Watched lists every circuit on either watch list.
func (r Roster) Watched() []string {
	set := make(map[string]bool, len(r.watch))
	for id := range r.watch {
		set[id] = true
	}
	return sortedIDs(set)
}

func canonicalSet(ids []string, matcher *identity.Matcher) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, raw := range ids {
		if matcher.IsTestCircuit(raw, "") {
			continue
		}
		if id := identity.CanonicalID(raw); id != "" {
			out[id] = true
		}
	}
	return out
}

func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
