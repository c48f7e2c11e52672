// Package dedupe removes repeated (circuit, incident number) rows before any
// aggregation sees them.
package dedupe

import (
	"strings"

	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
)

type Result struct {
	Rows    []domain.IncidentRecord
	Removed int
	// Skipped is true when the batch had no incident-number field, in which
	// case Rows is the input unchanged.
	Skipped bool
}

type key struct {
	circuit  string
	incident string
}

// Deduplicate keeps the first row for each (canonical circuit, incident number)
// pair and preserves input order. Rows with a blank incident number cannot be
// matched and are always kept.
func Deduplicate(rows []domain.IncidentRecord, hasIncidentField bool) Result {
	if !hasIncidentField {
		return Result{Rows: rows, Skipped: true}
	}
	seen := make(map[key]bool, len(rows))
	out := make([]domain.IncidentRecord, 0, len(rows))
	removed := 0
	for _, row := range rows {
		incident := strings.TrimSpace(row.IncidentNumber)
		if incident == "" {
			out = append(out, row)
			continue
		}
		k := key{circuit: identity.CanonicalID(row.RawCircuitID), incident: strings.ToUpper(incident)}
		if seen[k] {
			removed++
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return Result{Rows: out, Removed: removed}
}
