// Package trend diffs this period's ranked lists against the prior snapshot.
package trend

import (
	"math"

	"chronicreport/internal/baseline"
	"chronicreport/internal/domain"
)

const (
	reasonNoPrior     = "no prior snapshot to compare against"
	reasonPlaceholder = "comparison unavailable: prior ranking contains placeholder circuit ids"
	reasonTainted     = "comparison unavailable: prior snapshot contains placeholder circuit ids and no clean ranking for this metric"
	reasonHeadline    = "prior snapshot contains placeholder circuit ids; its headline counts are not comparable"
)

type Options struct {
	// TopN bounds each worst-N list. Zero compares the full lists.
	TopN int
}

// Compare never reads or writes classification state; thresholds only gate
// which differences are reported.
func Compare(prior *baseline.Store, period domain.Period, current map[domain.Metric][]domain.RankEntry,
	headline domain.CategoryCounts, th domain.Thresholds, opts Options) domain.TrendReport {

	report := domain.TrendReport{
		Period: period,
		Headline: domain.HeadlineDelta{
			TotalChronic: headline.TotalChronic,
			Consistent:   headline.Consistent,
			NewChronic:   headline.NewChronic,
		},
	}
	if prior == nil || !prior.Found() {
		report.Reason = reasonNoPrior
		for _, m := range domain.TrackedMetrics() {
			report.Sections = append(report.Sections, domain.TrendSection{Metric: m, Reason: reasonNoPrior})
		}
		return report
	}

	report.Available = true
	report.PriorPeriod = prior.Period()
	tainted := prior.Tainted()
	if tainted {
		report.Headline.Reason = reasonHeadline
	} else {
		prevHeadline := prior.Headline()
		report.Headline.Comparable = true
		report.Headline.PrevTotalChronic = prevHeadline.TotalChronic
		report.Headline.PrevConsistent = prevHeadline.Consistent
	}

	for _, m := range domain.TrackedMetrics() {
		if prior.HasPlaceholders(m) {
			report.Sections = append(report.Sections, domain.TrendSection{Metric: m, Reason: reasonPlaceholder})
			continue
		}
		if tainted && !prior.HasCleanRanking(m) {
			report.Sections = append(report.Sections, domain.TrendSection{Metric: m, Reason: reasonTainted})
			continue
		}
		report.Sections = append(report.Sections, compareSection(m, prior.Rankings(m), current[m], th, opts.TopN))
	}
	return report
}

func compareSection(m domain.Metric, prevAll, curAll []domain.RankEntry, th domain.Thresholds, topN int) domain.TrendSection {
	section := domain.TrendSection{Metric: m, Available: true}
	prevTop := head(prevAll, topN)
	curTop := head(curAll, topN)

	prevTopIDs := indexByID(prevTop)
	curTopIDs := indexByID(curTop)
	prevAny := indexByID(prevAll)

	for _, e := range curTop {
		if _, ok := prevTopIDs[e.CircuitID]; !ok {
			section.Entrants = append(section.Entrants, e)
		}
	}
	for _, e := range prevTop {
		if _, ok := curTopIDs[e.CircuitID]; !ok {
			section.Graduates = append(section.Graduates, e)
		}
	}

	rankGate := max(th.Rank, 1)
	valueGate := th.For(m)
	for _, cur := range curTop {
		prev, ok := prevAny[cur.CircuitID]
		if !ok {
			continue
		}
		if moved := prev.Rank - cur.Rank; abs(moved) >= rankGate {
			dir := domain.Improved
			if moved > 0 {
				// Rank 1 is the worst circuit, so moving up the list is worse.
				dir = domain.Worsened
			}
			section.RankShifts = append(section.RankShifts, domain.RankShift{
				CircuitID: cur.CircuitID,
				PrevRank:  prev.Rank,
				Rank:      cur.Rank,
				PrevValue: prev.Value,
				Value:     cur.Value,
				Direction: dir,
			})
		}
		delta := cur.Value - prev.Value
		if delta == 0 || math.Abs(delta) < valueGate {
			continue
		}
		change := domain.ValueChange{
			CircuitID: cur.CircuitID,
			PrevValue: prev.Value,
			Value:     cur.Value,
			Delta:     delta,
			Direction: directionOf(m, delta),
		}
		if prev.Value != 0 {
			change.Percent = delta / math.Abs(prev.Value) * 100
		}
		section.Changes = append(section.Changes, change)
	}
	return section
}

func directionOf(m domain.Metric, delta float64) domain.Direction {
	if m.HigherIsWorse() == (delta < 0) {
		return domain.Improved
	}
	return domain.Worsened
}

func head(entries []domain.RankEntry, n int) []domain.RankEntry {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}

func indexByID(entries []domain.RankEntry) map[string]domain.RankEntry {
	out := make(map[string]domain.RankEntry, len(entries))
	for _, e := range entries {
		if _, ok := out[e.CircuitID]; !ok {
			out[e.CircuitID] = e
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
