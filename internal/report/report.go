// Package report renders an engine result into the monthly summary files.
package report

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

var metricTitles = map[domain.Metric]string{
	domain.MetricTickets:      "Ticket Generators",
	domain.MetricCost:         "Cost to Serve",
	domain.MetricAvailability: "Availability",
	domain.MetricMTBF:         "Reliability (MTBF)",
}

var chronicOrder = []domain.Category{
	domain.CategoryConsistent,
	domain.CategoryInconsistent,
	domain.CategoryNewChronic,
	domain.CategoryMedia,
	domain.CategoryWatch60,
	domain.CategoryWatch30,
}

// Render builds the markdown summary. narrative is optional and placed under
// the headline when non-empty.
func Render(res *engine.Result, narrative string) string {
	var b strings.Builder
	md := res.Metadata

	fmt.Fprintf(&b, "# Chronic Circuit Summary: %s\n\n", md.Period.Label())

	b.WriteString("## Headline\n\n")
	b.WriteString("| Category | Circuits |\n|---|---|\n")
	c := res.Counts
	fmt.Fprintf(&b, "| Total chronic | %d |\n", c.TotalChronic)
	fmt.Fprintf(&b, "| Consistent | %d |\n", c.Consistent)
	fmt.Fprintf(&b, "| Inconsistent | %d |\n", c.Inconsistent)
	fmt.Fprintf(&b, "| New chronic | %d |\n", c.NewChronic)
	fmt.Fprintf(&b, "| Promoted this month | %d |\n", c.Promoted)
	fmt.Fprintf(&b, "| Media | %d |\n", c.Media)
	fmt.Fprintf(&b, "| Performance watch 60 | %d |\n", c.Watch60)
	fmt.Fprintf(&b, "| Performance watch 30 | %d |\n", c.Watch30)
	b.WriteString("\n")

	if res.Headline.HasHeadlineDelta() {
		h := res.Headline.Headline
		fmt.Fprintf(&b, "%s → %s: total chronic %d → %d (%+d), consistent %d → %d\n\n",
			res.Headline.PriorPeriod.Label(), md.Period.Label(),
			h.PrevTotalChronic, h.TotalChronic, h.ChronicChange(), h.PrevConsistent, h.Consistent)
	}

	if strings.TrimSpace(narrative) != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(strings.TrimSpace(narrative))
		b.WriteString("\n\n")
	}

	writeCategoryLists(&b, res)
	writeNewChronicsByVendor(&b, res)
	writeRankings(&b, res)
	writeHeadlineChanges(&b, res.Headline)
	writeTrend(&b, res.Trend)

	if len(res.Warnings) > 0 {
		b.WriteString("## Data Quality Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.String())
		}
		b.WriteString("\n")
	}

	b.WriteString("## Run Metadata\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", md.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", md.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- Consistent threshold: %d tickets over %d months\n", md.ConsistentThreshold, md.WindowMonths)
	fmt.Fprintf(&b, "- Potential hours: %.2f\n", md.PotentialHours)
	if md.DurationUnit != "" {
		fmt.Fprintf(&b, "- Outage duration unit: %s\n", md.DurationUnit)
	}
	fmt.Fprintf(&b, "- Duplicates removed: %d\n", md.DuplicatesRemoved)
	fmt.Fprintf(&b, "- Test rows filtered: %d\n", md.TestRowsFiltered)
	if md.BaselineFound {
		fmt.Fprintf(&b, "- Baseline: %s (run %s)\n", md.BaselinePeriod.Label(), md.BaselineRunID)
	} else {
		b.WriteString("- Baseline: none\n")
	}
	for _, name := range sortedKeys(md.InputDigests) {
		fmt.Fprintf(&b, "- %s sha256: %s\n", name, md.InputDigests[name])
	}
	return b.String()
}

func writeCategoryLists(b *strings.Builder, res *engine.Result) {
	byCategory := make(map[domain.Category][]engine.CircuitReport)
	for _, cr := range res.Circuits {
		byCategory[cr.Classification.Category] = append(byCategory[cr.Classification.Category], cr)
	}
	for _, cat := range chronicOrder {
		list := byCategory[cat]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(b, "## %s (%d)\n\n", cat, len(list))
		for _, cr := range list {
			b.WriteString("- ")
			b.WriteString(cr.CircuitID)
			if cr.Indicator != "" {
				fmt.Fprintf(b, " [%s]", cr.Indicator)
			}
			if cr.Vendor != "" {
				fmt.Fprintf(b, " (%s)", cr.Vendor)
			}
			if cr.Classification.Promoted {
				b.WriteString(" promoted")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

func writeNewChronicsByVendor(b *strings.Builder, res *engine.Result) {
	byVendor := make(map[string][]string)
	for _, cr := range res.Circuits {
		if cr.Classification.Category != domain.CategoryNewChronic {
			continue
		}
		vendor := cr.Vendor
		if vendor == "" {
			vendor = "Unknown Provider"
		}
		byVendor[vendor] = append(byVendor[vendor], cr.CircuitID)
	}
	if len(byVendor) == 0 {
		return
	}
	b.WriteString("## New Chronics by Provider\n\n")
	for _, vendor := range sortedKeys(byVendor) {
		fmt.Fprintf(b, "- %s: %s\n", vendor, strings.Join(byVendor[vendor], ", "))
	}
	b.WriteString("\n")
}

func writeRankings(b *strings.Builder, res *engine.Result) {
	for _, m := range domain.TrackedMetrics() {
		entries := res.Rankings[m]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(b, "## Top %d %s\n\n", len(entries), metricTitles[m])
		b.WriteString("| Rank | Circuit | Value |\n|---|---|---|\n")
		for _, e := range entries {
			fmt.Fprintf(b, "| %d | %s | %s |\n", e.Rank, e.CircuitID, FormatValue(m, e.Value))
		}
		b.WriteString("\n")
	}
}

func writeHeadlineChanges(b *strings.Builder, r domain.TrendReport) {
	if !r.Available {
		return
	}
	var rows []string
	for _, s := range r.Sections {
		if !s.Available {
			continue
		}
		for _, ch := range s.Changes {
			rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s | %s |",
				metricTitles[s.Metric], ch.CircuitID, FormatValue(s.Metric, ch.PrevValue), FormatValue(s.Metric, ch.Value), ch.Direction))
		}
	}
	if len(rows) == 0 {
		return
	}
	b.WriteString("## Significant Changes\n\n")
	b.WriteString("| Metric | Circuit | Previous | Current | Direction |\n|---|---|---|---|---|\n")
	for _, row := range rows {
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeTrend(b *strings.Builder, r domain.TrendReport) {
	b.WriteString("## Trend Analysis\n\n")
	if !r.Available {
		fmt.Fprintf(b, "Trend analysis unavailable: %s.\n\n", r.Reason)
		return
	}
	fmt.Fprintf(b, "Compared with %s.\n\n", r.PriorPeriod.Label())
	for _, s := range r.Sections {
		fmt.Fprintf(b, "### %s\n\n", metricTitles[s.Metric])
		if !s.Available {
			fmt.Fprintf(b, "Unavailable: %s.\n\n", s.Reason)
			continue
		}
		if s.Empty() {
			b.WriteString("No notable movement.\n\n")
			continue
		}
		for _, e := range s.Entrants {
			fmt.Fprintf(b, "- New in top list: %s at #%d (%s)\n", e.CircuitID, e.Rank, FormatValue(s.Metric, e.Value))
		}
		for _, e := range s.Graduates {
			fmt.Fprintf(b, "- Left top list: %s (was #%d)\n", e.CircuitID, e.Rank)
		}
		for _, sh := range s.RankShifts {
			fmt.Fprintf(b, "- %s moved #%d → #%d (%s)\n", sh.CircuitID, sh.PrevRank, sh.Rank, sh.Direction)
		}
		for _, ch := range s.Changes {
			fmt.Fprintf(b, "- %s %s: %s → %s (%+.1f%%)\n", ch.CircuitID, ch.Direction,
				FormatValue(s.Metric, ch.PrevValue), FormatValue(s.Metric, ch.Value), ch.Percent)
		}
		b.WriteString("\n")
	}
}

// FormatValue renders a metric value with its unit.
func FormatValue(m domain.Metric, v float64) string {
	switch m {
	case domain.MetricTickets:
		return fmt.Sprintf("%.0f", v)
	case domain.MetricCost:
		return fmt.Sprintf("$%.2f", v)
	case domain.MetricAvailability:
		return fmt.Sprintf("%.2f%%", v)
	case domain.MetricMTBF:
		return fmt.Sprintf("%.1f days", v)
	}
	return fmt.Sprintf("%g", v)
}

// SummaryBaseName is chronic_summary_<Month>_<Year>.
func SummaryBaseName(period domain.Period) string {
	return "chronic_summary_" + sanitizeFilename(strings.ReplaceAll(period.Label(), " ", "_"))
}

type summaryJSON struct {
	Metadata engine.Metadata       `json:"metadata"`
	Counts   domain.CategoryCounts `json:"counts"`
	Circuits []circuitJSON         `json:"circuits"`
	Trend    domain.TrendReport    `json:"trend"`
	Warnings []domain.Warning      `json:"warnings"`
}

type circuitJSON struct {
	CircuitID    string          `json:"circuit_id"`
	Vendor       string          `json:"vendor,omitempty"`
	Category     domain.Category `json:"category"`
	Indicator    string          `json:"indicator,omitempty"`
	Tickets      float64         `json:"tickets"`
	Rolling      float64         `json:"rolling_tickets"`
	OutageHours  float64         `json:"outage_hours"`
	Availability float64         `json:"availability"`
	MTBFDays     *float64        `json:"mtbf_days"`
	Cost         float64         `json:"cost"`
}

// MarshalSummary renders the machine-readable companion of the markdown summary.
func MarshalSummary(res *engine.Result) ([]byte, error) {
	out := summaryJSON{
		Metadata: res.Metadata,
		Counts:   res.Counts,
		Trend:    res.Trend,
		Warnings: res.Warnings,
	}
	for _, cr := range res.Circuits {
		cj := circuitJSON{
			CircuitID:    cr.CircuitID,
			Vendor:       cr.Vendor,
			Category:     cr.Classification.Category,
			Indicator:    cr.Indicator,
			Tickets:      cr.Metrics.TicketTotal,
			Rolling:      cr.Classification.RollingTickets,
			OutageHours:  cr.Metrics.OutageHours,
			Availability: cr.Metrics.Availability,
			Cost:         cr.Metrics.Cost,
		}
		if cr.Metrics.MTBF.Defined {
			cj.MTBFDays = domain.Float(cr.Metrics.MTBF.Days)
		}
		out.Circuits = append(out.Circuits, cj)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return data, nil
}

const stagedSuffix = ".tmp"

// Outputs is the markdown and JSON summary of one run. Stage writes them
// under temporary names; nothing appears at the final paths until Commit.
type Outputs struct {
	ReportPath  string
	SummaryPath string
}

func Stage(res *engine.Result, narrative, outputDir string) (*Outputs, error) {
	summary, err := MarshalSummary(res)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	base := filepath.Join(outputDir, SummaryBaseName(res.Metadata.Period))
	o := &Outputs{ReportPath: base + ".md", SummaryPath: base + ".json"}
	if err := os.WriteFile(o.ReportPath+stagedSuffix, []byte(Render(res, narrative)), 0644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(o.SummaryPath+stagedSuffix, summary, 0644); err != nil {
		o.Discard()
		return nil, err
	}
	return o, nil
}

// Commit moves the staged files to their final paths, replacing any earlier
// run for the same period.
func (o *Outputs) Commit() error {
	for _, path := range []string{o.ReportPath, o.SummaryPath} {
		if err := os.Rename(path+stagedSuffix, path); err != nil {
			return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// Discard removes whatever is still staged.
func (o *Outputs) Discard() {
	for _, path := range []string{o.ReportPath, o.SummaryPath} {
		if err := os.Remove(path + stagedSuffix); err != nil && !os.IsNotExist(err) {
			log.Printf("report: removing staged %s: %v", path, err)
		}
	}
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
