// Package loader turns incident extracts into typed batches. Column names vary
// between extract generations, so headers are matched against known aliases
// here and never reach the core.
package loader

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	dps "github.com/markusmobius/go-dateparser"

	"chronicreport/internal/domain"
)

var aliases = map[domain.Field][]string{
	domain.FieldCircuitID:      {"Config Item Name", "Configuration Item Name", "Circuit ID", "circuit_id"},
	domain.FieldPeriod:         {"Inc Resolved At (Month / Year)", "Month / Year", "Period", "period"},
	domain.FieldIncidentNumber: {"Inc Nbr", "Incident Number", "incident_number"},
	domain.FieldTicketCount:    {"Distinct count of Inc Nbr", "Ticket Count", "ticket_count"},
	domain.FieldDuration:       {"Outage Duration", "outage_duration"},
	domain.FieldOutageHours:    {"SUM Outage (Hours)", "Outage Hours", "outage_hours"},
	domain.FieldCost:           {"Cost to Serve (Sum Impact x $60/hr)", "Cost to Serve", "cost"},
	domain.FieldVendor:         {"Incident Network-facing Impacted CI Type", "Vendor", "Provider", "vendor"},
	domain.FieldMonthsChronic:  {"COUNTD Months", "Months Chronic", "months_chronic"},
}

// Loaded is a batch plus the digest of the bytes it was read from.
type Loaded struct {
	Path   string
	Batch  domain.Batch
	SHA256 string
	// UnparsedPeriods counts non-blank period cells that matched no known
	// layout; they are treated as blank and forward-filled.
	UnparsedPeriods int
}

func LoadFile(path string, source domain.Source) (Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("open %s extract: %w", source, err)
	}
	defer f.Close()

	h := sha256.New()
	loaded, err := Read(io.TeeReader(f, h), source)
	if err != nil {
		return Loaded{}, fmt.Errorf("%s: %w", path, err)
	}
	loaded.Path = path
	loaded.SHA256 = hex.EncodeToString(h.Sum(nil))
	log.Printf("loader: %s rows=%d fields=%s unparsed_periods=%d", source, len(loaded.Batch.Rows), describeFields(loaded.Batch.Fields), loaded.UnparsedPeriods)
	return loaded, nil
}

// Read parses a CSV extract with a header row.
func Read(r io.Reader, source domain.Source) (Loaded, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Loaded{}, fmt.Errorf("empty extract")
		}
		return Loaded{}, fmt.Errorf("read header: %w", err)
	}
	columns := resolveHeader(header)

	out := Loaded{Batch: domain.Batch{Source: source}}
	for f := range columns {
		out.Batch.Fields = out.Batch.Fields.With(f)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Loaded{}, fmt.Errorf("line %d: %w", line, err)
		}
		cell := func(f domain.Field) string {
			idx, ok := columns[f]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}
		if isBlankRecord(rec) {
			continue
		}

		row := domain.IncidentRecord{
			Source:         source,
			RawCircuitID:   cell(domain.FieldCircuitID),
			IncidentNumber: cell(domain.FieldIncidentNumber),
			TicketValue:    cell(domain.FieldTicketCount),
			Vendor:         cell(domain.FieldVendor),
			Duration:       parseFloat(cell(domain.FieldDuration)),
			OutageHours:    parseFloat(cell(domain.FieldOutageHours)),
			Cost:           parseFloat(cell(domain.FieldCost)),
		}
		if raw := cell(domain.FieldPeriod); raw != "" {
			p, ok := ParsePeriodCell(raw)
			if !ok {
				out.UnparsedPeriods++
			}
			row.Period = p
		}
		if v := parseFloat(cell(domain.FieldMonthsChronic)); v != nil {
			row.MonthsChronic = domain.Int(int(math.Round(*v)))
		}
		out.Batch.Rows = append(out.Batch.Rows, row)
	}
	return out, nil
}

// ParsePeriodCell accepts the fixed period layouts first and falls back to
// free-form date parsing for anything else.
func ParsePeriodCell(raw string) (domain.Period, bool) {
	if p, err := domain.ParsePeriod(raw); err == nil {
		return p, true
	}
	parser := dps.Parser{}
	cfg := &dps.Configuration{PreferredDateSource: dps.CurrentPeriod}
	parsed, err := parser.Parse(cfg, raw)
	if err != nil || parsed.IsZero() {
		return domain.Period{}, false
	}
	return domain.PeriodOf(parsed.Time), true
}

func resolveHeader(header []string) map[domain.Field]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	columns := make(map[domain.Field]int)
	for field, names := range aliases {
		for _, name := range names {
			if i, ok := index[normalizeHeader(name)]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func parseFloat(s string) *float64 {
	v, ok := domain.ParseNumber(s)
	if !ok {
		return nil
	}
	return domain.Float(v)
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func describeFields(fs domain.FieldSet) string {
	var names []string
	for _, f := range []domain.Field{
		domain.FieldCircuitID, domain.FieldPeriod, domain.FieldIncidentNumber, domain.FieldTicketCount,
		domain.FieldDuration, domain.FieldOutageHours, domain.FieldCost, domain.FieldVendor, domain.FieldMonthsChronic,
	} {
		if fs.Has(f) {
			names = append(names, f.String())
		}
	}
	return strings.Join(names, ",")
}
