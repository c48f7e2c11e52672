package domain

// Source identifies which extract a row came from.
type Source string

const (
	SourceImpacts Source = "impacts"
	SourceCounts  Source = "counts"
)

// Field is a typed input field resolved by the loader. The core only
// branches on these, never on spreadsheet column names.
type Field uint16

const (
	FieldCircuitID Field = 1 << iota
	FieldPeriod
	FieldIncidentNumber
	FieldTicketCount
	FieldDuration
	FieldOutageHours
	FieldCost
	FieldVendor
	FieldMonthsChronic
)

var fieldNames = map[Field]string{
	FieldCircuitID:      "circuit_id",
	FieldPeriod:         "period",
	FieldIncidentNumber: "incident_number",
	FieldTicketCount:    "ticket_count",
	FieldDuration:       "outage_duration",
	FieldOutageHours:    "outage_hours",
	FieldCost:           "cost",
	FieldVendor:         "vendor",
	FieldMonthsChronic:  "months_chronic",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

type FieldSet uint16

func NewFieldSet(fields ...Field) FieldSet {
	var fs FieldSet
	for _, f := range fields {
		fs |= FieldSet(f)
	}
	return fs
}

func (fs FieldSet) Has(f Field) bool {
	return fs&FieldSet(f) != 0
}

func (fs FieldSet) With(f Field) FieldSet {
	return fs | FieldSet(f)
}

// IncidentRecord is one raw input row. Read-only to the core.
type IncidentRecord struct {
	Source         Source
	RawCircuitID   string
	Period         Period // zero when the cell was blank
	IncidentNumber string
	TicketValue    string // raw cell text, may be non-numeric
	Duration       *float64
	OutageHours    *float64
	Cost           *float64
	Vendor         string
	MonthsChronic  *int
}

type Batch struct {
	Source Source
	Fields FieldSet
	Rows   []IncidentRecord
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
