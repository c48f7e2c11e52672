package domain

import "fmt"

type Metric string

const (
	MetricTickets      Metric = "tickets"
	MetricCost         Metric = "cost"
	MetricAvailability Metric = "availability"
	MetricMTBF         Metric = "mtbf"
)

// TrackedMetrics is the display order used by reports and trend sections.
func TrackedMetrics() []Metric {
	return []Metric{MetricTickets, MetricCost, MetricAvailability, MetricMTBF}
}

// HigherIsWorse is true for metrics where a larger value is a worse circuit.
func (m Metric) HigherIsWorse() bool {
	return m == MetricTickets || m == MetricCost
}

// MTBF is undefined, not zero, when a circuit had no tickets.
type MTBF struct {
	Days    float64
	Defined bool
}

func (m MTBF) String() string {
	if !m.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.1f days", m.Days)
}

type CircuitMetrics struct {
	CircuitID           string
	RawIDs              []string
	Vendor              string
	TicketTotal         float64
	RollingTickets      float64
	OutageHours         float64
	MonthsWithIncidents int
	Cost                float64
	Availability        float64
	AvailabilityReview  bool
	MTBF                MTBF
	Ranks               map[Metric]int // 0 when unranked
}

// Value returns the metric value used for ranking; ok is false when the
// circuit has no rankable value for m.
func (c CircuitMetrics) Value(m Metric) (float64, bool) {
	switch m {
	case MetricTickets:
		return c.TicketTotal, true
	case MetricCost:
		return c.Cost, c.Cost > 0
	case MetricAvailability:
		return c.Availability, true
	case MetricMTBF:
		return c.MTBF.Days, c.MTBF.Defined
	}
	return 0, false
}

type RankEntry struct {
	CircuitID string  `json:"circuit_id"`
	Rank      int     `json:"rank"`
	Value     float64 `json:"value"`
}
