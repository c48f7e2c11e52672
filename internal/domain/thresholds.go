package domain

import (
	"fmt"
	"math"
)

// Thresholds is one complete set of significance gates. The engine carries
// two independent sets: core (classification and headline tables) and trend
// (narration sensitivity only).
type Thresholds struct {
	Tickets         float64 `yaml:"tickets" json:"tickets"`
	Cost            float64 `yaml:"cost" json:"cost"`
	AvailabilityPct float64 `yaml:"availability_pct" json:"availability_pct"`
	MTBFDays        float64 `yaml:"mtbf_days" json:"mtbf_days"`
	Rank            int     `yaml:"rank" json:"rank"`
}

func DefaultCoreThresholds() Thresholds {
	return Thresholds{Tickets: 6, Cost: 1000, AvailabilityPct: 5, MTBFDays: 0.5, Rank: 2}
}

func DefaultTrendThresholds() Thresholds {
	return Thresholds{Tickets: 1, Cost: 500, AvailabilityPct: 2, MTBFDays: 0.2, Rank: 1}
}

// For returns the value-change threshold for m.
func (t Thresholds) For(m Metric) float64 {
	switch m {
	case MetricTickets:
		return t.Tickets
	case MetricCost:
		return t.Cost
	case MetricAvailability:
		return t.AvailabilityPct
	case MetricMTBF:
		return t.MTBFDays
	}
	return 0
}

func (t Thresholds) Validate() error {
	for _, m := range TrackedMetrics() {
		if v := t.For(m); v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s threshold must be >= 0, got %v", m, t.For(m))
		}
	}
	if t.Rank < 0 {
		return fmt.Errorf("rank threshold must be >= 0, got %d", t.Rank)
	}
	return nil
}
