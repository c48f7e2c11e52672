package domain

import "time"

type Category string

const (
	CategoryConsistent   Category = "Consistent"
	CategoryInconsistent Category = "Inconsistent"
	CategoryMedia        Category = "Media"
	CategoryNewChronic   Category = "New-Chronic"
	CategoryWatch30      Category = "Performance-Watch-30"
	CategoryWatch60      Category = "Performance-Watch-60"
	CategoryNotChronic   Category = "Not-Chronic"
)

// IsChronic reports whether the category counts toward the headline chronic total.
// Media and watch circuits are tracked but excluded.
func (c Category) IsChronic() bool {
	return c == CategoryConsistent || c == CategoryInconsistent || c == CategoryNewChronic
}

func (c Category) Valid() bool {
	switch c {
	case CategoryConsistent, CategoryInconsistent, CategoryMedia, CategoryNewChronic,
		CategoryWatch30, CategoryWatch60, CategoryNotChronic:
		return true
	}
	return false
}

type StatusSource string

const (
	StatusBaselineFrozen StatusSource = "baseline_frozen"
	StatusRuleComputed   StatusSource = "rule_computed"
)

// WatchLevel is the early-warning signal supplied by the monitoring roster.
type WatchLevel int

const (
	WatchNone WatchLevel = 0
	Watch30   WatchLevel = 30
	Watch60   WatchLevel = 60
)

type ClassificationRecord struct {
	CircuitID      string       `json:"circuit_id"`
	Category       Category     `json:"category"`
	Source         StatusSource `json:"status_source"`
	RollingTickets float64      `json:"rolling_ticket_total"`
	Promoted       bool         `json:"promoted"`
	Regional       bool         `json:"regional"`
	Watch          WatchLevel   `json:"watch,omitempty"`
}

type CategoryCounts struct {
	TotalChronic int `json:"total_chronic"`
	Consistent   int `json:"consistent"`
	Inconsistent int `json:"inconsistent"`
	NewChronic   int `json:"new_chronic"`
	Promoted     int `json:"promoted"`
	Media        int `json:"media"`
	Watch30      int `json:"watch_30"`
	Watch60      int `json:"watch_60"`
}

func CountCategories(records []ClassificationRecord) CategoryCounts {
	var c CategoryCounts
	for _, r := range records {
		switch r.Category {
		case CategoryConsistent:
			c.Consistent++
		case CategoryInconsistent:
			c.Inconsistent++
		case CategoryNewChronic:
			c.NewChronic++
		case CategoryMedia:
			c.Media++
		case CategoryWatch30:
			c.Watch30++
		case CategoryWatch60:
			c.Watch60++
		}
		if r.Promoted {
			c.Promoted++
		}
	}
	c.TotalChronic = c.Consistent + c.Inconsistent + c.NewChronic
	return c
}

// Snapshot is the persisted outcome of one run. Loaded as the next run's baseline.
type Snapshot struct {
	RunID     string                 `json:"run_id"`
	Period    Period                 `json:"period"`
	CreatedAt time.Time              `json:"created_at"`
	Records   []ClassificationRecord `json:"records"`
	Metrics   []SnapshotMetrics      `json:"metrics"`
	Rankings  map[Metric][]RankEntry `json:"rankings"`
	Headline  CategoryCounts         `json:"headline"`
}

// SnapshotMetrics is the persisted subset of CircuitMetrics.
type SnapshotMetrics struct {
	CircuitID    string  `json:"circuit_id"`
	TicketTotal  float64 `json:"ticket_total"`
	OutageHours  float64 `json:"outage_hours"`
	Availability float64 `json:"availability"`
	MTBFDays     float64 `json:"mtbf_days"`
	MTBFDefined  bool    `json:"mtbf_defined"`
	Cost         float64 `json:"cost"`
}
