package domain

type Direction string

const (
	Improved Direction = "improved"
	Worsened Direction = "worsened"
)

type RankShift struct {
	CircuitID string    `json:"circuit_id"`
	PrevRank  int       `json:"prev_rank"`
	Rank      int       `json:"rank"`
	PrevValue float64   `json:"prev_value"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
}

type ValueChange struct {
	CircuitID string    `json:"circuit_id"`
	PrevValue float64   `json:"prev_value"`
	Value     float64   `json:"value"`
	Delta     float64   `json:"delta"`
	Percent   float64   `json:"percent"`
	Direction Direction `json:"direction"`
}

type TrendSection struct {
	Metric     Metric        `json:"metric"`
	Available  bool          `json:"available"`
	Reason     string        `json:"reason,omitempty"`
	Entrants   []RankEntry   `json:"entrants,omitempty"`
	Graduates  []RankEntry   `json:"graduates,omitempty"`
	RankShifts []RankShift   `json:"rank_shifts,omitempty"`
	Changes    []ValueChange `json:"changes,omitempty"`
}

func (s TrendSection) Empty() bool {
	return len(s.Entrants) == 0 && len(s.Graduates) == 0 && len(s.RankShifts) == 0 && len(s.Changes) == 0
}

// HeadlineDelta carries the current counts always; the Prev fields are only
// meaningful when Comparable is set.
type HeadlineDelta struct {
	Comparable       bool   `json:"comparable"`
	Reason           string `json:"reason,omitempty"`
	PrevTotalChronic int    `json:"prev_total_chronic"`
	TotalChronic     int    `json:"total_chronic"`
	PrevConsistent   int    `json:"prev_consistent"`
	Consistent       int    `json:"consistent"`
	NewChronic       int    `json:"new_chronic"`
}

func (h HeadlineDelta) ChronicChange() int {
	return h.TotalChronic - h.PrevTotalChronic
}

type TrendReport struct {
	Available   bool           `json:"available"`
	Reason      string         `json:"reason,omitempty"`
	PriorPeriod Period         `json:"prior_period"`
	Period      Period         `json:"period"`
	Headline    HeadlineDelta  `json:"headline"`
	Sections    []TrendSection `json:"sections"`
}

// HasHeadlineDelta reports whether the prior headline counts can be shown
// next to the current ones.
func (r TrendReport) HasHeadlineDelta() bool {
	return r.Available && r.Headline.Comparable
}

func (r TrendReport) Section(m Metric) (TrendSection, bool) {
	for _, s := range r.Sections {
		if s.Metric == m {
			return s, true
		}
	}
	return TrendSection{}, false
}
