package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is a reporting month. The zero value means the period marker was absent.
type Period struct {
	Year  int
	Month time.Month
}

var (
	isoPeriodRe   = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	slashPeriodRe = regexp.MustCompile(`^(\d{1,2})/(\d{4})$`)
)

func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "June 2025", "Jun 2025", "June_2025", "2025-06" and "06/2025".
func ParsePeriod(s string) (Period, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Period{}, fmt.Errorf("empty period")
	}
	if m := isoPeriodRe.FindStringSubmatch(raw); m != nil {
		return periodFromParts(m[1], m[2], raw)
	}
	if m := slashPeriodRe.FindStringSubmatch(raw); m != nil {
		return periodFromParts(m[2], m[1], raw)
	}
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", " ")), " ")
	for _, layout := range []string{"January 2006", "Jan 2006", "January, 2006", "Jan-06", "Jan-2006"} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return PeriodOf(t), nil
		}
	}
	return Period{}, fmt.Errorf("unrecognized period %q", s)
}

func periodFromParts(yearStr, monthStr, raw string) (Period, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Period{}, fmt.Errorf("unrecognized period %q", raw)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month out of range in %q", raw)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) AddMonths(n int) Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return PeriodOf(t)
}

// Within reports whether p falls in the window of n months ending at end (inclusive).
func (p Period) Within(end Period, n int) bool {
	if p.IsZero() || n < 1 {
		return false
	}
	start := end.AddMonths(-(n - 1))
	return !p.Before(start) && !end.Before(p)
}

// String returns the sortable form, e.g. "2025-06".
func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label returns the display form, e.g. "June 2025".
func (p Period) Label() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
