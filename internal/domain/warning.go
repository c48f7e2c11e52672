package domain

import "fmt"

type WarningKind string

const (
	WarnNonNumericTickets      WarningKind = "non_numeric_tickets"
	WarnBlankPeriods           WarningKind = "blank_periods"
	WarnDedupeSkipped          WarningKind = "dedupe_skipped"
	WarnImpossibleAvailability WarningKind = "impossible_availability"
	WarnMissingBaseline        WarningKind = "missing_baseline"
	WarnPlaceholderBaseline    WarningKind = "placeholder_baseline"
	WarnNotifyFailed           WarningKind = "notify_failed"
	WarnNarrativeFailed        WarningKind = "narrative_failed"
)

// Warning is a non-fatal data-quality or environment problem surfaced to the operator.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Circuit string      `json:"circuit,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Circuit != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Circuit, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}

func Warnf(kind WarningKind, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
