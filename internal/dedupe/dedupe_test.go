package dedupe

import (
	"testing"

	"chronicreport/internal/domain"
)

func row(id, incident, tickets string) domain.IncidentRecord {
	return domain.IncidentRecord{
		Source:         domain.SourceImpacts,
		RawCircuitID:   id,
		IncidentNumber: incident,
		TicketValue:    tickets,
	}
}

func TestDeduplicateRemovesExactPairs(t *testing.T) {
	rows := []domain.IncidentRecord{
		row("SR216187", "INC-123", "1"),
		row("SR216187", "INC-123", "1"),
		row("SR216187", "INC-999", "1"),
		row("LZA010663", "INC-123", "1"),
		row("SR216187_backup", "INC-999", "1"),
	}
	res := Deduplicate(rows, true)
	if res.Skipped {
		t.Fatal("expected dedupe to run")
	}
	if res.Removed != 2 {
		t.Fatalf("expected 2 removed rows, got %d", res.Removed)
	}
	if len(res.Rows) != len(rows)-res.Removed {
		t.Fatalf("expected %d rows, got %d", len(rows)-res.Removed, len(res.Rows))
	}
	if res.Rows[0].IncidentNumber != "INC-123" || res.Rows[1].IncidentNumber != "INC-999" || res.Rows[2].RawCircuitID != "LZA010663" {
		t.Fatalf("unexpected order after dedupe: %+v", res.Rows)
	}
}

func TestDeduplicateKeepsBlankIncidentNumbers(t *testing.T) {
	rows := []domain.IncidentRecord{
		row("SR216187", "", "2"),
		row("SR216187", "  ", "2"),
	}
	res := Deduplicate(rows, true)
	if res.Removed != 0 || len(res.Rows) != 2 {
		t.Fatalf("blank incident numbers must not collapse, got removed=%d rows=%d", res.Removed, len(res.Rows))
	}
}

func TestDeduplicateSkippedWithoutField(t *testing.T) {
	rows := []domain.IncidentRecord{
		row("SR216187", "INC-1", "1"),
		row("SR216187", "INC-1", "1"),
	}
	res := Deduplicate(rows, false)
	if !res.Skipped {
		t.Fatal("expected Skipped when incident field absent")
	}
	if res.Removed != 0 || len(res.Rows) != 2 {
		t.Fatalf("expected input unchanged, got removed=%d rows=%d", res.Removed, len(res.Rows))
	}
}
