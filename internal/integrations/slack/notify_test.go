package slackbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

func sampleResult(warnings int) *engine.Result {
	res := &engine.Result{
		Counts: domain.CategoryCounts{TotalChronic: 4, Consistent: 2, Inconsistent: 1, NewChronic: 1, Promoted: 1, Media: 1},
		Headline: domain.TrendReport{
			Available:   true,
			PriorPeriod: domain.NewPeriod(2025, time.May),
			Headline:    domain.HeadlineDelta{Comparable: true, PrevTotalChronic: 6, TotalChronic: 4},
		},
		Metadata: engine.Metadata{RunID: "run-42", Period: domain.NewPeriod(2025, time.June)},
	}
	for i := 0; i < warnings; i++ {
		res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnImpossibleAvailability, "circuit %d over potential", i))
	}
	return res
}

func TestFormatRunSummary(t *testing.T) {
	msg := FormatRunSummary(sampleResult(7), "/out/chronic_summary_June_2025.md")
	wants := []string{
		"*Chronic circuit report: June 2025*",
		"Total chronic: *4* (consistent 2, inconsistent 1, new 1)",
		"Promoted from new chronic: 1",
		"Media 1, watch-60 0, watch-30 0",
		"Change vs May 2025: -2 chronic",
		"Warnings (7):",
		"• ...and 2 more",
		"Summary: `/out/chronic_summary_June_2025.md`",
		"Run `run-42`",
	}
	for _, want := range wants {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "circuit 5 over potential") {
		t.Fatalf("warnings beyond the limit should be folded:\n%s", msg)
	}
}

func TestFormatRunSummaryWithoutBaseline(t *testing.T) {
	res := sampleResult(0)
	res.Headline = domain.TrendReport{}
	msg := FormatRunSummary(res, "")
	if !strings.Contains(msg, "No prior baseline") {
		t.Fatalf("expected missing baseline note:\n%s", msg)
	}
	if strings.Contains(msg, "Warnings") || strings.Contains(msg, "Summary:") {
		t.Fatalf("unexpected sections:\n%s", msg)
	}
}

func TestFormatFailure(t *testing.T) {
	msg := FormatFailure(domain.Period{}, errors.New("required columns missing"))
	if msg != ":warning: Chronic circuit report for unknown period failed: required columns missing" {
		t.Fatalf("unexpected failure message: %q", msg)
	}
}

func newMockSlackServer(t *testing.T, ok bool) (*httptest.Server, *[]string) {
	t.Helper()
	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.TrimPrefix(r.URL.Path, "/api/") != "chat.postMessage" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			return
		}
		_ = r.ParseForm()
		texts = append(texts, r.FormValue("text"))
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1700000000.000100"})
	}))
	t.Cleanup(server.Close)
	return server, &texts
}

func TestNotifyRunPostsMessage(t *testing.T) {
	server, texts := newMockSlackServer(t, true)
	n := NewNotifier("xoxb-test", "C123", slack.OptionAPIURL(server.URL+"/api/"))

	if err := n.NotifyRun(context.Background(), sampleResult(0), ""); err != nil {
		t.Fatalf("NotifyRun: %v", err)
	}
	if len(*texts) != 1 || !strings.Contains((*texts)[0], "Chronic circuit report: June 2025") {
		t.Fatalf("unexpected posted texts: %v", *texts)
	}
}

func TestNotifyFailureSurfacesSlackError(t *testing.T) {
	server, texts := newMockSlackServer(t, false)
	n := NewNotifier("xoxb-test", "C404", slack.OptionAPIURL(server.URL+"/api/"))

	err := n.NotifyFailure(context.Background(), domain.NewPeriod(2025, time.June), fmt.Errorf("boom"))
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
	if len(*texts) != 1 {
		t.Fatalf("expected one post attempt, got %d", len(*texts))
	}
}
