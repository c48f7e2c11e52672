package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

const maxWarningsInMessage = 5

// Notifier posts run outcomes to the operator channel.
type Notifier struct {
	api     *slack.Client
	channel string
}

func NewNotifier(token, channel string, options ...slack.Option) *Notifier {
	return &Notifier{api: slack.New(token, options...), channel: channel}
}

func (n *Notifier) NotifyRun(ctx context.Context, res *engine.Result, reportPath string) error {
	return n.post(ctx, FormatRunSummary(res, reportPath))
}

func (n *Notifier) NotifyFailure(ctx context.Context, period domain.Period, runErr error) error {
	return n.post(ctx, FormatFailure(period, runErr))
}

func (n *Notifier) post(ctx context.Context, msg string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(msg, false))
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", n.channel, err)
	}
	log.Printf("slack: posted run message to %s", n.channel)
	return nil
}

// FormatRunSummary is the mrkdwn message for a completed run.
func FormatRunSummary(res *engine.Result, reportPath string) string {
	md := res.Metadata
	c := res.Counts

	var b strings.Builder
	fmt.Fprintf(&b, "*Chronic circuit report: %s*\n", md.Period.Label())
	fmt.Fprintf(&b, "Total chronic: *%d* (consistent %d, inconsistent %d, new %d)\n",
		c.TotalChronic, c.Consistent, c.Inconsistent, c.NewChronic)
	if c.Promoted > 0 {
		fmt.Fprintf(&b, "Promoted from new chronic: %d\n", c.Promoted)
	}
	if c.Media > 0 || c.Watch30 > 0 || c.Watch60 > 0 {
		fmt.Fprintf(&b, "Media %d, watch-60 %d, watch-30 %d\n", c.Media, c.Watch60, c.Watch30)
	}
	if res.Headline.HasHeadlineDelta() {
		h := res.Headline.Headline
		fmt.Fprintf(&b, "Change vs %s: %+d chronic\n", res.Headline.PriorPeriod.Label(), h.ChronicChange())
	} else if res.Headline.Available {
		fmt.Fprintf(&b, "Change vs %s: not comparable (%s)\n", res.Headline.PriorPeriod.Label(), res.Headline.Headline.Reason)
	} else {
		b.WriteString("No prior baseline: trend comparison skipped\n")
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings (%d):\n", len(res.Warnings))
		for i, w := range res.Warnings {
			if i == maxWarningsInMessage {
				fmt.Fprintf(&b, "• ...and %d more\n", len(res.Warnings)-maxWarningsInMessage)
				break
			}
			fmt.Fprintf(&b, "• %s\n", w.String())
		}
	}
	if reportPath != "" {
		fmt.Fprintf(&b, "Summary: `%s`\n", reportPath)
	}
	fmt.Fprintf(&b, "Run `%s`", md.RunID)
	return b.String()
}

func FormatFailure(period domain.Period, runErr error) string {
	label := period.Label()
	if label == "" {
		label = "unknown period"
	}
	return fmt.Sprintf(":warning: Chronic circuit report for %s failed: %v", label, runErr)
}
