// Package llm drafts the executive narrative for a run from its trend report.
// The model only rewords the computed facts; it never changes categories.
package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

const maxNarrativeTokens = 1024

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Narrator struct {
	client   anthropic.Client
	model    string
	glossary *Glossary
}

func NewNarrator(apiKey, model string, opts ...option.RequestOption) *Narrator {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Narrator{client: anthropic.NewClient(opts...), model: model}
}

// WithGlossary appends g to the system prompt of every later request.
func (n *Narrator) WithGlossary(g *Glossary) *Narrator {
	n.glossary = g
	return n
}

func (n *Narrator) Narrate(ctx context.Context, res *engine.Result) (string, Usage, error) {
	systemPrompt, userPrompt := BuildPrompts(res)
	if extra := n.glossary.Prompt(); extra != "" {
		systemPrompt += "\n\n" + extra
	}

	message, err := n.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(n.model),
		MaxTokens: maxNarrativeTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm narrative size=%d tokens_in=%d tokens_out=%d", len(block.Text), usage.InputTokens, usage.OutputTokens)
			return strings.TrimSpace(block.Text), usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// BuildPrompts renders the run's computed facts. Unavailable trend sections
// are stated as unavailable so the model does not fill them in.
func BuildPrompts(res *engine.Result) (string, string) {
	system := strings.Join([]string{
		"You write a short executive summary of a monthly chronic circuit report for network operations leadership.",
		"Use only the facts provided. Do not invent circuits, numbers or causes.",
		"If a comparison is marked unavailable, say so briefly instead of guessing.",
		"Write 3 to 6 sentences of plain prose, no headings, no bullet lists.",
	}, "\n")

	var b strings.Builder
	md := res.Metadata
	c := res.Counts
	fmt.Fprintf(&b, "Reporting period: %s\n", md.Period.Label())
	fmt.Fprintf(&b, "Chronic circuits: total %d, consistent %d, inconsistent %d, new %d, promoted this month %d\n",
		c.TotalChronic, c.Consistent, c.Inconsistent, c.NewChronic, c.Promoted)
	fmt.Fprintf(&b, "Media circuits: %d. Performance watch: 60-day %d, 30-day %d\n", c.Media, c.Watch60, c.Watch30)

	t := res.Trend
	if !t.Available {
		fmt.Fprintf(&b, "Month-over-month comparison: unavailable (%s)\n", t.Reason)
	} else {
		h := t.Headline
		if h.Comparable {
			fmt.Fprintf(&b, "Compared with %s: total chronic %d -> %d, consistent %d -> %d\n",
				t.PriorPeriod.Label(), h.PrevTotalChronic, h.TotalChronic, h.PrevConsistent, h.Consistent)
		} else {
			fmt.Fprintf(&b, "Compared with %s: headline counts unavailable (%s)\n", t.PriorPeriod.Label(), h.Reason)
		}
		for _, s := range t.Sections {
			writeSection(&b, s)
		}
	}

	if len(res.Warnings) > 0 {
		b.WriteString("Data quality notes:\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.String())
		}
	}
	return system, b.String()
}

func writeSection(b *strings.Builder, s domain.TrendSection) {
	fmt.Fprintf(b, "\n[%s]\n", s.Metric)
	if !s.Available {
		fmt.Fprintf(b, "unavailable: %s\n", s.Reason)
		return
	}
	if s.Empty() {
		b.WriteString("no significant movement\n")
		return
	}
	for _, e := range s.Entrants {
		fmt.Fprintf(b, "entered worst list: %s at rank %d (value %.2f)\n", e.CircuitID, e.Rank, e.Value)
	}
	for _, e := range s.Graduates {
		fmt.Fprintf(b, "left worst list: %s (was rank %d)\n", e.CircuitID, e.Rank)
	}
	for _, sh := range s.RankShifts {
		fmt.Fprintf(b, "rank change: %s %d -> %d (%s)\n", sh.CircuitID, sh.PrevRank, sh.Rank, sh.Direction)
	}
	for _, ch := range s.Changes {
		fmt.Fprintf(b, "value change: %s %.2f -> %.2f (%s)\n", ch.CircuitID, ch.PrevValue, ch.Value, ch.Direction)
	}
}
