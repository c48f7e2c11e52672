package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Glossary holds site vocabulary for the narrative: provider nicknames,
// regional names, how leadership refers to each category.
type Glossary struct {
	Terms []GlossaryTerm `yaml:"terms"`
}

type GlossaryTerm struct {
	Phrase  string `yaml:"phrase"`
	Meaning string `yaml:"meaning"`
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	g.Terms = dedupeTerms(g.Terms)
	return &g, nil
}

// Prompt renders the glossary as a system prompt block. Empty for a nil or
// empty glossary.
func (g *Glossary) Prompt() string {
	if g == nil || len(g.Terms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Glossary (use these meanings when the terms appear):\n")
	for _, t := range g.Terms {
		fmt.Fprintf(&b, "- %s: %s\n", t.Phrase, t.Meaning)
	}
	return strings.TrimRight(b.String(), "\n")
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// dedupeTerms drops blank terms and keeps the first entry per phrase,
// compared case-insensitively.
func dedupeTerms(terms []GlossaryTerm) []GlossaryTerm {
	seen := make(map[string]bool, len(terms))
	out := make([]GlossaryTerm, 0, len(terms))
	for _, t := range terms {
		t.Phrase = strings.TrimSpace(t.Phrase)
		t.Meaning = strings.TrimSpace(t.Meaning)
		key := normalizeTextToken(t.Phrase)
		if key == "" || t.Meaning == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return normalizeTextToken(out[i].Phrase) < normalizeTextToken(out[j].Phrase)
	})
	return out
}
