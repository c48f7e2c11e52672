package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher holds the naming rules that classify circuits by identifier alone.
type Matcher struct {
	testPrefix  string
	testVendor  string
	media       *regexp.Regexp
	placeholder *regexp.Regexp
}

type MatcherOptions struct {
	TestPrefix         string
	TestVendorMarker   string
	MediaPattern       string
	PlaceholderPattern string
}

func NewMatcher(opts MatcherOptions) (*Matcher, error) {
	m := &Matcher{
		testPrefix: strings.TrimSpace(opts.TestPrefix),
		testVendor: strings.ToLower(strings.TrimSpace(opts.TestVendorMarker)),
	}
	if p := strings.TrimSpace(opts.MediaPattern); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("media pattern: %w", err)
		}
		m.media = re
	}
	if p := strings.TrimSpace(opts.PlaceholderPattern); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("placeholder pattern: %w", err)
		}
		m.placeholder = re
	}
	return m, nil
}

// IsTestCircuit reports whether a row belongs to a test circuit, either by the
// reserved identifier prefix or by a vendor label containing the test marker.
func (m *Matcher) IsTestCircuit(rawID, vendor string) bool {
	if m == nil {
		return false
	}
	if m.testPrefix != "" && strings.HasPrefix(strings.TrimSpace(rawID), m.testPrefix) {
		return true
	}
	return m.testVendor != "" && strings.Contains(strings.ToLower(vendor), m.testVendor)
}

func (m *Matcher) IsMedia(rawID string) bool {
	if m == nil || m.media == nil {
		return false
	}
	return m.media.MatchString(strings.TrimSpace(rawID))
}

func (m *Matcher) IsPlaceholder(id string) bool {
	if m == nil || m.placeholder == nil {
		return false
	}
	return m.placeholder.MatchString(strings.TrimSpace(id))
}
