package identity

import "testing"

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"091NOID1143035717419_889599", "091NOID1143035717419"},
		{"091NOID1143035717419_889621", "091NOID1143035717419"},
		{"VID-1583", "VID-1583"},
		{"500335805-CH1/EXTRA", "500335805"},
		{"500335805", "500335805"},
		{"  SR216187  ", "SR216187"},
		{"HI/ADM/00697867", "HI"},
		{"PTH TOK EPL 90030025", "PTH"},
		{"IST6041E#3_010G", "IST6041E#3"},
		{"SSO-JBTKRHS002F-DWDM10", "SSO-JBTKRHS002F-DWDM10"},
		{"AB12-345", "AB12-345"},
		{"X123-A", "X123"},
		{"123-A", "123"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CanonicalID(tt.raw); got != tt.want {
			t.Errorf("CanonicalID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCanonicalIDIdempotent(t *testing.T) {
	inputs := []string{
		"091NOID1143035717419_889599",
		"500335805-CH1/EXTRA",
		"VID-1583",
		"a_b/c d-e",
		"999-888-777",
		"12-34",
		"LD017936 / backup",
		"CID_TEST_001",
		"-",
		"___",
	}
	for _, in := range inputs {
		once := CanonicalID(in)
		if twice := CanonicalID(once); twice != once {
			t.Errorf("CanonicalID not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(MatcherOptions{
		TestPrefix:         "CID_TEST",
		TestVendorMarker:   "test",
		MediaPattern:       `^VID-\d+`,
		PlaceholderPattern: `^CIRCUIT_[A-Z]+$`,
	})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	if !m.IsTestCircuit("CID_TEST_01", "Cirion") {
		t.Fatal("expected reserved prefix to mark test circuit")
	}
	if !m.IsTestCircuit("500335805", "Vendor TEST Lab") {
		t.Fatal("expected vendor marker to match case-insensitively")
	}
	if m.IsTestCircuit("500335805", "Cirion") {
		t.Fatal("unexpected test match for production circuit")
	}
	if !m.IsMedia("VID-1583") || m.IsMedia("500335805") {
		t.Fatal("media pattern mismatch")
	}
	if !m.IsPlaceholder("CIRCUIT_A") || m.IsPlaceholder("SR216187") {
		t.Fatal("placeholder pattern mismatch")
	}
}

func TestNewMatcherRejectsBadPattern(t *testing.T) {
	if _, err := NewMatcher(MatcherOptions{MediaPattern: "("}); err == nil {
		t.Fatal("expected error for invalid media pattern")
	}
}
