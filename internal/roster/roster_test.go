package roster

import (
	"os"
	"path/filepath"
	"testing"

	"chronicreport/internal/domain"
	"chronicreport/internal/identity"
)

func TestLoadCanonicalizesIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	content := `regional:
  - "500335805-CH1"
tracked_chronic:
  - "091NOID1143035717419_889599"
watch_30:
  - "W1"
  - "W2"
watch_60:
  - "W2"
frozen:
  consistent:
    - "F1 primary"
  inconsistent:
    - "F2"
  media:
    - "VID-1583"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	r, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.IsRegional("500335805") {
		t.Fatalf("expected canonical regional id")
	}
	if !r.IsTracked("091NOID1143035717419") {
		t.Fatalf("expected canonical tracked id")
	}
	if r.Watch("W1") != domain.Watch30 {
		t.Fatalf("expected W1 on 30-day watch, got %d", r.Watch("W1"))
	}
	if r.Watch("W2") != domain.Watch60 {
		t.Fatalf("expected W2 on 60-day watch, got %d", r.Watch("W2"))
	}
	if r.Watch("X") != domain.WatchNone {
		t.Fatalf("expected no watch for unlisted circuit")
	}

	frozen := r.Frozen()
	want := map[string]domain.Category{
		"F1":       domain.CategoryConsistent,
		"F2":       domain.CategoryInconsistent,
		"VID-1583": domain.CategoryMedia,
	}
	for id, cat := range want {
		if frozen[id] != cat {
			t.Fatalf("frozen[%s] = %q, want %q", id, frozen[id], cat)
		}
	}
}

func TestLoadEmptyPath(t *testing.T) {
	r, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Tracked()) != 0 || len(r.Frozen()) != 0 {
		t.Fatalf("expected empty roster")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("regional: [unterminated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFrozenReturnsCopy(t *testing.T) {
	r := New(File{Frozen: FrozenLegacy{Consistent: []string{"A"}}}, nil)
	m := r.Frozen()
	m["A"] = domain.CategoryMedia
	if r.Frozen()["A"] != domain.CategoryConsistent {
		t.Fatalf("Frozen must not expose internal state")
	}
}

func TestTestCircuitsDropped(t *testing.T) {
	m, err := identity.NewMatcher(identity.MatcherOptions{TestPrefix: "CID_TEST"})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	r := New(File{TrackedChronic: []string{"CID_TEST_01", "A1"}}, m)
	if got := r.Tracked(); len(got) != 1 || got[0] != "A1" {
		t.Fatalf("expected only A1 tracked, got %v", got)
	}
}
