package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chronicreport/internal/domain"
)

const snapshotPrefix = "snapshot_"

// DirSource stores one JSON snapshot per reporting period in a directory.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// LatestBefore picks by each file's own recorded period, never by file name,
// so a stray file that merely sorts later cannot win.
func (d *DirSource) LatestBefore(ctx context.Context, period domain.Period) (*domain.Snapshot, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoPriorSnapshot, d.Dir)
		}
		return nil, fmt.Errorf("reading snapshot dir: %w", err)
	}

	var candidates []*domain.Snapshot
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.Dir, entry.Name())
		snap, err := readSnapshot(path)
		if err != nil {
			log.Printf("baseline: skipping %s: %v", path, err)
			continue
		}
		if snap.Period.IsZero() || !snap.Period.Before(period) {
			continue
		}
		candidates = append(candidates, snap)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w in %s before %s", ErrNoPriorSnapshot, d.Dir, period)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Period != candidates[j].Period {
			return candidates[j].Period.Before(candidates[i].Period)
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0], nil
}

// SaveSnapshot writes snapshot_<period>.json, replacing an earlier run for the
// same period.
func (d *DirSource) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.Period.IsZero() {
		return fmt.Errorf("snapshot has no period")
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := filepath.Join(d.Dir, snapshotPrefix+snap.Period.String()+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func readSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &snap, nil
}
