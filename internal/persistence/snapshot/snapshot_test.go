package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gatherbuddy.app/internal/sim/records"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store := records.NewStore()
	store.Observe(4869, 2, 5000, false)
	store.Observe(4869, 3, 7000, true)
	store.Observe(4904, 2, 12000, false)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := FromStore(store, "abc", now)
	if snap.Header.Rows != 5 || len(snap.Rows) != 5 {
		t.Fatalf("rows=%d header=%+v", len(snap.Rows), snap.Header)
	}
	if snap.Rows[0].Fish != 4869 || snap.Rows[0].Bait != 0 || snap.Rows[2].Bait != 3 {
		t.Fatalf("rows not ordered: %+v", snap.Rows)
	}

	dir := t.TempDir()
	path := PathFor(dir, now)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header != snap.Header || len(got.Rows) != len(snap.Rows) {
		t.Fatalf("header=%+v rows=%d", got.Header, len(got.Rows))
	}

	restored := records.NewStore()
	if n := got.Apply(restored); n != 5 {
		t.Fatalf("applied=%d", n)
	}
	obs := restored.Snapshot(4869, 3)
	if !obs.HasBait || obs.Bait.MinChum != 7000 || obs.All.Min != 5000 || obs.All.MaxChum != 7000 {
		t.Fatalf("restored=%+v", obs)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if Latest(dir) != "" {
		t.Fatalf("empty dir should have no snapshot")
	}
	for _, name := range []string{"records-100.snap.zst", "records-900.snap.zst", "records-x.snap.zst", "other-1000.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := Latest(dir); filepath.Base(got) != "records-900.snap.zst" {
		t.Fatalf("Latest=%s", got)
	}
}
