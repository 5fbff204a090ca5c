package recorddb

import (
	"context"
	"path/filepath"
	"testing"

	"gatherbuddy.app/internal/sim/records"
)

func TestRecordAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	src := records.NewStore()
	all, bait := src.Observe(4869, 2585, 9000, false)
	db.Record(4869, 0, all)
	db.Record(4869, 2585, bait)
	all, bait = src.Observe(4869, 2585, 12000, true)
	db.Record(4869, 0, all)
	db.Record(4869, 2585, bait)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Writes after close are ignored.
	db.Record(1, 1, records.EmptyTimes())

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	dst := records.NewStore()
	n, err := db.LoadInto(context.Background(), dst)
	if err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d want 2", n)
	}
	got := dst.Snapshot(4869, 2585)
	want := src.Snapshot(4869, 2585)
	if got.All != want.All || got.Bait != want.Bait || !got.HasBait {
		t.Fatalf("loaded %+v want %+v", got, want)
	}
}

func TestSaveAllAndMeta(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "records.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	src := records.NewStore()
	src.Observe(7694, 28634, 20000, false)
	src.Observe(7694, 27590, 25000, false)
	if err := db.SaveAll(ctx, src); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	dst := records.NewStore()
	n, err := db.LoadInto(ctx, dst)
	if err != nil || n != 3 {
		t.Fatalf("LoadInto n=%d err=%v", n, err)
	}
	if dst.Snapshot(7694, 27590).Bait.Max != 25000 {
		t.Fatalf("bait row lost: %+v", dst.Snapshot(7694, 27590))
	}

	if _, ok, err := db.Meta(ctx, "catalog_digest"); ok || err != nil {
		t.Fatalf("unexpected meta ok=%v err=%v", ok, err)
	}
	if err := db.SetMeta(ctx, "catalog_digest", "abc"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if v, ok, _ := db.Meta(ctx, "catalog_digest"); !ok || v != "abc" {
		t.Fatalf("meta=%q ok=%v", v, ok)
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	s := &DB{ch: make(chan row, 1)}
	s.Record(1, 0, records.EmptyTimes())
	s.Record(2, 0, records.EmptyTimes())
	st := s.Stats()
	if st.Dropped != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats=%+v", st)
	}
	var nilDB *DB
	nilDB.Record(1, 0, records.EmptyTimes())
	if nilDB.Stats() != (Stats{}) {
		t.Fatalf("nil stats")
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFailedWritesCountAsDropped(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "records.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.db.Exec(`DROP TABLE fish_times`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	for i := 1; i <= 3; i++ {
		db.Record(records.FishID(i), 0, records.Times{Min: 1000, Max: 2000, MinChum: records.NoBound, MaxChum: records.NoBound})
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := db.Stats(); st.Dropped != 3 {
		t.Fatalf("stats=%+v", st)
	}
}
