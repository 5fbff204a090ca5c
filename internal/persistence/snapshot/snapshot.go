package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"gatherbuddy.app/internal/sim/records"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	CatalogDigest string `json:"catalog_digest"`
	CreatedMs     int64  `json:"created_ms"`
	Rows          int    `json:"rows"`
}

// Row is one stored bite window. Bait 0 is the aggregate over all baits.
type Row struct {
	Fish  records.FishID
	Bait  records.BaitID
	Times records.Times
}

type SnapshotV1 struct {
	Header Header
	Rows   []Row
}

// FromStore copies every row of store in (fish, bait) order.
func FromStore(store *records.Store, digest string, now time.Time) SnapshotV1 {
	var rows []Row
	store.Each(func(fish records.FishID, ft records.FishTimes) {
		rows = append(rows, Row{Fish: fish, Bait: 0, Times: ft.All})
		for bait, t := range ft.Data {
			rows = append(rows, Row{Fish: fish, Bait: bait, Times: t})
		}
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Fish != rows[j].Fish {
			return rows[i].Fish < rows[j].Fish
		}
		return rows[i].Bait < rows[j].Bait
	})
	return SnapshotV1{
		Header: Header{Version: Version, CatalogDigest: digest, CreatedMs: now.UnixMilli(), Rows: len(rows)},
		Rows:   rows,
	}
}

// Apply merges the snapshot into store and returns the number of rows applied.
func (s SnapshotV1) Apply(store *records.Store) int {
	for _, r := range s.Rows {
		store.Put(r.Fish, r.Bait, r.Times)
	}
	return len(s.Rows)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The JSON header line is for humans; gob carries it again.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// PathFor names the snapshot file written at now under dir.
func PathFor(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("records-%d.snap.zst", now.UnixMilli()))
}

// Latest returns the newest snapshot under dir, or "" if there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestMs int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "records-") || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "records-"), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || ms > bestMs {
			best, bestMs = filepath.Join(dir, name), ms
		}
	}
	return best
}
