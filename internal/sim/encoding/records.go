package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"gatherbuddy.app/internal/sim/records"
)

const exportVersion = 1

var ErrBadExport = errors.New("bad record export")

// Entry is one bite window in an export code. Bait 0 is the aggregate row.
type Entry struct {
	Fish  records.FishID
	Bait  records.BaitID
	Times records.Times
}

// EncodeRecords packs entries into a short base64 string meant for pasting between
// users. Each entry is six uvarints: fish, bait, min, max, min chum, max chum.
func EncodeRecords(entries []Entry) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}

	buf.WriteByte(exportVersion)
	put(uint64(len(entries)))
	for _, e := range entries {
		put(uint64(e.Fish))
		put(uint64(e.Bait))
		put(uint64(e.Times.Min))
		put(uint64(e.Times.Max))
		put(uint64(e.Times.MinChum))
		put(uint64(e.Times.MaxChum))
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRecords(b64 string) ([]Entry, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	if len(raw) == 0 || raw[0] != exportVersion {
		return nil, fmt.Errorf("%w: unknown version", ErrBadExport)
	}
	i := 1
	next := func(limit uint64) (uint64, error) {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return 0, fmt.Errorf("%w: bad varint at %d", ErrBadExport, i)
		}
		if v > limit {
			return 0, fmt.Errorf("%w: value %d too large at %d", ErrBadExport, v, i)
		}
		i += n
		return v, nil
	}

	count, err := next(1 << 20)
	if err != nil {
		return nil, err
	}
	// Six varints per entry, one byte each at the least.
	out := make([]Entry, 0, min(count, uint64(len(raw)/6)))
	for k := uint64(0); k < count; k++ {
		var v [6]uint64
		for j := range v {
			limit := uint64(0xFFFF)
			if j < 2 {
				limit = 0xFFFFFFFF
			}
			if v[j], err = next(limit); err != nil {
				return nil, err
			}
		}
		e := Entry{
			Fish: records.FishID(v[0]),
			Bait: records.BaitID(v[1]),
			Times: records.Times{
				Min:     uint16(v[2]),
				Max:     uint16(v[3]),
				MinChum: uint16(v[4]),
				MaxChum: uint16(v[5]),
			},
		}
		if !validPair(e.Times.Min, e.Times.Max) || !validPair(e.Times.MinChum, e.Times.MaxChum) {
			return nil, fmt.Errorf("%w: fish %d bait %d has inverted bounds %+v", ErrBadExport, e.Fish, e.Bait, e.Times)
		}
		out = append(out, e)
	}
	if i != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadExport, len(raw)-i)
	}
	return out, nil
}

// validPair holds when both bounds are unset or min <= max.
func validPair(lo, hi uint16) bool {
	if lo == records.NoBound || hi == records.NoBound {
		return lo == hi
	}
	return lo <= hi
}

// Entries lists every row of store, aggregate rows first within each fish.
func Entries(store *records.Store) []Entry {
	var out []Entry
	store.Each(func(fish records.FishID, ft records.FishTimes) {
		out = append(out, Entry{Fish: fish, Times: ft.All})
		baits := make([]records.BaitID, 0, len(ft.Data))
		for bait := range ft.Data {
			baits = append(baits, bait)
		}
		sort.Slice(baits, func(i, j int) bool { return baits[i] < baits[j] })
		for _, bait := range baits {
			out = append(out, Entry{Fish: fish, Bait: bait, Times: ft.Data[bait]})
		}
	})
	return out
}
