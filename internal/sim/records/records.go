package records

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type FishID uint32
type BaitID uint32

// Bounds are milliseconds since the bite window opened.
const (
	NoBound  uint16 = 0xFFFF
	MaxBound uint16 = 0xFFFE
)

// Times holds the earliest and latest observed bite for normal casts and for casts
// under Chum. A bound equal to NoBound has not been observed.
type Times struct {
	Min     uint16 `json:"min"`
	Max     uint16 `json:"max"`
	MinChum uint16 `json:"min_chum"`
	MaxChum uint16 `json:"max_chum"`
}

func EmptyTimes() Times {
	return Times{Min: NoBound, Max: NoBound, MinChum: NoBound, MaxChum: NoBound}
}

func (t Times) Empty() bool {
	return t.Max == NoBound && t.MaxChum == NoBound
}

// Observe widens the normal or chum pair to include ms.
func (t *Times) Observe(ms uint32, chum bool) {
	v := MaxBound
	if ms < uint32(MaxBound) {
		v = uint16(ms)
	}
	lo, hi := &t.Min, &t.Max
	if chum {
		lo, hi = &t.MinChum, &t.MaxChum
	}
	if *lo == NoBound || v < *lo {
		*lo = v
	}
	if *hi == NoBound || v > *hi {
		*hi = v
	}
}

// Merge widens t by every observed bound of o.
func (t *Times) Merge(o Times) {
	t.Min = MergeMin(t.Min, o.Min)
	t.Max = MergeMax(t.Max, o.Max)
	t.MinChum = MergeMin(t.MinChum, o.MinChum)
	t.MaxChum = MergeMax(t.MaxChum, o.MaxChum)
}

// WithChumBounds returns a view of t whose normal pair is its chum pair.
func WithChumBounds(t Times) Times {
	t.Min = t.MinChum
	t.Max = t.MaxChum
	return t
}

// MergeMin is min over observed bounds; NoBound only survives when both are unset.
func MergeMin(a, b uint16) uint16 {
	switch {
	case a == NoBound:
		return b
	case b == NoBound:
		return a
	case a < b:
		return a
	}
	return b
}

// MergeMax is max over observed bounds; NoBound only survives when both are unset.
func MergeMax(a, b uint16) uint16 {
	switch {
	case a == NoBound:
		return b
	case b == NoBound:
		return a
	case a > b:
		return a
	}
	return b
}

// FishTimes is the per-fish history: aggregated over all bait and split per bait.
type FishTimes struct {
	All  Times            `json:"all"`
	Data map[BaitID]Times `json:"data"`
}

func NewFishTimes() FishTimes {
	return FishTimes{All: EmptyTimes(), Data: map[BaitID]Times{}}
}

// Observation is a detached copy of the history relevant to one cast.
type Observation struct {
	All     Times
	Bait    Times
	HasBait bool
}

type Effects uint32

const (
	Valid Effects = 1 << iota
	Chum
	Intuition
	Snagging
	FishEyes
	Patience
	Patience2
	Collectible
)

func (e Effects) Has(f Effects) bool { return e&f == f }

var effectNames = map[string]Effects{
	"chum":        Chum,
	"intuition":   Intuition,
	"snagging":    Snagging,
	"fish_eyes":   FishEyes,
	"patience":    Patience,
	"patience2":   Patience2,
	"collectible": Collectible,
}

// ParseEffects folds effect names into a flag set. Valid is always included.
func ParseEffects(names []string) (Effects, error) {
	e := Valid
	for _, n := range names {
		f, ok := effectNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return e, fmt.Errorf("unknown effect %q", n)
		}
		e |= f
	}
	return e, nil
}

// Record describes the cast currently in progress.
type Record struct {
	BaitID  BaitID
	Effects Effects
}

// Store is the long-lived catch history. Readers take snapshots so that a min/max pair
// is never observed half-updated.
type Store struct {
	mu    sync.RWMutex
	times map[FishID]FishTimes
}

func NewStore() *Store {
	return &Store{times: map[FishID]FishTimes{}}
}

func (s *Store) Snapshot(fish FishID, bait BaitID) Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs := Observation{All: EmptyTimes(), Bait: EmptyTimes()}
	ft, ok := s.times[fish]
	if !ok {
		return obs
	}
	obs.All = ft.All
	if bt, ok := ft.Data[bait]; ok {
		obs.Bait = bt
		obs.HasBait = true
	}
	return obs
}

// Observe records a bite after ms milliseconds and returns the updated aggregate and
// bait-specific entries.
func (s *Store) Observe(fish FishID, bait BaitID, ms uint32, chum bool) (all Times, baitTimes Times) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft, ok := s.times[fish]
	if !ok {
		ft = NewFishTimes()
	}
	ft.All.Observe(ms, chum)
	bt, ok := ft.Data[bait]
	if !ok {
		bt = EmptyTimes()
	}
	bt.Observe(ms, chum)
	ft.Data[bait] = bt
	s.times[fish] = ft
	return ft.All, bt
}

// Put merges stored rows back into the history. Bait 0 is the aggregate row.
func (s *Store) Put(fish FishID, bait BaitID, t Times) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft, ok := s.times[fish]
	if !ok {
		ft = NewFishTimes()
	}
	if bait == 0 {
		ft.All.Merge(t)
	} else {
		bt, ok := ft.Data[bait]
		if !ok {
			bt = EmptyTimes()
		}
		bt.Merge(t)
		ft.Data[bait] = bt
	}
	s.times[fish] = ft
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.times)
}

// Each visits copies of every entry in fish id order.
func (s *Store) Each(fn func(fish FishID, ft FishTimes)) {
	s.mu.RLock()
	ids := make([]FishID, 0, len(s.times))
	for id := range s.times {
		ids = append(ids, id)
	}
	copies := make(map[FishID]FishTimes, len(s.times))
	for _, id := range ids {
		ft := s.times[id]
		data := make(map[BaitID]Times, len(ft.Data))
		for b, t := range ft.Data {
			data[b] = t
		}
		copies[id] = FishTimes{All: ft.All, Data: data}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(id, copies[id])
	}
}
