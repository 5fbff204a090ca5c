package records

import (
	"sync"
	"testing"
)

func TestTimesObserve(t *testing.T) {
	tm := EmptyTimes()
	if !tm.Empty() {
		t.Fatalf("fresh times should be empty")
	}
	tm.Observe(5000, false)
	tm.Observe(3000, false)
	tm.Observe(9000, true)
	if tm.Min != 3000 || tm.Max != 5000 {
		t.Fatalf("normal pair mismatch: %+v", tm)
	}
	if tm.MinChum != 9000 || tm.MaxChum != 9000 {
		t.Fatalf("chum pair mismatch: %+v", tm)
	}
	tm.Observe(1_000_000, false)
	if tm.Max != MaxBound {
		t.Fatalf("observation should clamp to MaxBound, got %d", tm.Max)
	}
}

func TestMergeIgnoresUnset(t *testing.T) {
	if got := MergeMin(NoBound, 400); got != 400 {
		t.Fatalf("MergeMin(unset,400)=%d", got)
	}
	if got := MergeMax(700, NoBound); got != 700 {
		t.Fatalf("MergeMax(700,unset)=%d", got)
	}
	if got := MergeMax(NoBound, NoBound); got != NoBound {
		t.Fatalf("both unset should stay unset, got %d", got)
	}
	if got := MergeMin(0, 10); got != 0 {
		t.Fatalf("zero is a real bound, got %d", got)
	}
}

func TestWithChumBoundsLeavesInputAlone(t *testing.T) {
	in := Times{Min: 1, Max: 2, MinChum: 3, MaxChum: 4}
	out := WithChumBounds(in)
	if out.Min != 3 || out.Max != 4 {
		t.Fatalf("chum view mismatch: %+v", out)
	}
	if in.Min != 1 || in.Max != 2 {
		t.Fatalf("input mutated: %+v", in)
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := NewStore()
	obs := s.Snapshot(7, 1)
	if obs.HasBait || !obs.All.Empty() {
		t.Fatalf("unknown fish should have empty snapshot: %+v", obs)
	}
	s.Observe(7, 1, 4000, false)
	s.Observe(7, 2, 6000, false)

	obs = s.Snapshot(7, 1)
	if !obs.HasBait || obs.Bait.Min != 4000 || obs.Bait.Max != 4000 {
		t.Fatalf("bait snapshot mismatch: %+v", obs)
	}
	if obs.All.Min != 4000 || obs.All.Max != 6000 {
		t.Fatalf("aggregate snapshot mismatch: %+v", obs.All)
	}
	if s.Snapshot(7, 3).HasBait {
		t.Fatalf("bait 3 never caught")
	}
}

func TestStorePutAndEach(t *testing.T) {
	s := NewStore()
	s.Put(2, 0, Times{Min: 10, Max: 20, MinChum: NoBound, MaxChum: NoBound})
	s.Put(2, 5, Times{Min: 12, Max: 18, MinChum: NoBound, MaxChum: NoBound})
	s.Put(1, 0, Times{Min: 1, Max: 2, MinChum: NoBound, MaxChum: NoBound})

	var order []FishID
	s.Each(func(id FishID, ft FishTimes) {
		order = append(order, id)
		if id == 2 {
			if ft.All.Min != 10 || ft.Data[5].Max != 18 {
				t.Fatalf("fish 2 mismatch: %+v", ft)
			}
		}
	})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("Each order=%v", order)
	}
}

func TestStoreConcurrentSnapshots(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Observe(1, 1, uint32(1000+j*i), j%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				obs := s.Snapshot(1, 1)
				if obs.HasBait && obs.Bait.Max != NoBound && obs.Bait.Max < obs.Bait.Min {
					t.Errorf("torn pair: %+v", obs.Bait)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestEffectsHas(t *testing.T) {
	e := Chum | Intuition
	if !e.Has(Chum) || !e.Has(Intuition) || e.Has(FishEyes) {
		t.Fatalf("Has mismatch for %b", e)
	}
}

func TestParseEffects(t *testing.T) {
	e, err := ParseEffects([]string{"Chum", " patience2", "fish_eyes"})
	if err != nil {
		t.Fatalf("ParseEffects: %v", err)
	}
	if !e.Has(Valid|Chum|Patience2|FishEyes) || e.Has(Snagging) {
		t.Fatalf("effects=%b", e)
	}
	if _, err := ParseEffects([]string{"haste"}); err == nil {
		t.Fatalf("unknown effect accepted")
	}
	if e, _ := ParseEffects(nil); e != Valid {
		t.Fatalf("empty effects=%b", e)
	}
}
