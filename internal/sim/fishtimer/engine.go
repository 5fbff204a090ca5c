package fishtimer

import (
	"math"

	"gatherbuddy.app/internal/sim/records"
	"gatherbuddy.app/internal/sim/timeline"
)

// Sort key layout:
//
//	bits  0-15  latest bite bound (end)
//	bits 16-31  earliest bite bound (start)
//	bit  33     uncaught with the current bait
//	all ones    unavailable
//
// A plain unsigned comparison orders candidates by "bites soonest, ends soonest", keeps
// uncaught fish behind caught ones and puts unavailable fish last.
const (
	UncaughtBit uint64 = 1 << 33
	Unavailable uint64 = math.MaxUint64

	startShift = 16
	boundMask  = 0xFFFF
)

type Restrictions struct {
	Predators         int
	SnaggingRequired  bool
	WeatherRestricted bool
	BigFish           bool
	// Exempt fish ignore uptime windows entirely (ocean fishing).
	Exempt bool
}

type Candidate struct {
	Fish         records.FishID
	Restrictions Restrictions
	Effects      records.Effects
	Observation  records.Observation
	NextWindow   timeline.Interval
}

type Verdict struct {
	Fish            records.FishID
	Available       bool
	Caught          bool
	EffectiveWindow timeline.Interval
	SortKey         uint64
	// Bounds actually used for the key, after the chum substitution.
	All  records.Times
	Bait records.Times
}

type Engine struct {
	// ShowUptimes exposes the next window; when false every window is reported as Always.
	ShowUptimes bool
}

func PackSortKey(start, end uint16) uint64 {
	return uint64(start)<<startShift | uint64(end)
}

// UnpackSortKey splits the timing part of a key.
func UnpackSortKey(key uint64) (start, end uint16) {
	return uint16((key >> startShift) & boundMask), uint16(key & boundMask)
}

// Evaluate is pure: it only reads c and never touches the stored history.
func (e Engine) Evaluate(c Candidate, now timeline.Timestamp) Verdict {
	v := Verdict{Fish: c.Fish}

	all := c.Observation.All
	bait := records.EmptyTimes()
	if c.Observation.HasBait {
		bait = c.Observation.Bait
		v.Caught = true
	}

	if c.Effects.Has(records.Chum) {
		all = records.WithChumBounds(all)
		bait = records.WithChumBounds(bait)
	}
	v.All, v.Bait = all, bait

	v.SortKey = PackSortKey(records.MergeMin(all.Min, bait.Min), records.MergeMax(all.Max, bait.Max))
	if !v.Caught {
		v.SortKey |= UncaughtBit
	}

	v.Available = true
	if c.Restrictions.Predators > 0 && !c.Effects.Has(records.Intuition) {
		v.Available = false
	}

	if c.Restrictions.Exempt {
		v.EffectiveWindow = timeline.Always
	} else {
		v.EffectiveWindow = timeline.Always
		if e.ShowUptimes && !c.NextWindow.IsNever() && !c.NextWindow.IsInvalid() {
			v.EffectiveWindow = c.NextWindow
		}
		needsWindow := !c.Effects.Has(records.FishEyes) || c.Restrictions.BigFish || c.Restrictions.WeatherRestricted
		if !c.NextWindow.IsAlways() && now < c.NextWindow.Start && needsWindow {
			v.Available = false
		}
	}

	if c.Restrictions.SnaggingRequired && !c.Effects.Has(records.Snagging) {
		v.Available = false
	}

	if !v.Available {
		v.SortKey = Unavailable
	}
	return v
}
