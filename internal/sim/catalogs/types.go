package catalogs

import (
	"math"
	"strings"

	"gatherbuddy.app/internal/sim/timeline"
)

type Kind int

const (
	KindItem Kind = iota + 1
	KindFish
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindFish:
		return "fish"
	}
	return "unknown"
}

type GatheringType int

const (
	Unknown GatheringType = iota
	Mining
	Quarrying
	Logging
	Harvesting
	Spearfishing
	Fishing
	Miner
	Botanist
	Fisher
)

var gatheringTypeNames = map[GatheringType]string{
	Unknown:      "unknown",
	Mining:       "mining",
	Quarrying:    "quarrying",
	Logging:      "logging",
	Harvesting:   "harvesting",
	Spearfishing: "spearfishing",
	Fishing:      "fishing",
	Miner:        "miner",
	Botanist:     "botanist",
	Fisher:       "fisher",
}

func (g GatheringType) String() string {
	if s, ok := gatheringTypeNames[g]; ok {
		return s
	}
	return "unknown"
}

func ParseGatheringType(s string) GatheringType {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range gatheringTypeNames {
		if name == s {
			return g
		}
	}
	switch s {
	case "min", "mnr":
		return Miner
	case "btn", "bot":
		return Botanist
	case "fsh":
		return Fisher
	}
	return Unknown
}

// ToGroup maps a node or spot type onto the job that gathers it.
func (g GatheringType) ToGroup() GatheringType {
	switch g {
	case Mining, Quarrying, Miner:
		return Miner
	case Logging, Harvesting, Botanist:
		return Botanist
	case Spearfishing, Fishing, Fisher:
		return Fisher
	}
	return Unknown
}

// CoordUnset is the integral map coordinate used when a position is unknown (1.00).
const CoordUnset = 100

type Territory struct {
	ID         uint32
	Name       string
	SizeFactor float32
	Aetherytes []*Aetheryte
}

type Aetheryte struct {
	ID        uint32
	Name      string
	Territory *Territory
	X         int
	Y         int
}

// MapDistance is the Euclidean distance in integral map units from the aetheryte to (x, y)
// on territory. Aetherytes in other territories are infinitely far away.
func (a *Aetheryte) MapDistance(territory uint32, x, y int) float64 {
	if a == nil || a.Territory == nil || a.Territory.ID != territory {
		return math.Inf(1)
	}
	dx := float64(a.X - x)
	dy := float64(a.Y - y)
	return math.Sqrt(dx*dx + dy*dy)
}

// HourWindow is a repeating daily uptime in Eorzea hours.
type HourWindow struct {
	StartHour int `json:"start_hour"`
	Hours     int `json:"hours"`
}

type Schedule []HourWindow

// NextUptime returns the current or next window of the schedule. An empty schedule is
// always up.
func (s Schedule) NextUptime(now timeline.Timestamp) timeline.Interval {
	if len(s) == 0 {
		return timeline.Always
	}
	day := now.EorzeaDayStart()
	best := timeline.Never
	for _, w := range s {
		if w.Hours <= 0 {
			continue
		}
		if w.Hours >= 24 {
			return timeline.Always
		}
		for d := int64(-1); d <= 1; d++ {
			start := day + timeline.Timestamp(d*timeline.EorzeaDayMs+int64(w.StartHour)*timeline.EorzeaHourMs)
			end := start.AddEorzeaHours(int64(w.Hours))
			if end <= now {
				continue
			}
			iv := timeline.Interval{Start: start, End: end}
			if iv.Earlier(best) {
				best = iv
			}
			break
		}
	}
	return best
}

type LocationKind int

const (
	LocationNode LocationKind = iota + 1
	LocationSpot
)

type Location struct {
	ID            uint32
	Name          string
	Kind          LocationKind
	GatheringType GatheringType
	Territory     *Territory
	X             int
	Y             int
	Aetheryte     *Aetheryte
	Schedule      Schedule
	Targets       []*Target
}

func (l *Location) HasCoordinates() bool {
	return l != nil && l.X != CoordUnset && l.Y != CoordUnset
}

// IsPeriodic reports whether the location is a timed gathering node.
func (l *Location) IsPeriodic() bool {
	return l != nil && l.Kind == LocationNode && len(l.Schedule) > 0
}

func (l *Location) NextUptime(now timeline.Timestamp) timeline.Interval {
	if !l.IsPeriodic() {
		return timeline.Always
	}
	return l.Schedule.NextUptime(now)
}

type Snagging int

const (
	SnaggingNone Snagging = iota
	SnaggingRequired
)

type Fish struct {
	Predators         []uint32
	Snagging          Snagging
	WeatherRestricted bool
	BigFish           bool
	OceanFish         bool
	Schedule          Schedule
}

// Target is an item or fish the player wants to gather.
type Target struct {
	ID        uint32
	Kind      Kind
	Name      string
	Fish      *Fish
	Locations []*Location
}

func (t *Target) String() string {
	if t == nil {
		return "<none>"
	}
	return t.Name
}

func (t *Target) LocationCount() int {
	if t == nil {
		return 0
	}
	return len(t.Locations)
}

// LocationSet is an unordered set of locations keyed by identity.
type LocationSet map[*Location]struct{}

func (s LocationSet) Add(l *Location) { s[l] = struct{}{} }

func (s LocationSet) Has(l *Location) bool {
	_, ok := s[l]
	return ok
}

func (s LocationSet) Clear() {
	for l := range s {
		delete(s, l)
	}
}
