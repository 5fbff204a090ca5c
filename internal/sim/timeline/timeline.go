package timeline

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timestamp is server time in milliseconds since the Unix epoch.
type Timestamp int64

const (
	Epoch        Timestamp = 0
	MinTimestamp Timestamp = math.MinInt64
	MaxTimestamp Timestamp = math.MaxInt64
)

const (
	EorzeaHourMs   int64 = 175_000
	EorzeaDayMs    int64 = 24 * EorzeaHourMs
	EorzeaMinuteMs int64 = EorzeaHourMs / 60
)

func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

func (t Timestamp) Time() time.Time { return time.UnixMilli(int64(t)).UTC() }

func (t Timestamp) AddMilliseconds(ms int64) Timestamp { return t + Timestamp(ms) }

func (t Timestamp) AddEorzeaHours(h int64) Timestamp { return t + Timestamp(h*EorzeaHourMs) }

// EorzeaHour is the hour of the Eorzea day (0-23) at t.
func (t Timestamp) EorzeaHour() int {
	ms := int64(t) % EorzeaDayMs
	if ms < 0 {
		ms += EorzeaDayMs
	}
	return int(ms / EorzeaHourMs)
}

// EorzeaDayStart is the server time at which the Eorzea day containing t began.
func (t Timestamp) EorzeaDayStart() Timestamp {
	ms := int64(t) % EorzeaDayMs
	if ms < 0 {
		ms += EorzeaDayMs
	}
	return t - Timestamp(ms)
}

// Interval is a half-open window [Start, End) of server time.
type Interval struct {
	Start Timestamp
	End   Timestamp
}

var (
	Always  = Interval{Start: MinTimestamp, End: MaxTimestamp}
	Never   = Interval{Start: MaxTimestamp, End: MaxTimestamp}
	Invalid = Interval{Start: MinTimestamp, End: MinTimestamp}
)

func NewInterval(start, end Timestamp) (Interval, error) {
	if start > end {
		return Invalid, fmt.Errorf("interval start %d after end %d", start, end)
	}
	return Interval{Start: start, End: end}, nil
}

func (i Interval) IsAlways() bool  { return i == Always }
func (i Interval) IsNever() bool   { return i == Never }
func (i Interval) IsInvalid() bool { return i == Invalid }

// IsConcrete reports whether i is a real window rather than one of the sentinels.
func (i Interval) IsConcrete() bool {
	return !i.IsAlways() && !i.IsNever() && !i.IsInvalid()
}

func (i Interval) Contains(t Timestamp) bool {
	switch {
	case i.IsAlways():
		return true
	case i.IsNever(), i.IsInvalid():
		return false
	}
	return i.Start <= t && t < i.End
}

// Duration is the window length in milliseconds; sentinels report 0 except Always.
func (i Interval) Duration() int64 {
	switch {
	case i.IsAlways():
		return math.MaxInt64
	case i.IsNever(), i.IsInvalid():
		return 0
	}
	return int64(i.End - i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	if i.IsAlways() {
		return o.IsAlways() || o.IsConcrete()
	}
	if o.IsAlways() {
		return i.IsConcrete()
	}
	if !i.IsConcrete() || !o.IsConcrete() {
		return false
	}
	return i.Start < o.End && o.Start < i.End
}

// Earlier orders windows by start, then by end. Sentinels sort as their bounds.
func (i Interval) Earlier(o Interval) bool {
	if i.Start != o.Start {
		return i.Start < o.Start
	}
	return i.End < o.End
}

func (i Interval) String() string {
	switch {
	case i.IsAlways():
		return "always"
	case i.IsNever():
		return "never"
	case i.IsInvalid():
		return "invalid"
	}
	return fmt.Sprintf("[%s, %s)", i.Start.Time().Format(time.RFC3339), i.End.Time().Format(time.RFC3339))
}

// DurationString renders the real time between from and to, e.g. "1h 03m" or "4m 12s".
// With short set only the two most significant units are kept.
func DurationString(to, from Timestamp, short bool) string {
	ms := int64(to - from)
	if ms < 0 {
		ms = -ms
	}
	secs := ms / 1000
	d := secs / 86400
	h := (secs / 3600) % 24
	m := (secs / 60) % 60
	s := secs % 60

	var parts []string
	switch {
	case d > 0:
		parts = []string{fmt.Sprintf("%dd", d), fmt.Sprintf("%02dh", h), fmt.Sprintf("%02dm", m)}
	case h > 0:
		parts = []string{fmt.Sprintf("%dh", h), fmt.Sprintf("%02dm", m), fmt.Sprintf("%02ds", s)}
	default:
		parts = []string{fmt.Sprintf("%dm", m), fmt.Sprintf("%02ds", s)}
	}
	if short && len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, " ")
}

type Clock interface {
	ServerTime() Timestamp
}

type SystemClock struct{}

func (SystemClock) ServerTime() Timestamp { return FromTime(time.Now()) }

// FixedClock always reports the same instant.
type FixedClock Timestamp

func (c FixedClock) ServerTime() Timestamp { return Timestamp(c) }
