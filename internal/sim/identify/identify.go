package identify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"gatherbuddy.app/internal/sim/catalogs"
)

type entry struct {
	name   string
	target *catalogs.Target
}

// Identificator resolves free text to catalog targets: numeric id, exact name, unique
// prefix, substring, then a bounded edit distance.
type Identificator struct {
	byKind map[catalogs.Kind][]entry
	exact  map[catalogs.Kind]map[string]*catalogs.Target
}

func New(c *catalogs.Catalogs) *Identificator {
	id := &Identificator{
		byKind: map[catalogs.Kind][]entry{},
		exact:  map[catalogs.Kind]map[string]*catalogs.Target{},
	}
	for _, kind := range []catalogs.Kind{catalogs.KindItem, catalogs.KindFish} {
		exact := map[string]*catalogs.Target{}
		var entries []entry
		for _, t := range c.Targets(kind) {
			n := Normalise(t.Name)
			if n == "" {
				continue
			}
			// Only gatherable items are interesting.
			if t.LocationCount() == 0 && kind == catalogs.KindItem {
				continue
			}
			if _, dup := exact[n]; !dup {
				exact[n] = t
			}
			entries = append(entries, entry{name: n, target: t})
		}
		id.exact[kind] = exact
		id.byKind[kind] = entries
	}
	return id
}

func (id *Identificator) Identify(text string, kind catalogs.Kind) (*catalogs.Target, bool) {
	q := Normalise(text)
	if q == "" {
		return nil, false
	}
	if n, err := strconv.ParseUint(q, 10, 32); err == nil {
		for _, e := range id.byKind[kind] {
			if uint64(e.target.ID) == n {
				return e.target, true
			}
		}
	}
	if t, ok := id.exact[kind][q]; ok {
		return t, true
	}

	entries := id.byKind[kind]
	var prefix, substr []*catalogs.Target
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.name, q):
			prefix = append(prefix, e.target)
		case strings.Contains(e.name, q):
			substr = append(substr, e.target)
		}
	}
	if t := shortest(prefix); t != nil {
		return t, true
	}
	if t := shortest(substr); t != nil {
		return t, true
	}

	if len(q) < 3 {
		return nil, false
	}
	var (
		best     *catalogs.Target
		bestDist = -1
	)
	for _, e := range entries {
		dist := levenshtein.ComputeDistance(q, e.name)
		if dist > limit(len(e.name)) {
			continue
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && e.target.ID < best.ID) {
			best, bestDist = e.target, dist
		}
	}
	return best, best != nil
}

func shortest(in []*catalogs.Target) *catalogs.Target {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(i, j int) bool {
		if len(in[i].Name) != len(in[j].Name) {
			return len(in[i].Name) < len(in[j].Name)
		}
		return in[i].ID < in[j].ID
	})
	return in[0]
}

func limit(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 10:
		return 2
	default:
		return 3
	}
}

// Normalise lower-cases and collapses punctuation and whitespace to single spaces.
func Normalise(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	var b strings.Builder
	lastSpace := false
	for _, r := range raw {
		switch {
		case r == ' ' || r == '\t' || r == '-' || r == '_' || r == '\'':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
