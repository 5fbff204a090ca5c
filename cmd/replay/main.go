package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	persistlog "gatherbuddy.app/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		command = flag.String("command", "", "only count requests of this command (optional)")
		outcome = flag.String("outcome", "", "only count requests with this outcome (optional)")
		verbose = flag.Bool("v", false, "print every matching request")
	)
	flag.Parse()

	files, err := persistlog.RequestFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list request logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no request logs under", *dataDir)
		os.Exit(1)
	}

	var s summary
	f := filter{command: strings.TrimSpace(*command), outcome: strings.TrimSpace(*outcome)}
	for _, path := range files {
		entries, err := persistlog.ReadRequests(path)
		if err != nil {
			// A file still being written ends mid-frame; keep what decoded.
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		}
		for _, e := range entries {
			if !f.match(e) {
				continue
			}
			s.add(e)
			if *verbose {
				printEntry(os.Stdout, e)
			}
		}
	}
	s.write(os.Stdout, len(files))
}

type filter struct {
	command string
	outcome string
}

func (f filter) match(e persistlog.RequestEntry) bool {
	if f.command != "" && !strings.EqualFold(f.command, e.Command) {
		return false
	}
	if f.outcome != "" && f.outcome != e.Outcome {
		return false
	}
	return true
}

type actionCount struct {
	fired   int
	skipped int
}

type summary struct {
	total     int
	commands  map[string]int
	outcomes  map[string]int
	actions   map[string]*actionCount
	locations map[uint32]int
}

func (s *summary) add(e persistlog.RequestEntry) {
	if s.commands == nil {
		s.commands = map[string]int{}
		s.outcomes = map[string]int{}
		s.actions = map[string]*actionCount{}
		s.locations = map[uint32]int{}
	}
	s.total++
	s.commands[e.Command]++
	s.outcomes[e.Outcome]++
	if e.Location != 0 {
		s.locations[e.Location]++
	}
	for _, a := range e.Actions {
		c := s.actions[a.Action]
		if c == nil {
			c = &actionCount{}
			s.actions[a.Action] = c
		}
		if a.Fired {
			c.fired++
		} else {
			c.skipped++
		}
	}
}

func (s *summary) write(w io.Writer, files int) {
	fmt.Fprintf(w, "requests=%d files=%d\n", s.total, files)
	for _, k := range sortedKeys(s.commands) {
		fmt.Fprintf(w, "command %-12s %d\n", k, s.commands[k])
	}
	for _, k := range sortedKeys(s.outcomes) {
		fmt.Fprintf(w, "outcome %-20s %d\n", k, s.outcomes[k])
	}
	names := make([]string, 0, len(s.actions))
	for k := range s.actions {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		c := s.actions[k]
		fmt.Fprintf(w, "action %-10s fired=%d skipped=%d\n", k, c.fired, c.skipped)
	}
	locs := make([]uint32, 0, len(s.locations))
	for id := range s.locations {
		locs = append(locs, id)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	for _, id := range locs {
		fmt.Fprintf(w, "location %d %d\n", id, s.locations[id])
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func printEntry(w io.Writer, e persistlog.RequestEntry) {
	fmt.Fprintf(w, "%s %s %q -> %s", e.Time.Format("2006-01-02T15:04:05.000Z"), e.Command, e.Input, e.Outcome)
	if e.Location != 0 {
		fmt.Fprintf(w, " location=%d", e.Location)
	}
	if e.Error != "" {
		fmt.Fprintf(w, " error=%q", e.Error)
	}
	fmt.Fprintln(w)
}
