package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gatherbuddy.app/internal/config"
	"gatherbuddy.app/internal/metrics"
	persistlog "gatherbuddy.app/internal/persistence/log"
	"gatherbuddy.app/internal/persistence/recorddb"
	"gatherbuddy.app/internal/persistence/snapshot"
	"gatherbuddy.app/internal/protocol"
	"gatherbuddy.app/internal/sim/actions"
	"gatherbuddy.app/internal/sim/alarms"
	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/communicator"
	"gatherbuddy.app/internal/sim/encoding"
	"gatherbuddy.app/internal/sim/executor"
	"gatherbuddy.app/internal/sim/fishtimer"
	"gatherbuddy.app/internal/sim/identify"
	"gatherbuddy.app/internal/sim/records"
	"gatherbuddy.app/internal/sim/timeline"
	"gatherbuddy.app/internal/sim/uptime"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errBadRequest     = errors.New("bad request")
	errDisabled       = errors.New("disabled by config")
)

type recordSink interface {
	Record(fish records.FishID, bait records.BaitID, t records.Times)
	Stats() recorddb.Stats
}

type requestLog interface {
	WriteRequest(e persistlog.RequestEntry) (string, error)
}

// overlay is the optional websocket side of the host.
type overlay interface {
	communicator.Sink
	Broadcast(v any)
	Waypoint(link communicator.MapLink) error
}

type appDeps struct {
	Log        *log.Logger
	Catalogs   *catalogs.Catalogs
	Config     config.Config
	Clock      timeline.Clock
	Store      *records.Store
	Records    recordSink
	Metrics    *metrics.Metrics
	RequestLog requestLog
	Overlay    overlay

	// SnapshotDir receives record backups; empty disables the backup command.
	SnapshotDir string
}

type player struct {
	territory uint32
	x, z      float32
	known     bool
}

// arriveAt is where a teleport to aeth leaves the player.
func arriveAt(aeth *catalogs.Aetheryte) player {
	sf := aeth.Territory.SizeFactor
	return player{
		territory: aeth.Territory.ID,
		x:         actions.MapToNode(aeth.X, sf),
		z:         actions.MapToNode(aeth.Y, sf),
		known:     true,
	}
}

// app owns the session. Every method runs on the single command goroutine.
type app struct {
	log     *log.Logger
	cats    *catalogs.Catalogs
	cfg     config.Config
	clock   timeline.Clock
	store   *records.Store
	records recordSink
	metrics *metrics.Metrics
	reqLog  requestLog
	overlay overlay
	snapDir string

	ident   *identify.Identificator
	uptimes *uptime.Manager
	alarms  *alarms.Tracker
	comm    *communicator.Communicator
	session *executor.Session
	gate    *actions.Gate
	engine  fishtimer.Engine
	macro   []actions.Action

	player   player
	inDuty   bool
	loggedIn bool
	status   atomic.Pointer[protocol.StatusMsg]
}

func newApp(d appDeps) *app {
	a := &app{
		log:     d.Log,
		cats:    d.Catalogs,
		cfg:     d.Config,
		clock:   d.Clock,
		store:   d.Store,
		records: d.Records,
		metrics: d.Metrics,
		reqLog:  d.RequestLog,
		overlay: d.Overlay,
		snapDir: d.SnapshotDir,
		ident:   identify.New(d.Catalogs),
		uptimes: uptime.New(),
		alarms:  alarms.NewTracker(),
		engine:  fishtimer.Engine{ShowUptimes: d.Config.FishTimer.ShowUptimes},

		loggedIn: true,
	}
	if a.clock == nil {
		a.clock = timeline.SystemClock{}
	}
	if a.store == nil {
		a.store = records.NewStore()
	}

	sinks := communicator.MultiSink{communicator.LogSink{Log: d.Log}}
	if d.Overlay != nil {
		sinks = append(sinks, d.Overlay)
	}
	a.comm = communicator.New(sinks, a.clock)

	a.session = executor.New(executor.Deps{
		Identifier: a.ident,
		Uptimes:    a.uptimes,
		Alarms:     a.alarms,
		Clock:      a.clock,
		Reporter:   a.comm,
	})

	env := actions.Env{
		PlayerTerritoryFn: func() (uint32, bool) { return a.player.territory, a.player.known },
		PlayerPositionFn:  func() (float32, float32, bool) { return a.player.x, a.player.z, a.player.known },
		TeleportFn: func(id uint32) error {
			if aeth, ok := a.cats.Aetherytes[id]; ok {
				a.comm.Print(fmt.Sprintf("Teleporting to %s.", aeth.Name))
				a.player = arriveAt(aeth)
			}
			return nil
		},
		CommandFn: func(c string) error {
			a.comm.Print(c)
			return nil
		},
	}
	if d.Overlay != nil {
		env.WaypointFn = d.Overlay.Waypoint
	}
	a.gate = actions.New(d.Config, env, a.comm)

	a.macro = []actions.Action{actions.ActionTeleport, actions.ActionGearset, actions.ActionFlag}
	if d.Config.Actions.PrintUptime {
		a.macro = append(a.macro, actions.ActionInfo)
	}
	return a
}

const helpText = `commands:
  gather <name|next|alarm>      gather an item
  gatherfish <name|next|alarm>  gather a fish
  gathermin|gatherbtn <name>    gather an item from miner or botanist nodes only
  pick <location id>            gather at a specific node or spot
  teleport|gearset|flag|info    run one follow-up action for the current location
  teleport <territory id>       teleport to the first attuned aetheryte of a territory
  pos <territory> <x> <z>       set the player position (world units)
  duty|login <on|off>           set the player state alarms depend on
  catch <fish> <bait> <ms> [chum]
  alarm <item|fish> <name>      trigger an alarm
  timer <spot id> <bait> [effects...]
  export | import <code>        share fish records
  backup                        write a fish record snapshot
  status`

// execute runs one command line. Errors name what went wrong with the request itself;
// follow-up action failures are reported but do not fail the request.
func (a *app) execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	rest := strings.TrimSpace(line[len(fields[0]):])
	args := fields[1:]

	switch verb {
	case "gather":
		return a.gather(verb, rest, catalogs.KindItem, nil)
	case "gatherfish":
		return a.gather(verb, rest, catalogs.KindFish, nil)
	case "gathermin":
		hint := catalogs.Miner
		return a.gather(verb, rest, catalogs.KindItem, &hint)
	case "gatherbtn":
		hint := catalogs.Botanist
		return a.gather(verb, rest, catalogs.KindItem, &hint)
	case "pick":
		return a.pick(args)
	case "teleport", "gearset", "flag", "info":
		if verb == "teleport" && len(args) > 0 {
			return a.teleportTo(args)
		}
		act, _ := actions.ParseAction(verb)
		return a.single(act)
	case "pos":
		return a.setPosition(args)
	case "duty", "login":
		return a.setFlag(verb, args)
	case "catch":
		return a.catch(args)
	case "alarm":
		return a.alarm(args)
	case "timer":
		return a.timer(args)
	case "export":
		a.comm.Print(encoding.EncodeRecords(encoding.Entries(a.store)))
		return nil
	case "import":
		return a.importRecords(args)
	case "backup":
		_, err := a.backup()
		return err
	case "status":
		a.sendStatus()
		a.comm.Print(fmt.Sprintf("Session is %s.", a.session.State()))
		return nil
	case "help":
		a.comm.Print(helpText)
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownCommand, verb)
}

func (a *app) gather(verb, text string, kind catalogs.Kind, hint *catalogs.GatheringType) error {
	if text == "" {
		return fmt.Errorf("%w: %s needs a name", errBadRequest, verb)
	}
	start := time.Now()
	err := a.session.Gather(text, kind, hint)
	ds, aerr := a.gate.Run(a.session.Location(), a.session.Window(), a.macro...)
	a.finish(verb, text, start, err, ds, aerr)
	return err
}

func (a *app) pick(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: pick <location id>", errBadRequest)
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: location id %q", errBadRequest, args[0])
	}
	loc, ok := a.cats.Location(uint32(id))
	if !ok {
		a.comm.PrintError(fmt.Sprintf("Unknown location %d.", id))
		return fmt.Errorf("%w: location %d", executor.ErrLocationNotFound, id)
	}
	start := time.Now()
	a.session.GatherLocation(loc)
	ds, aerr := a.gate.Run(a.session.Location(), a.session.Window(), a.macro...)
	a.finish("pick", args[0], start, nil, ds, aerr)
	return nil
}

func (a *app) single(act actions.Action) error {
	start := time.Now()
	ds, aerr := a.gate.Run(a.session.Location(), a.session.Window(), act)
	a.finish(string(act), "", start, nil, ds, aerr)
	return nil
}

func (a *app) teleportTo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: teleport <territory id>", errBadRequest)
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: territory id %q", errBadRequest, args[0])
	}
	terr, ok := a.cats.Territories[uint32(id)]
	if !ok {
		a.comm.PrintError(fmt.Sprintf("Unknown territory %d.", id))
		return fmt.Errorf("%w: territory %d", executor.ErrLocationNotFound, id)
	}
	start := time.Now()
	d, aerr := a.gate.TeleportToTerritory(terr)
	a.finish("teleport", args[0], start, nil, []actions.Decision{d}, aerr)
	return nil
}

func (a *app) finish(command, input string, start time.Time, err error, ds []actions.Decision, aerr error) {
	a.metrics.ObserveRequest(command, err, time.Since(start))
	a.metrics.ObserveDecisions(ds)
	a.sendStatus()

	if a.reqLog == nil {
		return
	}
	e := persistlog.RequestEntry{
		Command: command,
		Input:   input,
		Outcome: metrics.Outcome(err),
	}
	if t := a.session.Target(); t != nil {
		e.Target = t.Name
	}
	if l := a.session.Location(); l != nil {
		e.Location = l.ID
		w := a.session.Window()
		e.Window = &persistlog.Window{Start: int64(w.Start), End: int64(w.End)}
	}
	if joined := errors.Join(err, aerr); joined != nil {
		e.Error = joined.Error()
	}
	for _, d := range ds {
		e.Actions = append(e.Actions, persistlog.ActionEntry{Action: string(d.Action), Fired: d.Fired, Reason: d.Reason})
	}
	if _, werr := a.reqLog.WriteRequest(e); werr != nil && a.log != nil {
		a.log.Printf("request log: %v", werr)
	}
}

func (a *app) sendStatus() {
	msg := protocol.StatusMsg{
		Type:            protocol.TypeStatus,
		ProtocolVersion: protocol.Version,
		State:           a.session.State().String(),
		Visited:         a.session.VisitedCount(),
	}
	if t := a.session.Target(); t != nil {
		msg.Target = t.Name
	}
	if l := a.session.Location(); l != nil {
		msg.Location = l.ID
		msg.LocationName = l.Name
		w := a.session.Window()
		msg.Window = &protocol.Window{Start: int64(w.Start), End: int64(w.End)}
	}
	a.status.Store(&msg)
	if a.overlay != nil {
		a.overlay.Broadcast(msg)
	}
}

// teardown drops the session state and tells overlays the helper is idle.
func (a *app) teardown() {
	a.session.Reset()
	a.sendStatus()
}

// lastStatus is safe to call from any goroutine.
func (a *app) lastStatus() protocol.StatusMsg {
	if m := a.status.Load(); m != nil {
		return *m
	}
	return protocol.StatusMsg{Type: protocol.TypeStatus, ProtocolVersion: protocol.Version, State: executor.Idle.String()}
}

func (a *app) setPosition(args []string) error {
	if len(args) == 1 && args[0] == "clear" {
		a.player = player{}
		return nil
	}
	if len(args) != 3 {
		return fmt.Errorf("%w: pos <territory> <x> <z>", errBadRequest)
	}
	terr, err1 := strconv.ParseUint(args[0], 10, 32)
	x, err2 := strconv.ParseFloat(args[1], 32)
	z, err3 := strconv.ParseFloat(args[2], 32)
	if err := errors.Join(err1, err2, err3); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	a.player = player{territory: uint32(terr), x: float32(x), z: float32(z), known: true}
	return nil
}

func (a *app) setFlag(verb string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s <on|off>", errBadRequest, verb)
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("%w: %s %q", errBadRequest, verb, args[0])
	}
	if verb == "duty" {
		a.inDuty = on
	} else {
		a.loggedIn = on
	}
	return nil
}

func (a *app) catch(args []string) error {
	chum := len(args) > 0 && strings.EqualFold(args[len(args)-1], "chum")
	if chum {
		args = args[:len(args)-1]
	}
	if len(args) < 3 {
		return fmt.Errorf("%w: catch <fish> <bait> <ms> [chum]", errBadRequest)
	}
	n := len(args)
	name := strings.Join(args[:n-2], " ")
	fish, ok := a.ident.Identify(name, catalogs.KindFish)
	if !ok {
		a.comm.PrintIdentifiedItem(name, nil)
		return fmt.Errorf("%w: %q", executor.ErrNotIdentified, name)
	}
	bait, err := strconv.ParseUint(args[n-2], 10, 32)
	if err != nil || bait == 0 {
		return fmt.Errorf("%w: bait %q", errBadRequest, args[n-2])
	}
	ms, err := strconv.ParseUint(args[n-1], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: bite time %q", errBadRequest, args[n-1])
	}

	all, bt := a.store.Observe(records.FishID(fish.ID), records.BaitID(bait), uint32(ms), chum)
	if a.cfg.StoreFishRecords && a.records != nil {
		a.records.Record(records.FishID(fish.ID), 0, all)
		a.records.Record(records.FishID(fish.ID), records.BaitID(bait), bt)
		a.metrics.SetPendingRecords(a.records.Stats().QueueDepth)
	}
	a.comm.Print(fmt.Sprintf("Recorded %s after %.1fs.", fish.Name, float64(ms)/1000))
	return nil
}

func (a *app) importRecords(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: import <code>", errBadRequest)
	}
	entries, err := encoding.DecodeRecords(args[0])
	if err != nil {
		a.comm.PrintError("Could not read the record export.")
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	for _, e := range entries {
		a.store.Put(e.Fish, e.Bait, e.Times)
	}
	if a.cfg.StoreFishRecords && a.records != nil {
		// Write merged rows, not the imported ones.
		for _, e := range encoding.Entries(a.store) {
			a.records.Record(e.Fish, e.Bait, e.Times)
		}
		a.metrics.SetPendingRecords(a.records.Stats().QueueDepth)
	}
	a.comm.Print(fmt.Sprintf("Imported %d fish records.", len(entries)))
	return nil
}

// backup writes the record store to a new snapshot file and returns its path.
func (a *app) backup() (string, error) {
	if a.snapDir == "" {
		return "", fmt.Errorf("backup: %w", errDisabled)
	}
	now := a.clock.ServerTime().Time()
	path := snapshot.PathFor(a.snapDir, now)
	snap := snapshot.FromStore(a.store, a.cats.Digest, now)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		a.comm.PrintError("Could not write the record backup.")
		return "", fmt.Errorf("backup: %w", err)
	}
	a.comm.Print(fmt.Sprintf("Wrote %d fish records to %s.", snap.Header.Rows, path))
	return path, nil
}

func (a *app) alarm(args []string) error {
	if !a.cfg.Alarms.Enabled {
		a.comm.PrintError("Alarms are disabled.")
		return fmt.Errorf("alarms: %w", errDisabled)
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: alarm <item|fish> <name>", errBadRequest)
	}
	kind, ok := parseKind(args[0])
	if !ok {
		return fmt.Errorf("%w: kind %q", errBadRequest, args[0])
	}
	name := strings.Join(args[1:], " ")
	t, ok := a.ident.Identify(name, kind)
	if !ok {
		a.comm.PrintIdentifiedItem(name, nil)
		return fmt.Errorf("%w: %q", executor.ErrNotIdentified, name)
	}
	switch {
	case a.inDuty && !a.cfg.Alarms.InDuty:
		a.comm.Print(fmt.Sprintf("Alarm for %s suppressed during a duty.", t.Name))
		return nil
	case !a.loggedIn && a.cfg.Alarms.OnlyWhenLoggedIn:
		a.comm.Print(fmt.Sprintf("Alarm for %s suppressed while logged out.", t.Name))
		return nil
	}
	a.alarms.Trigger(alarms.Triggered{Name: t.Name, Target: t, At: a.clock.ServerTime()})
	a.comm.Print(fmt.Sprintf("Alarm triggered for %s.", t.Name))
	return nil
}

func parseKind(s string) (catalogs.Kind, bool) {
	switch strings.ToLower(s) {
	case "item":
		return catalogs.KindItem, true
	case "fish":
		return catalogs.KindFish, true
	}
	return 0, false
}

func (a *app) timer(args []string) error {
	if !a.cfg.FishTimer.Show {
		a.comm.PrintError("The fish timer is disabled.")
		return fmt.Errorf("fish timer: %w", errDisabled)
	}
	if len(args) < 2 {
		return fmt.Errorf("%w: timer <spot id> <bait> [effects...]", errBadRequest)
	}
	spotID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: spot %q", errBadRequest, args[0])
	}
	spot, ok := a.cats.Spots[uint32(spotID)]
	if !ok {
		a.comm.PrintError(fmt.Sprintf("Unknown fishing spot %d.", spotID))
		return fmt.Errorf("%w: spot %d", executor.ErrLocationNotFound, spotID)
	}
	bait, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: bait %q", errBadRequest, args[1])
	}
	effects, err := records.ParseEffects(args[2:])
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	rec := records.Record{BaitID: records.BaitID(bait), Effects: effects}
	filter := fishtimer.Filter{HideUncaught: a.cfg.FishTimer.HideUncaught, HideUnavailable: a.cfg.FishTimer.HideUnavailable}
	rows := fishtimer.Rows(a.engine, spot, a.store, rec, a.uptimes, filter, a.clock.ServerTime())
	a.metrics.ObserveRows(rows)

	msg := protocol.FishTimerMsg{
		Type:            protocol.TypeFishTimer,
		ProtocolVersion: protocol.Version,
		Spot:            spot.ID,
		Bait:            uint32(bait),
		Scale:           a.cfg.FishTimer.Scale,
		Rows:            make([]protocol.FishRow, 0, len(rows)),
	}
	for _, r := range rows {
		lo, hi := fishtimer.UnpackSortKey(r.SortKey)
		row := protocol.FishRow{
			Fish:      r.Target.ID,
			Name:      r.Target.Name,
			Available: r.Available,
			Caught:    r.Caught,
			SortKey:   r.SortKey,
			Min:       lo,
			Max:       hi,
		}
		if w := r.EffectiveWindow; !w.IsAlways() {
			row.Window = &protocol.Window{Start: int64(w.Start), End: int64(w.End)}
		}
		msg.Rows = append(msg.Rows, row)
		a.comm.Print(rowText(r, a.clock.ServerTime()))
	}
	if a.overlay != nil {
		a.overlay.Broadcast(msg)
	}
	return nil
}

func rowText(r fishtimer.Row, now timeline.Timestamp) string {
	switch {
	case !r.Available:
		return fmt.Sprintf("%s: unavailable (%s)", r.Target.Name, communicator.UptimeText(r.EffectiveWindow, now))
	case !r.Caught:
		return fmt.Sprintf("%s: not caught with this bait yet", r.Target.Name)
	}
	lo, hi := fishtimer.UnpackSortKey(r.SortKey)
	return fmt.Sprintf("%s: %s-%s", r.Target.Name, seconds(lo), seconds(hi))
}

func seconds(ms uint16) string {
	if ms == records.NoBound {
		return "?"
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// ackFor turns the result of execute into the reply for an overlay command.
func ackFor(id string, err error) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          id,
		Accepted:        err == nil,
	}
	if err != nil {
		ack.Code = codeFor(err)
		ack.Message = err.Error()
	}
	return ack
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, executor.ErrNotIdentified):
		return protocol.ErrNotIdentified
	case errors.Is(err, executor.ErrLocationNotFound):
		return protocol.ErrLocationNotFound
	case errors.Is(err, executor.ErrNoPreviousRequest):
		return protocol.ErrNoPreviousRequest
	case errors.Is(err, errUnknownCommand):
		return protocol.ErrUnknownCommand
	case errors.Is(err, errBadRequest):
		return protocol.ErrBadRequest
	case errors.Is(err, errDisabled),
		errors.Is(err, actions.ErrMissingDisciplineMapping),
		errors.Is(err, actions.ErrEmptyLoadoutName):
		return protocol.ErrConfig
	}
	return protocol.ErrInternal
}
