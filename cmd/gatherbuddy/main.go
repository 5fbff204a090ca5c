package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gatherbuddy.app/internal/config"
	"gatherbuddy.app/internal/metrics"
	persistlog "gatherbuddy.app/internal/persistence/log"
	"gatherbuddy.app/internal/persistence/recorddb"
	"gatherbuddy.app/internal/persistence/snapshot"
	"gatherbuddy.app/internal/protocol"
	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/records"
	"gatherbuddy.app/internal/sim/timeline"
	"gatherbuddy.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "overlay http listen address (empty to disable)")
		configDir  = flag.String("configs", "./configs", "catalog directory")
		configPath = flag.String("config", "", "path to config.yaml (default: <configs>/config.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "do not persist fish records to sqlite")
		noStdin    = flag.Bool("no_stdin", false, "do not read commands from stdin")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gatherbuddy] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	cp := strings.TrimSpace(*configPath)
	if cp == "" {
		cp = filepath.Join(*configDir, "config.yaml")
	}
	cfg, err := config.Load(cp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		logger.Printf("no config at %s, writing defaults", cp)
		if err := config.Save(cp, cfg); err != nil {
			logger.Printf("save config: %v", err)
		}
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	ctx, cancel := signalContext()
	defer cancel()

	store := records.NewStore()
	var db *recorddb.DB
	if !*disableDB && cfg.StoreFishRecords {
		db, err = recorddb.Open(filepath.Join(*dataDir, "records.sqlite"))
		if err != nil {
			logger.Fatalf("records db: %v", err)
		}
		defer db.Close()
		n, err := db.LoadInto(ctx, store)
		if err != nil {
			logger.Fatalf("load records: %v", err)
		}
		logger.Printf("loaded %d fish records", n)
		if prev, ok, _ := db.Meta(ctx, "catalog_digest"); ok && prev != cats.Digest {
			logger.Printf("catalog changed since records were stored (%s -> %s)", prev, cats.Digest)
		}
		if err := db.SetMeta(ctx, "catalog_digest", cats.Digest); err != nil {
			logger.Printf("records db meta: %v", err)
		}
	}
	snapDir := filepath.Join(*dataDir, "snapshots")
	keepSnapshots := db == nil && cfg.StoreFishRecords
	if keepSnapshots {
		if p := snapshot.Latest(snapDir); p != "" {
			snap, err := snapshot.ReadSnapshot(p)
			if err != nil {
				logger.Fatalf("read snapshot: %v", err)
			}
			logger.Printf("loaded %d fish records from %s", snap.Apply(store), p)
		}
	}

	reqLog := persistlog.NewRequestLogger(*dataDir)
	defer reqLog.Close()

	m := metrics.New()
	clock := timeline.SystemClock{}

	var hub *ws.Server
	if strings.TrimSpace(*addr) != "" {
		hub = ws.NewServer(logger, func(sessionID string) protocol.WelcomeMsg {
			return protocol.WelcomeMsg{
				Type:            protocol.TypeWelcome,
				ProtocolVersion: protocol.Version,
				SessionID:       sessionID,
				CatalogDigest:   cats.Digest,
				ServerTime:      int64(clock.ServerTime()),
			}
		})
	}

	deps := appDeps{
		Log:        logger,
		Catalogs:   cats,
		Config:     cfg,
		Clock:      clock,
		Store:      store,
		Metrics:    m,
		RequestLog: reqLog,

		SnapshotDir: snapDir,
	}
	if db != nil {
		deps.Records = db
	}
	if hub != nil {
		deps.Overlay = hub
	}
	a := newApp(deps)

	if hub != nil {
		srv := &http.Server{
			Addr:              *addr,
			Handler:           newMux(a, hub, m, db),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	var lines <-chan string
	if !*noStdin {
		lines = readLines(os.Stdin)
	}
	var inbox <-chan ws.Inbound
	if hub != nil {
		inbox = hub.Inbox()
	}
	run(ctx, a, lines, inbox, hub)
	logger.Printf("shutting down")
	a.teardown()
	if db != nil && db.Stats().Dropped > 0 {
		// The store still holds what the queue dropped.
		if err := db.SaveAll(context.Background(), store); err != nil {
			logger.Printf("flush records: %v", err)
		}
	}
	if keepSnapshots {
		if _, err := a.backup(); err != nil {
			logger.Printf("%v", err)
		}
	}
}

// run is the command loop. It owns the app; nothing else touches the session.
func run(ctx context.Context, a *app, lines <-chan string, inbox <-chan ws.Inbound, hub *ws.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if inbox == nil {
					return
				}
				continue
			}
			if err := a.execute(line); err != nil && a.log != nil {
				a.log.Printf("%s: %v", strings.TrimSpace(line), err)
			}
		case in := <-inbox:
			err := a.execute(in.Command.Line)
			if hub != nil {
				hub.Send(in.ClientID, ackFor(in.Command.ID, err))
			}
		}
	}
}

func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func newMux(a *app, hub *ws.Server, m *metrics.Metrics, db *recorddb.DB) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/v1/ws", hub.Handler())

	// Local-only.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := struct {
			CatalogDigest string             `json:"catalog_digest"`
			Clients       int                `json:"clients"`
			Dropped       uint64             `json:"dropped"`
			Status        protocol.StatusMsg `json:"status"`
			Records       *recorddb.Stats    `json:"records,omitempty"`
		}{
			CatalogDigest: a.cats.Digest,
			Clients:       hub.Clients(),
			Dropped:       hub.Dropped(),
			Status:        a.lastStatus(),
		}
		if db != nil {
			st := db.Stats()
			resp.Records = &st
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
