package recorddb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gatherbuddy.app/internal/sim/records"
)

// DB persists fish bite times. Writes go through a single writer goroutine so the
// request path never blocks on disk.
type DB struct {
	db *sql.DB

	ch   chan row
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type row struct {
	fish  records.FishID
	bait  records.BaitID
	times records.Times
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Dropped       uint64
}

const queueSize = 4096

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &DB{db: db, ch: make(chan row, queueSize)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fish_times (
			fish_id INTEGER NOT NULL,
			bait_id INTEGER NOT NULL,
			min INTEGER NOT NULL,
			max INTEGER NOT NULL,
			min_chum INTEGER NOT NULL,
			max_chum INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (fish_id, bait_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Record queues an upsert of one history row. Bait 0 is the aggregate row.
func (s *DB) Record(fish records.FishID, bait records.BaitID, t records.Times) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row{fish: fish, bait: bait, times: t}:
	default:
		// The in-memory store still has the value; it is written again on the next catch.
		s.dropped.Add(1)
	}
}

func (s *DB) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{QueueDepth: len(s.ch), QueueCapacity: cap(s.ch), Dropped: s.dropped.Load()}
}

// LoadInto merges every stored row into store and returns the number of rows read.
func (s *DB) LoadInto(ctx context.Context, store *records.Store) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fish_id,bait_id,min,max,min_chum,max_chum FROM fish_times ORDER BY fish_id,bait_id`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var (
			fish, bait             int64
			lo, hi, loChum, hiChum int64
		)
		if err := rows.Scan(&fish, &bait, &lo, &hi, &loChum, &hiChum); err != nil {
			return n, err
		}
		store.Put(records.FishID(fish), records.BaitID(bait), records.Times{
			Min:     uint16(lo),
			Max:     uint16(hi),
			MinChum: uint16(loChum),
			MaxChum: uint16(hiChum),
		})
		n++
	}
	return n, rows.Err()
}

// SaveAll writes the whole store synchronously.
func (s *DB) SaveAll(ctx context.Context, store *records.Store) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339)
	var werr error
	store.Each(func(fish records.FishID, ft records.FishTimes) {
		if werr != nil {
			return
		}
		if !ft.All.Empty() {
			werr = execUpsert(ctx, stmt, row{fish: fish, times: ft.All}, now)
		}
		for bait, t := range ft.Data {
			if werr != nil {
				return
			}
			werr = execUpsert(ctx, stmt, row{fish: fish, bait: bait, times: t}, now)
		}
	})
	if werr != nil {
		return werr
	}
	return tx.Commit()
}

func (s *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return err
}

func (s *DB) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

const upsertSQL = `INSERT OR REPLACE INTO fish_times(fish_id,bait_id,min,max,min_chum,max_chum,updated_at) VALUES(?,?,?,?,?,?,?)`

func execUpsert(ctx context.Context, stmt *sql.Stmt, r row, now string) error {
	_, err := stmt.ExecContext(ctx,
		int64(r.fish),
		int64(r.bait),
		int64(r.times.Min),
		int64(r.times.Max),
		int64(r.times.MinChum),
		int64(r.times.MaxChum),
		now,
	)
	return err
}

func (s *DB) loop() {
	ctx := context.Background()

	insert, _ := s.db.Prepare(upsertSQL)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil || insert == nil {
			s.dropped.Add(1)
			continue
		}
		if err := execUpsert(ctx, tx.Stmt(insert), r, time.Now().UTC().Format(time.RFC3339)); err != nil {
			// The rollback loses every uncommitted row of the batch.
			_ = tx.Rollback()
			s.dropped.Add(uint64(opCount) + 1)
			tx = nil
			opCount = 0
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
