package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteIndex records project saves and asset uploads for the admin
// activity feed. Writes go through a single goroutine; the channel is
// buffered and drop-on-full so callers never block on the indexer.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type Event struct {
	Kind string `json:"kind"` // "project_save" | "asset_upload"
	Ref  string `json:"ref"`  // project id or stored filename
	Name string `json:"name"` // display name
	Size int64  `json:"size,omitempty"`
	At   string `json:"at"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db: db,
		ch: make(chan Event, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_at ON activity(at);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_kind_at ON activity(kind, at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordProjectSave is safe to call on a nil index.
func (s *SQLiteIndex) RecordProjectSave(id, name string) {
	s.record(Event{Kind: "project_save", Ref: id, Name: name})
}

// RecordAssetUpload is safe to call on a nil index.
func (s *SQLiteIndex) RecordAssetUpload(filename, displayName string, size int64) {
	s.record(Event{Kind: "asset_upload", Ref: filename, Name: displayName, Size: size})
}

func (s *SQLiteIndex) record(ev Event) {
	if s == nil || s.closed.Load() {
		return
	}
	ev.At = time.Now().UTC().Format(time.RFC3339Nano)
	select {
	case s.ch <- ev:
	default:
		// Drop if the indexer falls behind; the stores remain the source of truth.
	}
}

// Recent returns the newest events first, at most limit of them.
func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, ref, name, size, at FROM activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Kind, &ev.Ref, &ev.Name, &ev.Size, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insert, err := s.db.Prepare(`INSERT INTO activity(kind,ref,name,size,at) VALUES(?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
		}
		return
	}
	defer insert.Close()

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
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for ev := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		if _, err := tx.Stmt(insert).Exec(ev.Kind, ev.Ref, ev.Name, ev.Size, ev.At); err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}

		// Drain without waiting when the channel is empty so pending
		// rows become visible to readers promptly.
		if len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
