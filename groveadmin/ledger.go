// Package groveadmin implements an optional, sqlite-backed commit
// history ledger for a grove: one row per committed write, recording
// the grove's new root hash and a monotonic sequence number alongside a
// timestamp (SPEC_FULL.md §B's domain-stack wiring: "an optional,
// separate-from-the-core-CFs operational ledger recording committed
// grove root hashes per write... not on the read/write hot path of any
// core operation").
//
// Grounded on the teacher's metadata/sqlite package
// (_examples/shruggr-inspiration/metadata/sqlite/sqlite.go): a
// database/sql handle over github.com/mattn/go-sqlite3, a schema
// created idempotently at Open, and %w-wrapped errors throughout. The
// teacher's BlockMeta/SubtreeMeta tables record blockchain blocks; this
// package keeps the same "small append-only history table queried by
// sequence or by latest" shape but records grove commits instead.
package groveadmin

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dashpay/grovedb/hash"
)

// Config configures a Ledger.
type Config struct {
	// DBPath is the sqlite database file path. Required.
	DBPath string
}

// Ledger is a sqlite-backed append-only history of grove root hashes.
type Ledger struct {
	db *sql.DB
}

// Commit is one recorded row: Seq is the ledger's own monotonic commit
// counter (grove itself has no notion of block height; Seq plays that
// role for external tooling that wants to walk history in order), Path
// is the subtree path whose mutation triggered this commit ("" for the
// grove root), RootHash is the grove root's hash immediately after that
// commit, and Timestamp is a Unix-seconds wall-clock stamp.
type Commit struct {
	Seq       uint64
	Path      string
	RootHash  hash.Digest
	Timestamp int64
}

// Open creates (or reopens) a Ledger at cfg.DBPath, creating its schema
// if absent.
func Open(cfg *Config) (*Ledger, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("groveadmin: DBPath is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("groveadmin: failed to open sqlite db: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("groveadmin: failed to initialize schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commits (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		path       TEXT NOT NULL,
		root_hash  BLOB NOT NULL,
		timestamp  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commits_path_seq ON commits(path, seq);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record appends a new commit row, returning its assigned sequence
// number.
func (l *Ledger) Record(ctx context.Context, path string, rootHash hash.Digest, timestamp int64) (uint64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO commits (path, root_hash, timestamp) VALUES (?, ?, ?)`,
		path, rootHash[:], timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("groveadmin: failed to insert commit: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("groveadmin: failed to read inserted seq: %w", err)
	}
	return uint64(seq), nil
}

// Latest returns the most recently recorded commit for path, or nil if
// none has been recorded yet.
func (l *Ledger) Latest(ctx context.Context, path string) (*Commit, error) {
	return l.scanOne(l.db.QueryRowContext(ctx,
		`SELECT seq, path, root_hash, timestamp FROM commits WHERE path = ? ORDER BY seq DESC LIMIT 1`,
		path,
	))
}

// Get returns the commit recorded at seq, or nil if absent.
func (l *Ledger) Get(ctx context.Context, seq uint64) (*Commit, error) {
	return l.scanOne(l.db.QueryRowContext(ctx,
		`SELECT seq, path, root_hash, timestamp FROM commits WHERE seq = ?`,
		seq,
	))
}

func (l *Ledger) scanOne(row *sql.Row) (*Commit, error) {
	var c Commit
	var rootHash []byte
	if err := row.Scan(&c.Seq, &c.Path, &rootHash, &c.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("groveadmin: failed to scan commit: %w", err)
	}
	copy(c.RootHash[:], rootHash)
	return &c, nil
}

// History returns every commit recorded for path, oldest first.
func (l *Ledger) History(ctx context.Context, path string) ([]*Commit, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, path, root_hash, timestamp FROM commits WHERE path = ? ORDER BY seq ASC`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("groveadmin: failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*Commit
	for rows.Next() {
		var c Commit
		var rootHash []byte
		if err := rows.Scan(&c.Seq, &c.Path, &rootHash, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("groveadmin: failed to scan commit row: %w", err)
		}
		copy(c.RootHash[:], rootHash)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groveadmin: error iterating history: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
