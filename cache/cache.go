// Package cache provides a content-addressed compile cache: compiled chunks
// stored in SQLite, keyed by the SHA-256 of the source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lox-lang/lox/chunkfile"
	"github.com/lox-lang/lox/vm"
)

// ErrMiss indicates the source has no cached chunk.
var ErrMiss = errors.New("cache miss")

// Store is a SQLite-backed chunk cache. Safe for use from one process;
// concurrent opens are serialized by SQLite's busy timeout.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a cache database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key for a source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached chunk for the source, or ErrMiss.
func (s *Store) Get(source string) (*vm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT data FROM chunks WHERE hash = ?", Key(source)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: lookup: %w", err)
	}

	f, err := chunkfile.Unmarshal(data)
	if err != nil {
		// A corrupt entry behaves like a miss; the caller recompiles and
		// overwrites it.
		return nil, ErrMiss
	}
	return f.Chunk, nil
}

// Put stores the compiled chunk for the source, replacing any prior entry.
func (s *Store) Put(source string, c *vm.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := chunkfile.Marshal(chunkfile.New(c))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO chunks (hash, data) VALUES (?, ?)",
		Key(source), data,
	)
	if err != nil {
		return fmt.Errorf("cache: store: %w", err)
	}
	return nil
}
