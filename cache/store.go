// Package cache keeps compiled images in a SQLite database keyed by the
// content hash of their source, so unchanged scripts skip compilation.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/vm"
	"github.com/chazu/kecaknoah/vm/dist"
)

var log = commonlog.GetLogger("kecaknoah.cache")

// ErrNotFound indicates there is no usable entry for the source.
var ErrNotFound = errors.New("cache: entry not found")

// Store is a compiled-image cache backed by SQLite. It is safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		hash    TEXT NOT NULL,
		variant TEXT NOT NULL,
		chunk   BLOB NOT NULL,
		created INTEGER NOT NULL,
		PRIMARY KEY (hash, variant)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// DefaultPath returns the per-user cache location.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("getting cache dir: %w", err)
	}
	return filepath.Join(dir, "kecaknoah", "images.db"), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// variant distinguishes images compiled from the same source with
// different options.
func variant(opts compiler.Options) string {
	return fmt.Sprintf("fold=%t", opts.FoldConstants)
}

func key(source string) string {
	h := dist.HashSource(source)
	return hex.EncodeToString(h[:])
}

// Get returns the cached image for source compiled with opts. Entries that
// fail verification are dropped and reported as ErrNotFound.
func (s *Store) Get(source string, opts compiler.Options) (*vm.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, v := key(source), variant(opts)
	var data []byte
	err := s.db.QueryRow("SELECT chunk FROM images WHERE hash = ? AND variant = ?", k, v).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}

	img, err := decode(data, source)
	if err != nil {
		log.Warningf("dropping entry %s: %s", k[:16], err)
		if _, derr := s.db.Exec("DELETE FROM images WHERE hash = ? AND variant = ?", k, v); derr != nil {
			return nil, fmt.Errorf("deleting stale image: %w", derr)
		}
		return nil, ErrNotFound
	}
	return img, nil
}

func decode(data []byte, source string) (*vm.Image, error) {
	c, err := dist.UnmarshalChunk(data)
	if err != nil {
		return nil, err
	}
	if c.Source != source {
		return nil, fmt.Errorf("entry holds different source")
	}
	return c.DecodeImage()
}

// Put stores img as the compiled form of source under opts.
func (s *Store) Put(source string, opts compiler.Options, img *vm.Image) error {
	c, err := dist.NewImageChunk(source, img)
	if err != nil {
		return err
	}
	data, err := dist.MarshalChunk(c)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO images (hash, variant, chunk, created) VALUES (?, ?, ?, ?)",
		key(source), variant(opts), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// Purge removes every entry and returns how many were removed.
func (s *Store) Purge() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM images")
	if err != nil {
		return 0, fmt.Errorf("purging images: %w", err)
	}
	return res.RowsAffected()
}

// Len returns the number of cached entries.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}

// Compile returns the image for source, from the cache when possible. The
// second result reports a cache hit. Images with field initializers are
// never stored because the image format does not carry initializer code.
func (s *Store) Compile(source string, opts compiler.Options) (*vm.Image, bool, error) {
	img, err := s.Get(source, opts)
	if err == nil {
		log.Debugf("hit for %s", key(source)[:16])
		return img, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	img, err = compiler.Compile(source, opts)
	if err != nil {
		return nil, false, err
	}
	if !Cacheable(img) {
		log.Debugf("not caching %s: field initializers", key(source)[:16])
		return img, false, nil
	}
	if err := s.Put(source, opts, img); err != nil {
		return nil, false, err
	}
	return img, false, nil
}

// Cacheable reports whether img survives encoding unchanged.
func Cacheable(img *vm.Image) bool {
	var lossless func(c *vm.Class) bool
	lossless = func(c *vm.Class) bool {
		for _, f := range c.Fields {
			if f.Init != nil {
				return false
			}
		}
		for _, inner := range c.InnerClasses {
			if !lossless(inner) {
				return false
			}
		}
		return true
	}
	for _, c := range img.Classes {
		if !lossless(c) {
			return false
		}
	}
	return true
}
