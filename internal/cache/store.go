package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// IndexFile is the database file name inside the cache directory.
const IndexFile = "index.db"

// Entry records one generation.
type Entry struct {
	Output      string
	Table       string
	Fingerprint string
	RunID       string
	Rules       int
	GeneratedAt time.Time
}

// Store is the generation index.
type Store struct {
	db  *sql.DB
	dir string
}

// DefaultDir returns the per-user cache directory for the index.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating user cache dir: %w", err)
	}
	return filepath.Join(base, "specialize"), nil
}

// Open opens or creates the index in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS generations (
        output TEXT PRIMARY KEY,
        table_path TEXT NOT NULL,
        fingerprint TEXT NOT NULL,
        run_id TEXT NOT NULL,
        rules INTEGER NOT NULL,
        generated_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Store{db: db, dir: dir}, nil
}

// Dir returns the directory holding the index.
func (s *Store) Dir() string { return s.dir }

// Lookup reports whether output was generated from inputs with the given
// fingerprint and still carries it. The entry is returned on a hit.
func (s *Store) Lookup(output, fingerprint string) (*Entry, bool, error) {
	output, err := filepath.Abs(output)
	if err != nil {
		return nil, false, err
	}
	e, err := s.get(output)
	if err != nil || e == nil || e.Fingerprint != fingerprint {
		return nil, false, err
	}
	onDisk, err := ReadFingerprint(output)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", output, err)
	}
	if onDisk != fingerprint {
		return nil, false, nil
	}
	return e, true, nil
}

// Record stores e, replacing any previous entry for the same output. A
// run id and timestamp are assigned when missing.
func (s *Store) Record(e Entry) (Entry, error) {
	out, err := filepath.Abs(e.Output)
	if err != nil {
		return Entry{}, err
	}
	e.Output = out
	if e.RunID == "" {
		e.RunID = uuid.NewString()
	}
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = time.Now()
	}

	_, err = s.db.Exec(`INSERT INTO generations (output, table_path, fingerprint, run_id, rules, generated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(output) DO UPDATE SET
            table_path = excluded.table_path,
            fingerprint = excluded.fingerprint,
            run_id = excluded.run_id,
            rules = excluded.rules,
            generated_at = excluded.generated_at`,
		e.Output, e.Table, e.Fingerprint, e.RunID, e.Rules, e.GeneratedAt.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("recording generation: %w", err)
	}
	return e, nil
}

// List returns all entries, most recent first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT output, table_path, fingerprint, run_id, rules, generated_at
        FROM generations ORDER BY generated_at DESC, output`)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clean deletes entries. With staleOnly set it deletes only entries whose
// output file no longer carries the recorded fingerprint. It returns the
// number of entries removed.
func (s *Store) Clean(staleOnly bool) (int, error) {
	if !staleOnly {
		res, err := s.db.Exec(`DELETE FROM generations`)
		if err != nil {
			return 0, fmt.Errorf("cleaning cache: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		fp, err := ReadFingerprint(e.Output)
		if err == nil && fp == e.Fingerprint {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM generations WHERE output = ?`, e.Output); err != nil {
			return removed, fmt.Errorf("cleaning cache: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(output string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT output, table_path, fingerprint, run_id, rules, generated_at
        FROM generations WHERE output = ?`, output)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var ts int64
	if err := sc.Scan(&e.Output, &e.Table, &e.Fingerprint, &e.RunID, &e.Rules, &ts); err != nil {
		return Entry{}, err
	}
	e.GeneratedAt = time.Unix(0, ts)
	return e, nil
}
