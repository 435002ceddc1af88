package export

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested ledger record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one invocation of the exporter as recorded in the ledger.
type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string // "running", "completed", "failed"
	RoomsScanned     int
	WindowsFetched   int
	FilesWritten     int
	MessagesExported int
}

// Artifact is one export file the ledger knows about. A room-day has at most
// one artifact row; re-exporting a day replaces it, like the file on disk.
type Artifact struct {
	RoomID       string
	RoomName     string
	Day          time.Time
	Path         string
	MessageCount int
	Bytes        int64
	RunID        string
	WrittenAt    time.Time
}

// Ledger wraps a SQLite database tracking export runs and their artifacts.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the ledger database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func OpenLedger(dataDir string) (*Ledger, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "historian.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	if _, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := l.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := l.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (l *Ledger) AppliedMigrations() ([]int, error) {
	rows, err := l.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// BeginRun records the start of a run with status "running".
func (l *Ledger) BeginRun(id string, startedAt time.Time) error {
	_, err := l.db.Exec(`INSERT INTO runs (id, started_at, status) VALUES (?, ?, 'running')`,
		id, startedAt.UTC().Format(time.RFC3339))
	return err
}

// FinishRun stamps the run's end time, final status, and counters.
func (l *Ledger) FinishRun(id string, finishedAt time.Time, status string, r Run) error {
	res, err := l.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?,
			rooms_scanned = ?, windows_fetched = ?, files_written = ?, messages_exported = ?
		WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), status,
		r.RoomsScanned, r.WindowsFetched, r.FilesWritten, r.MessagesExported, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns one run by ID.
func (l *Ledger) GetRun(id string) (Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	err := l.db.QueryRow(`
		SELECT id, started_at, finished_at, status, rooms_scanned, windows_fetched, files_written, messages_exported
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.RoomsScanned, &r.WindowsFetched, &r.FilesWritten, &r.MessagesExported)
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}

// RecordArtifact upserts the artifact row for a room-day.
func (l *Ledger) RecordArtifact(a Artifact) error {
	_, err := l.db.Exec(`
		INSERT INTO artifacts (room_id, room_name, day, path, message_count, bytes, run_id, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, day) DO UPDATE SET
			room_name = excluded.room_name,
			path = excluded.path,
			message_count = excluded.message_count,
			bytes = excluded.bytes,
			run_id = excluded.run_id,
			written_at = excluded.written_at`,
		a.RoomID, a.RoomName, a.Day.UTC().Format("2006-01-02"), a.Path,
		a.MessageCount, a.Bytes, a.RunID, a.WrittenAt.UTC().Format(time.RFC3339))
	return err
}

// ArtifactsForRun returns the artifacts a run produced, ordered by room then day.
func (l *Ledger) ArtifactsForRun(runID string) ([]Artifact, error) {
	rows, err := l.db.Query(`
		SELECT room_id, room_name, day, path, message_count, bytes, run_id, written_at
		FROM artifacts WHERE run_id = ? ORDER BY room_id, day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Artifact
	for rows.Next() {
		var a Artifact
		var day, writtenAt string
		if err := rows.Scan(&a.RoomID, &a.RoomName, &day, &a.Path, &a.MessageCount, &a.Bytes, &a.RunID, &writtenAt); err != nil {
			return nil, err
		}
		if a.Day, err = time.Parse("2006-01-02", day); err != nil {
			return nil, fmt.Errorf("parsing artifact day: %w", err)
		}
		if a.WrittenAt, err = time.Parse(time.RFC3339, writtenAt); err != nil {
			return nil, fmt.Errorf("parsing written_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
