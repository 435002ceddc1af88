// Package state persists per-room sync progress between runs.
//
// The state file is a single versioned JSON document mapping room IDs to
// their sync records. It is loaded once at the start of a run, mutated in
// memory, and written back atomically at the end (unless the run is
// read-only).
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CurrentSchemaVersion is the schema version written by this build.
// Older files are upgraded on load; see migrate.go.
const CurrentSchemaVersion = 2

// RoomKind classifies a conversation.
type RoomKind string

const (
	KindPublicChannel RoomKind = "public_channel"
	KindDirectMessage RoomKind = "direct_message"
	KindPrivateGroup  RoomKind = "private_group"
)

// RoomRecord tracks export progress for one room. The room ID is the key of
// SyncState.Rooms.
//
// Name, Kind, and CreatedAt are fixed at first discovery. LastMessageAt is
// refreshed from the provider on every run; nil means the room has no
// messages. SyncedThrough is the watermark: every message up to that instant
// has been exported or confirmed absent. Nil means the room has never been
// synced. SyncedThrough never moves backwards.
type RoomRecord struct {
	Name          string     `json:"name"`
	Kind          RoomKind   `json:"kind"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	SyncedThrough *time.Time `json:"syncedThrough,omitempty"`
}

// SyncState is the full persisted document.
type SyncState struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Rooms         map[string]*RoomRecord `json:"rooms"`
}

// New returns an empty state at the current schema version.
func New() *SyncState {
	return &SyncState{
		SchemaVersion: CurrentSchemaVersion,
		Rooms:         map[string]*RoomRecord{},
	}
}

// CorruptStateError reports a state file that exists but cannot be read or
// parsed. It is fatal: continuing would silently restart every room from its
// creation date and re-download the full history.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Load reads the state file at path and upgrades it to the current schema.
// A missing file is not an error: a fresh empty state is returned.
func Load(path string) (*SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, &CorruptStateError{Path: path, Err: err}
	}

	var st SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	if st.Rooms == nil {
		st.Rooms = map[string]*RoomRecord{}
	}
	// Files written before versioning carry no schemaVersion field.
	if st.SchemaVersion == 0 {
		st.SchemaVersion = 1
	}
	return Migrate(&st), nil
}

// Save serializes st to path. The document is written to a temporary file in
// the same directory and renamed into place, so a crash mid-write never
// leaves a partial file visible to a later Load.
func Save(path string, st *SyncState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	committed = true
	return nil
}
