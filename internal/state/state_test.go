package state

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_MissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", st.SchemaVersion, CurrentSchemaVersion)
	}
	if len(st.Rooms) != 0 {
		t.Errorf("got %d rooms, want 0", len(st.Rooms))
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for corrupt state file")
	}
	var corrupt *CorruptStateError
	if !errors.As(err, &corrupt) {
		t.Fatalf("error = %T, want *CorruptStateError", err)
	}
	if corrupt.Path != path {
		t.Errorf("Path = %q, want %q", corrupt.Path, path)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2023, 1, 3, 14, 5, 0, 0, time.UTC)
	synced := time.Date(2023, 1, 10, 23, 59, 59, 999999000, time.UTC)

	st := New()
	st.Rooms["c1"] = &RoomRecord{
		Name:          "general",
		Kind:          KindPublicChannel,
		CreatedAt:     created,
		LastMessageAt: &last,
		SyncedThrough: &synced,
	}
	st.Rooms["d1"] = &RoomRecord{
		Name:      "direct-d1",
		Kind:      KindDirectMessage,
		CreatedAt: created,
	}

	if err := Save(path, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, st)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := Save(path, New()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contents = %v, want [state.json]", names)
	}
}

func TestLoad_MigratesLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
		"schemaVersion": 1,
		"rooms": {
			"c1": {"name": "general", "kind": "channels", "createdAt": "2023-01-01T00:00:00Z"},
			"d1": {"name": "direct-d1", "kind": "ims", "createdAt": "2023-01-01T00:00:00Z"},
			"g1": {"name": "secret", "kind": "groups", "createdAt": "2023-01-01T00:00:00Z"}
		}
	}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", st.SchemaVersion, CurrentSchemaVersion)
	}
	wantKinds := map[string]RoomKind{
		"c1": KindPublicChannel,
		"d1": KindDirectMessage,
		"g1": KindPrivateGroup,
	}
	for id, want := range wantKinds {
		if got := st.Rooms[id].Kind; got != want {
			t.Errorf("room %s kind = %q, want %q", id, got, want)
		}
	}
}

func TestLoad_UnversionedFileTreatedAsV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := `{"rooms": {"c1": {"name": "general", "kind": "channels", "createdAt": "2023-01-01T00:00:00Z"}}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := st.Rooms["c1"].Kind; got != KindPublicChannel {
		t.Errorf("kind = %q, want %q", got, KindPublicChannel)
	}
}
