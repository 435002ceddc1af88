package state

import (
	"reflect"
	"testing"
	"time"
)

func legacyState() *SyncState {
	return &SyncState{
		SchemaVersion: 1,
		Rooms: map[string]*RoomRecord{
			"c1": {Name: "general", Kind: "channels", CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
			"d1": {Name: "direct-d1", Kind: "ims", CreatedAt: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)},
			"g1": {Name: "secret", Kind: "groups", CreatedAt: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestMigrate_RenamesKinds(t *testing.T) {
	st := Migrate(legacyState())

	if st.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", st.SchemaVersion, CurrentSchemaVersion)
	}
	want := map[string]RoomKind{
		"c1": KindPublicChannel,
		"d1": KindDirectMessage,
		"g1": KindPrivateGroup,
	}
	for id, kind := range want {
		if got := st.Rooms[id].Kind; got != kind {
			t.Errorf("room %s kind = %q, want %q", id, got, kind)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	once := Migrate(legacyState())
	twice := Migrate(Migrate(legacyState()))

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("migrate(migrate(s)) != migrate(s):\ngot  %+v\nwant %+v", twice, once)
	}
}

func TestMigrate_CurrentStateUntouched(t *testing.T) {
	st := New()
	st.Rooms["c1"] = &RoomRecord{Name: "general", Kind: KindPublicChannel}
	before := *st.Rooms["c1"]

	Migrate(st)

	if st.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", st.SchemaVersion, CurrentSchemaVersion)
	}
	if *st.Rooms["c1"] != before {
		t.Errorf("room mutated by no-op migration: %+v", st.Rooms["c1"])
	}
}
