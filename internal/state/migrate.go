package state

// A migration upgrades a state document from any version below `to` up to
// `to`. Steps must be idempotent against already-upgraded data: each one is
// guarded by the version check in Migrate, and new steps are appended, never
// rewritten.
type migration struct {
	to    int
	apply func(*SyncState)
}

var migrations = []migration{
	{to: 2, apply: renameLegacyKinds},
}

// Migrate applies pending schema upgrades in order and stamps the current
// version. It mutates st in place and returns it for convenience. Calling it
// on an up-to-date state is a no-op.
func Migrate(st *SyncState) *SyncState {
	for _, m := range migrations {
		if st.SchemaVersion >= m.to {
			continue
		}
		m.apply(st)
		st.SchemaVersion = m.to
	}
	return st
}

// renameLegacyKinds maps the v1 room-type names, which mirrored the remote
// API's endpoint groups, onto the explicit kind enum.
func renameLegacyKinds(st *SyncState) {
	legacy := map[RoomKind]RoomKind{
		"channels": KindPublicChannel,
		"ims":      KindDirectMessage,
		"groups":   KindPrivateGroup,
	}
	for _, room := range st.Rooms {
		if mapped, ok := legacy[room.Kind]; ok {
			room.Kind = mapped
		}
	}
}
