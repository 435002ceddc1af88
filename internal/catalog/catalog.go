// Package catalog reconciles the rooms reported by the chat server with the
// rooms tracked in the sync state.
package catalog

import (
	"time"

	"github.com/bvolkov/historian/internal/rocketchat"
	"github.com/bvolkov/historian/internal/state"
)

// Lists holds one run's room listings, grouped the way the provider reports
// them.
type Lists struct {
	Channels       []rocketchat.Room
	DirectMessages []rocketchat.Room
	PrivateGroups  []rocketchat.Room
}

// Merge folds the provider's room lists into st. Newly discovered rooms get
// a fresh record with no watermark; for rooms already tracked, only
// LastMessageAt is refreshed — name, kind, creation time, and sync progress
// are never overwritten.
func Merge(st *state.SyncState, lists Lists) {
	mergeGroup(st, lists.Channels, state.KindPublicChannel)
	mergeGroup(st, lists.DirectMessages, state.KindDirectMessage)
	mergeGroup(st, lists.PrivateGroups, state.KindPrivateGroup)
}

func mergeGroup(st *state.SyncState, rooms []rocketchat.Room, kind state.RoomKind) {
	for _, room := range rooms {
		rec, ok := st.Rooms[room.ID]
		if !ok {
			rec = &state.RoomRecord{
				Name:      displayName(room),
				Kind:      kind,
				CreatedAt: startOfDay(room.CreatedAt),
			}
			st.Rooms[room.ID] = rec
		}

		// The provider's last-message hint is advisory and refreshed every
		// run; nil means the room has no messages at all.
		if room.LastMessageAt != nil {
			lm := room.LastMessageAt.UTC()
			rec.LastMessageAt = &lm
		} else {
			rec.LastMessageAt = nil
		}
	}
}

// displayName synthesizes a stable name for direct messages, which the
// provider reports without one.
func displayName(room rocketchat.Room) string {
	if room.Name != "" {
		return room.Name
	}
	return "direct-" + room.ID
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
