// Package schedule computes the day windows a room still needs exported.
package schedule

import (
	"time"

	"github.com/bvolkov/historian/internal/state"
)

// DayWindow is one unit of history pagination: a single UTC calendar day,
// closed on both ends at microsecond resolution.
type DayWindow struct {
	Start time.Time // midnight
	End   time.Time // 23:59:59.999999
}

// Plan returns the consecutive day windows that still need fetching for
// room, oldest first. It is a pure function of the room record and the
// global bounds, recomputed from scratch every run.
//
// The lower bound is the global start (fast-forwarded to the room's creation
// when the room is younger), or else one microsecond past the room's
// watermark, or else the room's creation time. Windows are produced while
// the window start is before both globalEnd and the room's last known
// message; a room with no messages, or nothing new since the watermark,
// yields no windows.
func Plan(room *state.RoomRecord, globalStart *time.Time, globalEnd time.Time) []DayWindow {
	lower := effectiveLower(room, globalStart)

	if room.LastMessageAt == nil {
		return nil
	}
	lastMessage := room.LastMessageAt.UTC()
	if !lower.Before(globalEnd) || !lower.Before(lastMessage) {
		return nil
	}

	var windows []DayWindow
	for start := StartOfDay(lower); start.Before(globalEnd) && start.Before(lastMessage); start = start.AddDate(0, 0, 1) {
		windows = append(windows, DayWindow{Start: start, End: EndOfDay(start)})
	}
	return windows
}

func effectiveLower(room *state.RoomRecord, globalStart *time.Time) time.Time {
	if globalStart != nil {
		// An explicit start predating the room fast-forwards to creation.
		if room.CreatedAt.After(*globalStart) {
			return room.CreatedAt.UTC()
		}
		return globalStart.UTC()
	}
	if room.SyncedThrough != nil {
		return room.SyncedThrough.UTC().Add(time.Microsecond)
	}
	return room.CreatedAt.UTC()
}

// StartOfDay truncates t to midnight of its UTC day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last representable microsecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Microsecond)
}
