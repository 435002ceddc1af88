// Package runner drives one export run end to end: load state, refresh the
// room catalog, fetch and write the windows each room still owes, advance
// watermarks, and persist state once at the end.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bvolkov/historian/internal/catalog"
	"github.com/bvolkov/historian/internal/export"
	"github.com/bvolkov/historian/internal/fetch"
	"github.com/bvolkov/historian/internal/rocketchat"
	"github.com/bvolkov/historian/internal/schedule"
	"github.com/bvolkov/historian/internal/state"
)

// Provider lists the rooms visible to the exporting account.
type Provider interface {
	ListJoinedChannels(ctx context.Context) ([]rocketchat.Room, error)
	ListDirectMessages(ctx context.Context) ([]rocketchat.Room, error)
	ListPrivateGroups(ctx context.Context) ([]rocketchat.Room, error)
}

// HistoryFetcher retrieves one day window of a room's history.
type HistoryFetcher interface {
	Fetch(ctx context.Context, kind state.RoomKind, roomID string, window schedule.DayWindow) (fetch.Result, error)
}

// FileWriter persists one room-day export file.
type FileWriter interface {
	WriteDay(roomName string, day time.Time, raw string) (path string, bytes int64, err error)
}

// RunLedger records runs and the artifacts they produce.
type RunLedger interface {
	BeginRun(id string, startedAt time.Time) error
	FinishRun(id string, finishedAt time.Time, status string, r export.Run) error
	RecordArtifact(a export.Artifact) error
}

// Runner owns the per-run control flow. It is single-threaded: every remote
// call is a blocking suspension point, and SyncState is mutated only here.
type Runner struct {
	provider Provider
	fetcher  HistoryFetcher
	writer   FileWriter
	ledger   RunLedger
	pacer    *fetch.Pacer
	logger   *slog.Logger

	statePath string
	readOnly  bool

	// now and newRunID are swapped out by tests.
	now      func() time.Time
	newRunID func() string
}

// Options configures a Runner.
type Options struct {
	Provider  Provider
	Fetcher   HistoryFetcher
	Writer    FileWriter
	Ledger    RunLedger
	Pacer     *fetch.Pacer
	Logger    *slog.Logger
	StatePath string

	// ReadOnly suppresses state and ledger writes; export files are still
	// written.
	ReadOnly bool
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		provider:  opts.Provider,
		fetcher:   opts.Fetcher,
		writer:    opts.Writer,
		ledger:    opts.Ledger,
		pacer:     opts.Pacer,
		logger:    logger,
		statePath: opts.StatePath,
		readOnly:  opts.ReadOnly,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// Run performs one export run over [globalStart, globalEnd]. A nil
// globalStart means each room resumes from its own watermark. Any error is
// fatal to the run: no watermarks are persisted, so the next run replays
// from the last saved state.
func (r *Runner) Run(ctx context.Context, globalStart *time.Time, globalEnd time.Time) error {
	st, err := state.Load(r.statePath)
	if err != nil {
		return err
	}

	runID := r.newRunID()
	startedAt := r.now().UTC()
	r.logger.Info("run started", "run", runID, "end", globalEnd, "readOnly", r.readOnly)

	if !r.readOnly {
		if err := r.ledger.BeginRun(runID, startedAt); err != nil {
			return fmt.Errorf("recording run start: %w", err)
		}
	}

	counters, err := r.export(ctx, st, runID, globalStart, globalEnd)
	status := "completed"
	if err != nil {
		status = "failed"
	}

	if !r.readOnly {
		if lerr := r.ledger.FinishRun(runID, r.now().UTC(), status, counters); lerr != nil {
			r.logger.Error("recording run end", "run", runID, "error", lerr)
		}
	}
	if err != nil {
		return err
	}

	if !r.readOnly {
		if err := state.Save(r.statePath, st); err != nil {
			return fmt.Errorf("persisting state: %w", err)
		}
	}

	r.logger.Info("run finished", "run", runID,
		"rooms", counters.RoomsScanned, "windows", counters.WindowsFetched,
		"files", counters.FilesWritten, "messages", counters.MessagesExported)
	return nil
}

func (r *Runner) export(ctx context.Context, st *state.SyncState, runID string, globalStart *time.Time, globalEnd time.Time) (export.Run, error) {
	var counters export.Run

	lists, err := r.listRooms(ctx)
	if err != nil {
		return counters, err
	}
	catalog.Merge(st, lists)

	for _, id := range sortedRoomIDs(st) {
		room := st.Rooms[id]
		counters.RoomsScanned++

		windows := schedule.Plan(room, globalStart, globalEnd)
		if len(windows) == 0 {
			r.logger.Info("nothing to grab", "room", room.Name)
		} else {
			r.logger.Info("grabbing messages",
				"room", room.Name, "kind", room.Kind,
				"since", windows[0].Start, "through", windows[len(windows)-1].End)
		}

		for _, window := range windows {
			result, err := r.fetcher.Fetch(ctx, room.Kind, id, window)
			if err != nil {
				return counters, err
			}
			counters.WindowsFetched++

			if result.Overflow || result.Count == 0 {
				continue
			}

			path, size, err := r.writer.WriteDay(room.Name, window.Start, result.Raw)
			if err != nil {
				return counters, err
			}
			counters.FilesWritten++
			counters.MessagesExported += result.Count
			r.logger.Info("wrote export file",
				"room", room.Name, "day", window.Start.Format("2006-01-02"),
				"messages", result.Count, "bytes", size)

			if !r.readOnly {
				artifact := export.Artifact{
					RoomID:       id,
					RoomName:     room.Name,
					Day:          window.Start,
					Path:         path,
					MessageCount: result.Count,
					Bytes:        size,
					RunID:        runID,
					WrittenAt:    r.now().UTC(),
				}
				if err := r.ledger.RecordArtifact(artifact); err != nil {
					return counters, fmt.Errorf("recording artifact: %w", err)
				}
			}
		}

		// The watermark means "checked through", not "last write": advancing
		// it after an empty plan keeps dormant rooms from being re-scanned.
		// It never moves backward.
		if room.SyncedThrough == nil || globalEnd.After(*room.SyncedThrough) {
			end := globalEnd
			room.SyncedThrough = &end
		}
	}

	return counters, nil
}

// listRooms fetches all three room listings, pacing before each call the
// same as history calls.
func (r *Runner) listRooms(ctx context.Context) (catalog.Lists, error) {
	var lists catalog.Lists

	if err := r.pacer.Wait(ctx); err != nil {
		return lists, err
	}
	channels, err := r.provider.ListJoinedChannels(ctx)
	if err != nil {
		return lists, fmt.Errorf("listing channels: %w", err)
	}

	if err := r.pacer.Wait(ctx); err != nil {
		return lists, err
	}
	dms, err := r.provider.ListDirectMessages(ctx)
	if err != nil {
		return lists, fmt.Errorf("listing direct messages: %w", err)
	}

	if err := r.pacer.Wait(ctx); err != nil {
		return lists, err
	}
	groups, err := r.provider.ListPrivateGroups(ctx)
	if err != nil {
		return lists, fmt.Errorf("listing private groups: %w", err)
	}

	lists.Channels = channels
	lists.DirectMessages = dms
	lists.PrivateGroups = groups
	return lists, nil
}

func sortedRoomIDs(st *state.SyncState) []string {
	ids := make([]string, 0, len(st.Rooms))
	for id := range st.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
