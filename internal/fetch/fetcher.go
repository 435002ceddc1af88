// Package fetch retrieves one room-day of history at a time, pacing calls
// to the provider and absorbing its rate limiting.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/bvolkov/historian/internal/rocketchat"
	"github.com/bvolkov/historian/internal/schedule"
	"github.com/bvolkov/historian/internal/state"
)

// MaxRetryWait is the largest server-requested wait that is honored. A
// server asking for more is misbehaving (or the error mapping is wrong),
// and the run aborts rather than stalling silently.
const MaxRetryWait = 300 * time.Second

// UnreasonableBackoffError reports a rate-limit response whose requested
// wait exceeds MaxRetryWait. Fatal.
type UnreasonableBackoffError struct {
	Wait    time.Duration
	Message string
}

func (e *UnreasonableBackoffError) Error() string {
	return fmt.Sprintf("server requested unreasonable backoff of %s: %s", e.Wait, e.Message)
}

// UnhandledProviderError reports a failed history call whose error text is
// not a recognized rate limit. Nothing else is known-recoverable, so the
// run aborts rather than skipping data. Fatal.
type UnhandledProviderError struct {
	Message string
}

func (e *UnhandledProviderError) Error() string {
	return fmt.Sprintf("unhandled provider error: %s", e.Message)
}

// rateLimitPattern matches the server's throttling error text and captures
// the requested wait, e.g. "error-too-many-requests, must wait 5 seconds".
var rateLimitPattern = regexp.MustCompile(`must wait (\d+) seconds`)

func parseRetryWait(errText string) (time.Duration, bool) {
	m := rateLimitPattern.FindStringSubmatch(errText)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// HistoryAPI is the provider capability the fetcher consumes.
type HistoryAPI interface {
	FetchHistory(ctx context.Context, kind state.RoomKind, roomID string, oldest, latest time.Time, limit int) (rocketchat.HistoryPage, error)
}

// Result is one successfully fetched window. Overflow marks the degenerate
// case of the server reporting more messages than were requested; such a
// window is logged and must not be written.
type Result struct {
	Messages []json.RawMessage
	Raw      string
	Count    int
	Overflow bool
}

// Fetcher pulls history windows through a shared Pacer.
type Fetcher struct {
	api    HistoryAPI
	pacer  *Pacer
	limit  int
	logger *slog.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher requesting at most limit messages per window.
func New(api HistoryAPI, pacer *Pacer, limit int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		api:    api,
		pacer:  pacer,
		limit:  limit,
		logger: logger,
		sleep:  waitWithContext,
	}
}

// Fetch retrieves one window of the room's history, retrying as long as the
// server answers with a parseable rate limit and a tolerable wait. There is
// no retry cap: the server dictates the wait, and waits above MaxRetryWait
// abort the run.
func (f *Fetcher) Fetch(ctx context.Context, kind state.RoomKind, roomID string, window schedule.DayWindow) (Result, error) {
	day := window.Start.Format("2006-01-02")
	for {
		if err := f.pacer.Wait(ctx); err != nil {
			return Result{}, err
		}

		page, err := f.api.FetchHistory(ctx, kind, roomID, window.Start, window.End, f.limit)
		if err != nil {
			return Result{}, fmt.Errorf("fetching history for room %s day %s: %w", roomID, day, err)
		}

		if page.Success {
			result := Result{
				Messages: page.Messages,
				Raw:      page.Raw,
				Count:    len(page.Messages),
			}
			if result.Count > f.limit {
				// The server should never return more than was requested;
				// treat the window as provider inconsistency, not data.
				f.logger.Error("message count exceeds requested limit, skipping window",
					"room", roomID, "day", day, "count", result.Count, "limit", f.limit)
				result.Overflow = true
			}
			return result, nil
		}

		wait, ok := parseRetryWait(page.Error)
		if !ok {
			return Result{}, &UnhandledProviderError{Message: page.Error}
		}
		if wait > MaxRetryWait {
			return Result{}, &UnreasonableBackoffError{Wait: wait, Message: page.Error}
		}

		f.logger.Warn("rate limited, retrying window",
			"room", roomID, "day", day, "wait", wait)
		f.pacer.Raise(wait)
		if err := f.sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}
}
