// Package export persists fetched history: one JSON file per room-day on
// disk, plus a SQLite ledger recording runs and the artifacts they produced.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer writes room-day export files into a flat output directory.
type Writer struct {
	outputDir string
}

// NewWriter ensures outputDir exists and returns a Writer for it.
func NewWriter(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{outputDir: outputDir}, nil
}

// FileName returns the export file name for a room and day: the day in
// YYYY-MM-DD form, a dash, the room name, and a .json suffix.
func FileName(roomName string, day time.Time) string {
	return day.UTC().Format("2006-01-02") + "-" + roomName + ".json"
}

// WriteDay writes the provider's response body for one room-day, trimmed of
// surrounding whitespace. Re-exporting a day overwrites the previous file.
// It returns the full path of the written file and its size in bytes.
func (w *Writer) WriteDay(roomName string, day time.Time, raw string) (string, int64, error) {
	path := filepath.Join(w.outputDir, FileName(roomName, day))
	body := []byte(strings.TrimSpace(raw))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", 0, fmt.Errorf("writing export file: %w", err)
	}
	return path, int64(len(body)), nil
}
