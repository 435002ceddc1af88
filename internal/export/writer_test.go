package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if got, want := FileName("general", day), "2023-01-02-general.json"; got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestWriteDay_TrimsAndWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	raw := "\n  {\"messages\": [], \"success\": true}  \n"
	path, size, err := w.WriteDay("general", day, raw)
	if err != nil {
		t.Fatalf("WriteDay: %v", err)
	}
	if want := filepath.Join(dir, "2023-01-02-general.json"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export file: %v", err)
	}
	if want := `{"messages": [], "success": true}`; string(data) != want {
		t.Errorf("file contents = %q, want trimmed body %q", data, want)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
}

func TestWriteDay_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if _, _, err := w.WriteDay("general", day, `{"v": 1}`); err != nil {
		t.Fatalf("first WriteDay: %v", err)
	}
	path, _, err := w.WriteDay("general", day, `{"v": 2}`)
	if err != nil {
		t.Fatalf("second WriteDay: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export file: %v", err)
	}
	if want := `{"v": 2}`; string(data) != want {
		t.Errorf("file contents = %q, want re-exported body %q", data, want)
	}
}

func TestNewWriter_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	if _, err := NewWriter(dir); err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("output directory not created: %v", err)
	}
}
