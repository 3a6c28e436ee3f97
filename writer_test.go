package nphdaq

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type stubCodec struct{}

func (stubCodec) WriteEvent(w io.Writer, ev Event) error {
	_, err := io.WriteString(w, "event\n")
	return err
}
func (stubCodec) WriteHeader(w io.Writer, h Header) error {
	_, err := io.WriteString(w, "header\n")
	return err
}
func (stubCodec) WriteStatus(w io.Writer, st StatusSnapshot) error {
	_, err := io.WriteString(w, "status\n")
	return err
}

func TestWriterWorker_RotatesEventFilesAndProducesValidGzip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output.EventsPerFile = 2
	rc := NewReloadableConfig(cfg)

	acq := NewRingBuffer[EventBatch](8, nil)
	mon := NewRingBuffer[StatusSnapshot](8, nil)

	w, err := NewWriterWorker(stubCodec{}, rc, acq, mon, nil, filepath.Join(dir, "run1"), 1, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewWriterWorker: %v", err)
	}

	for i := 0; i < 3; i++ {
		var batch EventBatch
		batch.NFilled = 1
		batch.Events[0] = Event{EventNumber: uint64(i + 1)}
		batch.Headers[0] = Header{EventNumber: uint64(i + 1)}
		w.writeBatch(batch)
	}
	w.closeAll()

	entries, err := os.ReadDir(filepath.Join(dir, "run1", "event"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 rotated event files, got %d", len(entries))
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".gz" {
			t.Fatalf("file %s was not finalized to .gz", e.Name())
		}
		data, err := os.ReadFile(filepath.Join(dir, "run1", "event", e.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("file %s is not valid gzip: %v", e.Name(), err)
		}
		gr.Close()
	}
}

func TestWriterWorker_ConfigDirectoryLayout(t *testing.T) {
	dir := t.TempDir()
	rc := NewReloadableConfig(DefaultConfig())
	acq := NewRingBuffer[EventBatch](4, nil)
	mon := NewRingBuffer[StatusSnapshot](4, nil)

	runDir := filepath.Join(dir, "run7")
	if _, err := NewWriterWorker(stubCodec{}, rc, acq, mon, nil, runDir, 7, nil, nil, nil); err != nil {
		t.Fatalf("NewWriterWorker: %v", err)
	}

	for _, sub := range []string{"event", "header", "status", "aux", "cfg"} {
		if fi, err := os.Stat(filepath.Join(runDir, sub)); err != nil || !fi.IsDir() {
			t.Fatalf("expected subdirectory %s to exist", sub)
		}
	}
}

func TestWriterWorker_StagesCopyPaths(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(srcFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Output.CopyPathsToRundir = []string{srcFile}
	rc := NewReloadableConfig(cfg)

	acq := NewRingBuffer[EventBatch](4, nil)
	mon := NewRingBuffer[StatusSnapshot](4, nil)
	runDir := filepath.Join(dir, "run1")

	if _, err := NewWriterWorker(stubCodec{}, rc, acq, mon, nil, runDir, 1, nil, nil, nil); err != nil {
		t.Fatalf("NewWriterWorker: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(runDir, "aux", "note.txt"))
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("staged file content = %q, want %q", got, "hello")
	}
}
