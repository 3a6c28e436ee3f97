package nphdaq

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nuphase/nphdaq/internal/simdevice"
)

func newTestConfig(t *testing.T, dir string) Config {
	t.Helper()
	cfg := DefaultConfig()
	runFile := filepath.Join(dir, "run_number")
	if err := os.WriteFile(runFile, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("seeding run file: %v", err)
	}
	cfg.Output.RunFile = runFile
	cfg.Output.OutputDirectory = dir
	cfg.Output.RunLengthSecs = 0 // no auto-timeout in tests
	cfg.Control.MonitorIntervalSecs = 0.02
	return cfg
}

func TestSupervisor_StartupAdvancesRunNumberAndCreatesRunDir(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	dev := simdevice.New(1)

	sup := NewSupervisor(cfg, dev, WithRecordCodec(GobCodec{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	got, err := readRunNumber(cfg.Output.RunFile)
	if err != nil {
		t.Fatalf("readRunNumber: %v", err)
	}
	if got != 2 {
		t.Fatalf("run file = %d, want 2 (advanced past the run just started)", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "run1")); err != nil {
		t.Fatalf("expected run1 directory to exist: %v", err)
	}
}

func TestSupervisor_FatalOnContextCancelUnblocksDevice(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	dev := simdevice.New(2)
	sup := NewSupervisor(cfg, dev, WithRecordCodec(GobCodec{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not shut down within 2s of context cancellation")
	}
}
