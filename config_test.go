package nphdaq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acq.yaml")
	body := `
control:
  k_p: 1.5
  k_i: 0.1
  k_d: 0.2
  pid_formula: classic
device:
  buffer_capacity: 2048
  spi_devices: ["/dev/spi0", "/dev/spi1"]
output:
  output_directory: /data/runs
  events_per_file: 500
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1.5, cfg.Control.KP)
	require.Equal(t, "classic", cfg.Control.PIDFormula)
	require.Equal(t, 2048, cfg.Device.BufferCapacity)
	require.Equal(t, 500, cfg.Output.EventsPerFile)
	// Fields absent from the file keep the compiled-in defaults.
	require.Equal(t, 1.0, cfg.Control.FastScalerWeight)
}

func TestLoadConfig_MissingFileIsAnError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestReloadableConfig_PreservesStructuralFieldsAcrossReload(t *testing.T) {
	initial := DefaultConfig()
	initial.Device.BufferCapacity = 4096
	initial.Device.SpiDevices = [2]string{"/dev/spi0", "/dev/spi1"}
	initial.Control.NFastScalerAvg = 16

	rc := NewReloadableConfig(initial)

	fresh := DefaultConfig()
	fresh.Device.BufferCapacity = 1 // attempted structural change, must be ignored
	fresh.Control.KP = 9            // non-structural change, must apply

	restart := rc.Reload(fresh)
	if !restart {
		t.Fatal("expected Reload to flag a required restart on structural mismatch")
	}

	got := rc.Snapshot()
	if got.Device.BufferCapacity != 4096 {
		t.Fatalf("BufferCapacity changed across reload: %d", got.Device.BufferCapacity)
	}
	if got.Control.KP != 9 {
		t.Fatalf("KP did not apply across reload: %v", got.Control.KP)
	}
}
