package nphdaq

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// configDirEnv names the environment variable that points at the
// directory holding acq.yaml, mirroring CONFIG_DIR_ENV
// ("NUPHASE_CONFIG_DIR") in original_source/include/nuphase-common.h.
const configDirEnv = "NUPHASE_CONFIG_DIR"

// configFileName is this repo's config file, YAML rather than the
// original's custom key=value ".cfg" text format: the format itself is an
// external collaborator per spec.md's Non-goals, so it is resolved with
// gopkg.in/yaml.v3 instead of hand-rolling a parser for it.
const configFileName = "acq.yaml"

// ControlConfig holds the monitor/PID tuning parameters, spec.md §6's
// Control block.
type ControlConfig struct {
	ScalerGoal                   [NumBeams]float64 `yaml:"scaler_goal"`
	TriggerMask                  uint32            `yaml:"trigger_mask"`
	ChannelMask                  uint32            `yaml:"channel_mask"`
	KP                           float64           `yaml:"k_p"`
	KI                           float64           `yaml:"k_i"`
	KD                           float64           `yaml:"k_d"`
	PIDFormula                   string            `yaml:"pid_formula"` // "legacy" (default) or "classic"
	MaxThresholdIncrease         float64           `yaml:"max_threshold_increase"`
	MinThreshold                 float64           `yaml:"min_threshold"`
	MonitorIntervalSecs          float64           `yaml:"monitor_interval"`
	SwTriggerIntervalSecs        float64           `yaml:"sw_trigger_interval"`
	EnablePhasedTrigger          bool              `yaml:"enable_phased_trigger"`
	SecsBeforePhasedTrigger      float64           `yaml:"secs_before_phased_trigger"`
	FastScalerWeight             float64           `yaml:"fast_scaler_weight"`
	SlowScalerWeight             float64           `yaml:"slow_scaler_weight"`
	NFastScalerAvg               int               `yaml:"n_fast_scaler_avg"`
	SubtractGated                bool              `yaml:"subtract_gated"`
	StatusSaveFile               string            `yaml:"status_save_file"`
	LoadThresholdsFromStatusFile bool              `yaml:"load_thresholds_from_status_file"`
}

// SurfaceConfig holds the surface-array trigger settings (see
// SPEC_FULL.md §10), which original_source applies in the same
// configure_device() call as the rest of the device setup.
type SurfaceConfig struct {
	Readout            bool    `yaml:"surface_readout"`
	Throttle           float64 `yaml:"surface_throttle"`
	ChannelReadMask    uint32  `yaml:"surface_channel_read_mask"`
	VppThreshold       float64 `yaml:"surface_vpp_threshold"`
	CoincidenceWindow  float64 `yaml:"surface_coincidence_window"`
	AntennaMask        uint32  `yaml:"surface_antenna_mask"`
	NumCoincidences    int     `yaml:"surface_num_coincidences"`
	Shutdown           bool    `yaml:"surface_shutdown"`
	WaveformLength     int     `yaml:"surface_waveform_length"`
	Pretrigger         uint8   `yaml:"surface_pretrigger"`
	EventsPerFile      int     `yaml:"surface_events_per_file"`
}

// DeviceConfig holds the acquisition hardware's configuration, spec.md
// §6's Device block plus the supplemented ext-trigger-input and
// beamforming fields from original_source (SPEC_FULL.md §10).
type DeviceConfig struct {
	SpiDevices     [2]string `yaml:"spi_devices"`
	BufferCapacity int       `yaml:"buffer_capacity"`
	WaveformLength int       `yaml:"waveform_length"`
	Pretrigger     uint8     `yaml:"pretrigger"`

	CalpulserState bool `yaml:"calpulser_state"`

	EnableTrigout         bool    `yaml:"enable_trigout"`
	TrigoutWidth          float64 `yaml:"trigout_width"`
	DisableTrigoutOnExit  bool    `yaml:"disable_trigout_on_exit"`
	EnableExtTriggerInput bool    `yaml:"enable_extin"`

	SpiClock int `yaml:"spi_clock"`

	ApplyAttenuations bool        `yaml:"apply_attenuations"`
	Attenuation       [2][8]uint8 `yaml:"attenuation"`

	TriggerMask     uint32    `yaml:"trigger_mask"`
	ChannelMask     uint32    `yaml:"channel_mask"`
	ChannelReadMask [2]uint32 `yaml:"channel_read_mask"`

	TrigDelays   [8]uint8 `yaml:"trig_delays"`
	PollUsecs    int      `yaml:"poll_usecs"`
	MinThreshold float64  `yaml:"min_threshold"`

	AlignmentCommand string  `yaml:"alignment_command"`
	DesiredRMSMaster float64 `yaml:"desired_rms_master"`
	DesiredRMSSlave  float64 `yaml:"desired_rms_slave"`

	EnableBeamforming bool `yaml:"enable_beamforming"`

	Surface SurfaceConfig `yaml:"surface"`
}

// OutputConfig holds the run/file-management settings, spec.md §6's
// Output block.
type OutputConfig struct {
	RunFile           string   `yaml:"run_file"`
	OutputDirectory   string   `yaml:"output_directory"`
	PrintIntervalSecs float64  `yaml:"print_interval"`
	RunLengthSecs     float64  `yaml:"run_length"`
	EventsPerFile     int      `yaml:"events_per_file"`
	StatusPerFile     int      `yaml:"status_per_file"`
	RealtimePriority  int      `yaml:"realtime_priority"`
	CopyPathsToRundir []string `yaml:"copy_paths_to_rundir"`
	CopyConfigs       bool     `yaml:"copy_configs"`
}

// Config is the full daemon configuration, spec.md §6. Structural
// settings (SpiDevices, BufferCapacity, NFastScalerAvg) require a
// restart; everything else may be hot-reloaded over SIGUSR1.
type Config struct {
	Control ControlConfig `yaml:"control"`
	Device  DeviceConfig  `yaml:"device"`
	Output  OutputConfig  `yaml:"output"`
}

// DefaultConfig returns the zero-value-safe baseline the daemon falls
// back on before any file is read, matching the original's compiled-in
// defaults applied before read_config overlays the file.
func DefaultConfig() Config {
	return Config{
		Control: ControlConfig{
			PIDFormula:          "legacy",
			MonitorIntervalSecs: 1,
			FastScalerWeight:    1,
			SlowScalerWeight:    1,
			NFastScalerAvg:      8,
		},
		Device: DeviceConfig{
			BufferCapacity: 1024,
			WaveformLength: 512,
			PollUsecs:      1000,
			Surface: SurfaceConfig{
				EventsPerFile: 100,
			},
		},
		Output: OutputConfig{
			PrintIntervalSecs: 10,
			EventsPerFile:     100,
			StatusPerFile:     100,
		},
	}
}

// LoadConfig resolves the config file the way nuphase_get_cfg_file does
// for NUPHASE_ACQ: NUPHASE_CONFIG_DIR/acq.yaml if the env var is set,
// else "acq.yaml" in the current directory (the original's fallback is a
// compiled-in default tree; this repo keeps the lookup but simplifies the
// fallback, since the original directory-layout convention is itself an
// external collaborator).
func LoadConfig(explicitPath string) (Config, error) {
	cfg := DefaultConfig()

	path := explicitPath
	if path == "" {
		dir := os.Getenv(configDirEnv)
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, configFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("nphdaq: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("nphdaq: parsing config %s: %w", path, err)
	}
	if cfg.Control.PIDFormula == "" {
		cfg.Control.PIDFormula = "legacy"
	}
	return cfg, nil
}

// Clone returns a deep copy safe to mutate independently of the
// receiver (Config has no pointer/slice fields requiring special
// handling except CopyPathsToRundir).
func (c Config) Clone() Config {
	clone := c
	clone.Output.CopyPathsToRundir = append([]string(nil), c.Output.CopyPathsToRundir...)
	return clone
}

// ReloadableConfig guards a live Config behind a mutex, applied on
// SIGUSR1 the way read_config's config_lock mutex does for the global
// config struct: reload replaces everything except the structural fields
// that require a restart (spi_devices, buffer_capacity,
// n_fast_scaler_avg), per spec.md §8 scenario 6.
type ReloadableConfig struct {
	mu  sync.RWMutex
	cur Config
}

// NewReloadableConfig wraps an initial configuration.
func NewReloadableConfig(initial Config) *ReloadableConfig {
	return &ReloadableConfig{cur: initial}
}

// Snapshot returns a copy of the current configuration.
func (r *ReloadableConfig) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur.Clone()
}

// Reload overlays fresh with the current config's structural fields held
// constant, then installs it as current, returning whether a restart is
// required because a structural field actually changed.
func (r *ReloadableConfig) Reload(fresh Config) (requiresRestart bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fresh.Device.SpiDevices != r.cur.Device.SpiDevices ||
		fresh.Device.BufferCapacity != r.cur.Device.BufferCapacity ||
		fresh.Control.NFastScalerAvg != r.cur.Control.NFastScalerAvg {
		requiresRestart = true
	}

	fresh.Device.SpiDevices = r.cur.Device.SpiDevices
	fresh.Device.BufferCapacity = r.cur.Device.BufferCapacity
	fresh.Control.NFastScalerAvg = r.cur.Control.NFastScalerAvg

	r.cur = fresh
	return requiresRestart
}
