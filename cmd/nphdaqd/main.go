// Command nphdaqd runs the acquisition engine daemon.
package main

import (
	"context"
	"fmt"
	"os"

	flashflags "github.com/agilira/flash-flags"

	"github.com/nuphase/nphdaq"
	"github.com/nuphase/nphdaq/internal/simdevice"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flashflags.New("nphdaqd")
	configPath := fs.String("config", "", "path to the acquisition config file (defaults to $NUPHASE_CONFIG_DIR/acq.yaml)")
	sim := fs.Bool("sim", false, "run against a simulated device instead of real hardware")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// A missing or unparsable config file keeps the daemon running on
	// LoadConfig's compiled-in defaults rather than aborting startup;
	// only device-open/setup failures below are fatal.
	cfg, err := nphdaq.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nphdaqd: %v; continuing with default config\n", err)
	}

	var dev nphdaq.Device
	if *sim {
		dev = simdevice.New(1)
	} else {
		fmt.Fprintln(os.Stderr, "nphdaqd: no hardware Device implementation wired in; run with -sim")
		return 1
	}

	onErr := func(op string, err error) {
		fmt.Fprintf(os.Stderr, "nphdaqd: %s: %v\n", op, err)
	}

	sup := nphdaq.NewSupervisor(cfg, dev,
		nphdaq.WithErrorCallback(onErr),
		nphdaq.WithRecordCodec(nphdaq.GobCodec{}),
		nphdaq.WithSummaryWriter(os.Stdout),
	)

	// Supervisor.Run installs its own signal handling (SIGINT/SIGTERM/
	// SIGUSR1/SIGUSR2) internally; it is the sole owner of the shutdown
	// flag by design, so main does not also listen for signals here.
	if err := sup.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
