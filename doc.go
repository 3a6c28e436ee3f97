// Package nphdaq implements the acquisition engine of a phased-array
// radio-detector data-acquisition daemon: a producer/controller/consumer
// pipeline coupling a hardware-driven waveform reader, a PID-controlled
// threshold monitor, and a writer that persists both streams to disk.
//
// # Architecture
//
// Four goroutines share a *Supervisor: the supervisor itself (signals,
// startup, shutdown, config reload), an acquisition worker that fills a
// ring buffer from the external Device's blocking multi-event read, a
// monitor worker that periodically reads device status, retunes per-beam
// trigger thresholds with a PID loop, and pushes status snapshots to a
// second ring buffer, and a writer worker that drains both rings into
// rotating gzip-compressed files grouped by run.
//
//	dev, _ := mydevice.Open(...)
//	cfg, _ := nphdaq.LoadConfig("acq.yaml")
//	sup := nphdaq.NewSupervisor(cfg, dev)
//	if err := sup.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// # Hardware boundary
//
// The Device interface stands in for the serial-bus driver, the
// housekeeping daemon, and the config-text-format parser: this package
// never talks to hardware directly. RecordCodec stands in for the
// on-disk record serializers (serialize_event/serialize_header/
// serialize_status) — nphdaq calls them but does not define the wire
// format.
//
// # Concurrency
//
// The acquisition and monitor rings are single-producer/single-consumer:
// RingBuffer[T] uses two atomic counters with no mutex on the hot path.
// The writer is the sole consumer of both. PID state and the fast-scaler
// window are exclusive to the monitor goroutine; only point-in-time
// copies cross into a StatusSnapshot.
package nphdaq
