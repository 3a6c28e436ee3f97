package nphdaq

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// statusStoreRecordSize is the fixed on-disk size of a persisted
// StatusSnapshot: one float64 per beam for new thresholds plus a Unix
// nanosecond timestamp, mirroring the original's decision to mmap a
// fixed-size nuphase_status_t so the file can be read back (and the
// thresholds reapplied) across a restart. The persisted record only
// needs to survive as thresholds, not the full snapshot.
const statusStoreRecordSize = 8 + NumBeams*8

// StatusStore persists the most recent threshold set to a fixed-size,
// memory-mapped file so a restart can resume from where the last run
// left off, grounded on setup()'s status_save_fd/saved_status handling
// and write_thread's msync(MS_ASYNC) call in
// original_source/src/nuphase-acq.c.
type StatusStore struct {
	f    *os.File
	data []byte
}

// OpenStatusStore opens (creating if needed) and mmaps path, truncating
// or extending it to exactly statusStoreRecordSize bytes. valid reports
// whether the file already held a full record before this call (the
// original's "file_size == sizeof(nuphase_status_t)" check), so the
// caller can decide whether to seed the device from LastThresholds.
func OpenStatusStore(path string) (store *StatusStore, valid bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("nphdaq: opening status store %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("nphdaq: stat status store %s: %w", path, err)
	}
	valid = info.Size() == statusStoreRecordSize

	if info.Size() != statusStoreRecordSize {
		if err := f.Truncate(statusStoreRecordSize); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("nphdaq: truncating status store %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, statusStoreRecordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("nphdaq: mmap status store %s: %w", path, err)
	}

	return &StatusStore{f: f, data: data}, valid, nil
}

// LastThresholds decodes the thresholds currently mapped in, for reuse
// when load_thresholds_from_status_file is set and OpenStatusStore
// reported valid=true.
func (s *StatusStore) LastThresholds() [NumBeams]float64 {
	var out [NumBeams]float64
	for i := range out {
		bits := binary.LittleEndian.Uint64(s.data[8+i*8:])
		out[i] = math.Float64frombits(bits)
	}
	return out
}

// Write overwrites the mapped record with snap's thresholds and an
// async msync, matching write_thread's
// "if (saved_status == last_status) msync(..., MS_ASYNC)" step: the
// sync is asynchronous, so Write does not block on disk I/O.
func (s *StatusStore) Write(snap StatusSnapshot) error {
	binary.LittleEndian.PutUint64(s.data[0:], uint64(snap.Timestamp.UnixNano()))
	for i, v := range snap.NewThresholds {
		binary.LittleEndian.PutUint64(s.data[8+i*8:], math.Float64bits(v))
	}
	return unix.Msync(s.data, unix.MS_ASYNC)
}

// Close unmaps and closes the backing file, matching teardown()'s
// munmap/close pair.
func (s *StatusStore) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		s.f.Close()
		return fmt.Errorf("nphdaq: munmap status store: %w", err)
	}
	return s.f.Close()
}
