package nphdaq

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readRunNumber reads the decimal integer stored in path, mirroring
// setup()'s fscanf(run_file, "%d\n", &run_number).
func readRunNumber(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("nphdaq: reading run file %s: %w", path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("nphdaq: parsing run file %s: %w", path, err)
	}
	return n, nil
}

// advanceRunNumber writes next to a temp file in the same directory as
// path, then atomically renames it over path, mirroring setup()/
// read_config's write-to-tmp_run_file-then-rename pattern (which used a
// single fixed "/tmp/.runfile" path; here the temp file lives alongside
// the real one so the rename stays on one filesystem).
func advanceRunNumber(path string, next int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", next)), 0o644); err != nil {
		return fmt.Errorf("nphdaq: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("nphdaq: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
