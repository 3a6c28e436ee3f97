package nphdaq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// rotatingFile is a gzip-compressed output file that rotates after a
// fixed number of records, grounded on the teacher's initFile/
// performRotation/compressFile pipeline in agilira-lethe's rotation.go:
// writes land in a "<name>.gz.tmp" file, and closing/rotating the file
// renames it to "<name>.gz" only once the writer is done with it, so a
// reader never observes a partially written ".gz" file. This is the Go
// counterpart of the original's do_close, which (per its tmp_suffix
// parameter, not present in the retrieved source but implied by every
// call site appending it to the filename) renames away a temporary
// suffix on close.
type rotatingFile struct {
	finalPath string
	tmpPath   string
	f         *os.File
	gz        *gzip.Writer
	count     int
}

// openRotatingFile creates <finalPath>.tmp, wraps it in a gzip writer,
// and returns the handle. The caller writes through Writer() and tracks
// count itself (records per file varies by kind: events, headers,
// status).
func openRotatingFile(finalPath string) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("nphdaq: creating output dir for %s: %w", finalPath, err)
	}
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("nphdaq: creating %s: %w", tmpPath, err)
	}
	return &rotatingFile{
		finalPath: finalPath,
		tmpPath:   tmpPath,
		f:         f,
		gz:        gzip.NewWriter(f),
	}, nil
}

// Writer returns the gzip writer records should be serialized into.
func (r *rotatingFile) Writer() *gzip.Writer { return r.gz }

// Close flushes and closes the gzip stream and the underlying file, then
// atomically renames the temp file to its final name. Only one error is
// returned, checked in the order rename, gzip close, file close; the
// rename is attempted even if flush/close reported an error so a
// best-effort file is still produced.
func (r *rotatingFile) Close() error {
	gzErr := r.gz.Close()
	fErr := r.f.Close()
	renameErr := os.Rename(r.tmpPath, r.finalPath)
	switch {
	case renameErr != nil:
		return fmt.Errorf("nphdaq: finalizing %s: %w", r.finalPath, renameErr)
	case gzErr != nil:
		return fmt.Errorf("nphdaq: closing gzip stream for %s: %w", r.finalPath, gzErr)
	case fErr != nil:
		return fmt.Errorf("nphdaq: closing file %s: %w", r.finalPath, fErr)
	}
	return nil
}

// ensureRunDirs creates the run directory and its fixed set of
// subdirectories, mirroring make_dirs_for_output's subdirs table
// ("event","header","status","aux","cfg").
func ensureRunDirs(runDir string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", errRunDirFailed, runDir, err)
	}
	for _, sub := range [...]string{"event", "header", "status", "aux", "cfg"} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o755); err != nil {
			return fmt.Errorf("%w: %s/%s: %v", errRunDirFailed, runDir, sub, err)
		}
	}
	return nil
}

// copyPathsToRundir stages each configured path under runDir/aux,
// mirroring write_thread's copy_paths_to_rundir staging step. Unlike the
// original (which shells out via system("cp -r %s %s/aux")), this walks
// and copies the filesystem directly: a config-controlled path list
// should never be interpolated into a shell command.
func copyPathsToRundir(paths []string, runDir string) error {
	destRoot := filepath.Join(runDir, "aux")
	for _, src := range paths {
		if src == "" {
			continue
		}
		dest := filepath.Join(destRoot, filepath.Base(src))
		if err := copyPath(src, dest); err != nil {
			return fmt.Errorf("nphdaq: staging %s to %s: %w", src, dest, err)
		}
	}
	return nil
}

func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(src, func(path string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dest, rel)
			if fi.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyFile(path, target, fi.Mode())
		})
	}
	return copyFile(src, dest, info.Mode())
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
