package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	snapshotFile = "snapshot.json"
	versionFile  = "snapshot.version"
)

// Cache stores the last good snapshot and its version token.
type Cache interface {
	Dir() string
	ReadSnapshot() ([]byte, error)
	ReadVersion() (string, error)
	WriteSnapshot(data []byte) error
	WriteVersion(version string) error
	RemoveSnapshot() error
}

// DiskCache holds the last good snapshot file and its version token. Both
// files are replaced by writing a temp file, syncing it and renaming it over
// the old one, so readers only ever see complete files.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) *DiskCache {
	return &DiskCache{dir: dir}
}

func (c *DiskCache) Dir() string { return c.dir }

// ReadSnapshot returns the cached snapshot bytes, or fs.ErrNotExist.
func (c *DiskCache) ReadSnapshot() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, snapshotFile))
	if err != nil {
		return nil, fmt.Errorf("reading cached snapshot: %w", err)
	}
	return data, nil
}

// ReadVersion returns the recorded version token, or "" when none exists.
func (c *DiskCache) ReadVersion() (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, versionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cached version: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *DiskCache) WriteSnapshot(data []byte) error {
	return c.writeAtomic(snapshotFile, data)
}

func (c *DiskCache) WriteVersion(version string) error {
	return c.writeAtomic(versionFile, []byte(version))
}

// RemoveSnapshot deletes the cached snapshot file. A missing file is not an
// error.
func (c *DiskCache) RemoveSnapshot() error {
	err := os.Remove(filepath.Join(c.dir, snapshotFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cached snapshot: %w", err)
	}
	return nil
}

func (c *DiskCache) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	f, err := os.CreateTemp(c.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err = os.Rename(tmpPath, filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}
