package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/LBVDSEC/telecat/pkg/debug"
)

// ErrNoBinary is returned when no installed hashcat binary matches a lookup
var ErrNoBinary = errors.New("hashcat binary not found")

// BinaryName is the executable name inside an installed hashcat release
func BinaryName() string {
	if runtime.GOOS == "windows" {
		return "hashcat.exe"
	}
	return "hashcat.bin"
}

// BinaryLocator finds hashcat releases installed under
// <data dir>/binaries/<version>/
type BinaryLocator struct {
	dataDirectory string
}

// NewBinaryLocator creates a locator rooted at dataDirectory
func NewBinaryLocator(dataDirectory string) *BinaryLocator {
	return &BinaryLocator{dataDirectory: dataDirectory}
}

// Root returns the directory holding one subdirectory per version
func (l *BinaryLocator) Root() string {
	return filepath.Join(l.dataDirectory, "binaries")
}

// VersionDir returns the install directory of version
func (l *BinaryLocator) VersionDir(version int64) string {
	return filepath.Join(l.Root(), strconv.FormatInt(version, 10))
}

// Versions lists installed versions that contain a binary, ascending
func (l *BinaryLocator) Versions() ([]int64, error) {
	entries, err := os.ReadDir(l.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to read binaries directory: %w", err)
	}

	var versions []int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil || version <= 0 {
			continue
		}
		if _, err := l.Version(version); err == nil {
			versions = append(versions, version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// Latest returns the binary of the highest installed version
func (l *BinaryLocator) Latest() (string, error) {
	versions, err := l.Versions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: no versions installed in %s", ErrNoBinary, l.Root())
	}
	return l.Version(versions[len(versions)-1])
}

// Version returns the binary of one installed version
func (l *BinaryLocator) Version(version int64) (string, error) {
	path := filepath.Join(l.VersionDir(version), BinaryName())
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoBinary, path)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNoBinary, path)
	}
	return path, nil
}

// Resolve returns the binary of version, or the latest one when version is 0
// or not installed
func (l *BinaryLocator) Resolve(version int64) (string, error) {
	if version > 0 {
		path, err := l.Version(version)
		if err == nil {
			return path, nil
		}
		debug.Warning("Binary version %d unavailable (%v), falling back to latest", version, err)
	}
	return l.Latest()
}

// Has reports whether any version is installed
func (l *BinaryLocator) Has() bool {
	_, err := l.Latest()
	return err == nil
}
