// Package binaries installs hashcat release archives into the data directory
// layout read by hardware.BinaryLocator.
package binaries

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"

	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

var (
	// ErrVersionExists is returned when installing over an existing version
	ErrVersionExists = errors.New("binary version already installed")
	// ErrUnsafePath is returned for archive members escaping the install directory
	ErrUnsafePath = errors.New("archive member escapes install directory")
)

// entry is one archive member
type entry interface {
	Name() string
	Mode() fs.FileMode
	Open() (io.ReadCloser, error)
}

type sevenzipEntry struct {
	f *sevenzip.File
}

func (e sevenzipEntry) Name() string                 { return e.f.Name }
func (e sevenzipEntry) Mode() fs.FileMode            { return e.f.Mode() }
func (e sevenzipEntry) Open() (io.ReadCloser, error) { return e.f.Open() }

// Installer unpacks hashcat releases under <data dir>/binaries/<version>/
type Installer struct {
	locator *hardware.BinaryLocator
	force   bool
}

// NewInstaller creates an installer for dataDirectory
func NewInstaller(dataDirectory string) *Installer {
	return &Installer{locator: hardware.NewBinaryLocator(dataDirectory)}
}

// WithForce replaces an installed version instead of failing
func (i *Installer) WithForce(force bool) *Installer {
	i.force = force
	return i
}

// Install unpacks a hashcat .7z release as version and returns the path of
// its binary. The release's top-level directory is stripped.
func (i *Installer) Install(archivePath string, version int64) (string, error) {
	if version <= 0 {
		return "", fmt.Errorf("invalid binary version %d", version)
	}
	if ext := strings.ToLower(filepath.Ext(archivePath)); ext != ".7z" {
		return "", fmt.Errorf("unsupported archive format: %s", ext)
	}

	debug.Info("Installing hashcat archive %s as version %d", archivePath, version)

	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	entries := make([]entry, 0, len(reader.File))
	for _, f := range reader.File {
		entries = append(entries, sevenzipEntry{f: f})
	}
	return i.install(entries, version)
}

func (i *Installer) install(entries []entry, version int64) (string, error) {
	target := i.locator.VersionDir(version)
	if _, err := os.Stat(target); err == nil {
		if !i.force {
			return "", fmt.Errorf("%w: %d", ErrVersionExists, version)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to check %s: %w", target, err)
	}

	if err := os.MkdirAll(i.locator.Root(), 0755); err != nil {
		return "", fmt.Errorf("failed to create binaries directory: %w", err)
	}
	staging, err := os.MkdirTemp(i.locator.Root(), ".install-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	count, err := extract(entries, staging)
	if err != nil {
		return "", err
	}
	binary := filepath.Join(staging, hardware.BinaryName())
	if _, err := os.Stat(binary); err != nil {
		return "", fmt.Errorf("archive does not contain %s", hardware.BinaryName())
	}
	if err := os.Chmod(binary, 0755); err != nil {
		return "", fmt.Errorf("failed to make %s executable: %w", binary, err)
	}

	if err := os.RemoveAll(target); err != nil {
		return "", fmt.Errorf("failed to replace version %d: %w", version, err)
	}
	if err := os.Rename(staging, target); err != nil {
		return "", fmt.Errorf("failed to move version %d into place: %w", version, err)
	}

	debug.Info("Installed %d files as hashcat version %d", count, version)
	return i.locator.Version(version)
}

// Remove deletes an installed version
func (i *Installer) Remove(version int64) error {
	target := i.locator.VersionDir(version)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("%w: version %d", hardware.ErrNoBinary, version)
	}
	return os.RemoveAll(target)
}

// extract writes entries below dest and returns the number of files written
func extract(entries []entry, dest string) (int, error) {
	prefix := commonRoot(entries)
	count := 0

	for _, e := range entries {
		clean := path.Clean(strings.ReplaceAll(e.Name(), "\\", "/"))
		if prefix != "" && clean+"/" == prefix {
			continue
		}
		name := strings.TrimPrefix(clean, prefix)
		if name == "" || name == "." {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return count, err
		}

		if e.Mode().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if !e.Mode().IsRegular() {
			debug.Debug("Skipping archive member %s with mode %v", e.Name(), e.Mode())
			continue
		}

		if err := writeEntry(e, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func writeEntry(e entry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := e.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", e.Name(), err)
	}
	defer src.Close()

	perm := e.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", e.Name(), err)
	}
	return dst.Close()
}

// commonRoot returns "dir/" when every member lives below the same top-level
// directory, as in hashcat's hashcat-6.2.6/ releases
func commonRoot(entries []entry) string {
	root := ""
	for _, e := range entries {
		name := path.Clean(strings.ReplaceAll(e.Name(), "\\", "/"))
		first, _, nested := strings.Cut(name, "/")
		if first == ".." || (!nested && !e.Mode().IsDir()) {
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

// safeJoin joins name below dest, rejecting absolute and parent-relative names
func safeJoin(dest, name string) (string, error) {
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
