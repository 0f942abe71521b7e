package binaries

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBVDSEC/telecat/internal/hardware"
)

type memEntry struct {
	name string
	mode fs.FileMode
	data string
}

func (e memEntry) Name() string      { return e.name }
func (e memEntry) Mode() fs.FileMode { return e.mode }
func (e memEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(e.data)), nil
}

func dir(name string) memEntry { return memEntry{name: name, mode: fs.ModeDir | 0755} }

func file(name, data string) memEntry { return memEntry{name: name, mode: 0644, data: data} }

func release(root string) []entry {
	return []entry{
		dir(root),
		file(root+"/"+hardware.BinaryName(), "#!/bin/sh\necho hashcat\n"),
		dir(root + "/OpenCL"),
		file(root+"/OpenCL/inc_types.h", "typedef int u32;\n"),
		file(root+"/hashcat.hctune", "# tuning\n"),
	}
}

func TestInstallStripsReleaseDirectory(t *testing.T) {
	data := t.TempDir()
	inst := NewInstaller(data)

	binary, err := inst.install(release("hashcat-6.2.6"), 6)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(data, "binaries", "6", hardware.BinaryName()), binary)
	assert.FileExists(t, filepath.Join(data, "binaries", "6", "OpenCL", "inc_types.h"))
	assert.NoDirExists(t, filepath.Join(data, "binaries", "6", "hashcat-6.2.6"))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(binary)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0100, "binary is executable")
	}

	// the locator sees the new version
	latest, err := hardware.NewBinaryLocator(data).Latest()
	require.NoError(t, err)
	assert.Equal(t, binary, latest)

	// no staging directory is left behind
	entries, err := os.ReadDir(filepath.Join(data, "binaries"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "6", entries[0].Name())
}

func TestInstallFlatArchive(t *testing.T) {
	data := t.TempDir()

	binary, err := NewInstaller(data).install([]entry{
		file(hardware.BinaryName(), "bin"),
		file("OpenCL/inc_types.h", "x"),
	}, 7)
	require.NoError(t, err)
	assert.FileExists(t, binary)
	assert.FileExists(t, filepath.Join(data, "binaries", "7", "OpenCL", "inc_types.h"))
}

func TestInstallExistingVersion(t *testing.T) {
	data := t.TempDir()
	inst := NewInstaller(data)

	_, err := inst.install(release("hashcat-6.2.5"), 6)
	require.NoError(t, err)

	_, err = inst.install(release("hashcat-6.2.6"), 6)
	assert.ErrorIs(t, err, ErrVersionExists)

	entries := append(release("hashcat-6.2.6"), file("hashcat-6.2.6/NEW", "marker"))
	_, err = inst.WithForce(true).install(entries, 6)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(data, "binaries", "6", "NEW"))
}

func TestInstallRejectsBadArchives(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
		want    error
	}{
		{"parent escape", []entry{file("../../evil", "x"), file(hardware.BinaryName(), "x")}, ErrUnsafePath},
		{"nested escape", []entry{file("hashcat/../../evil", "x")}, ErrUnsafePath},
		{"absolute", []entry{file("/etc/evil", "x")}, ErrUnsafePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := t.TempDir()
			_, err := NewInstaller(data).install(tt.entries, 1)
			assert.ErrorIs(t, err, tt.want)
			assert.NoDirExists(t, filepath.Join(data, "binaries", "1"))
		})
	}

	data := t.TempDir()
	_, err := NewInstaller(data).install([]entry{file("hashcat-6.2.6/README.md", "docs")}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain")
	assert.NoDirExists(t, filepath.Join(data, "binaries", "1"))
}

func TestInstallArgumentErrors(t *testing.T) {
	inst := NewInstaller(t.TempDir())

	_, err := inst.Install("hashcat.7z", 0)
	assert.Error(t, err)

	_, err = inst.Install("hashcat.zip", 1)
	assert.ErrorContains(t, err, "unsupported archive format")

	_, err = inst.Install(filepath.Join(t.TempDir(), "missing.7z"), 1)
	assert.ErrorContains(t, err, "failed to open archive")

	junk := filepath.Join(t.TempDir(), "junk.7z")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not 7z"), 0644))
	_, err = inst.Install(junk, 1)
	assert.ErrorContains(t, err, "failed to open archive")
}

func TestRemove(t *testing.T) {
	data := t.TempDir()
	inst := NewInstaller(data)

	_, err := inst.install(release("hashcat-6.2.6"), 3)
	require.NoError(t, err)

	require.NoError(t, inst.Remove(3))
	assert.NoDirExists(t, filepath.Join(data, "binaries", "3"))
	assert.ErrorIs(t, inst.Remove(3), hardware.ErrNoBinary)
}

func TestSafeJoin(t *testing.T) {
	dest := t.TempDir()

	got, err := safeJoin(dest, "OpenCL/inc.h")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "OpenCL", "inc.h"), got)

	got, err = safeJoin(dest, "a/../b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "b"), got)

	for _, name := range []string{"..", "../x", "a/../../x", "/abs"} {
		_, err := safeJoin(dest, name)
		assert.ErrorIs(t, err, ErrUnsafePath, name)
	}
}

func TestCommonRoot(t *testing.T) {
	assert.Equal(t, "hashcat-6.2.6/", commonRoot(release("hashcat-6.2.6")))
	assert.Equal(t, "", commonRoot([]entry{file("hashcat.bin", "")}))
	assert.Equal(t, "", commonRoot([]entry{file("a/x", ""), file("b/y", "")}))
	assert.Equal(t, "root/", commonRoot([]entry{file(`root\win.txt`, "")}))
}
