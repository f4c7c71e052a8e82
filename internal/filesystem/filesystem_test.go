package filesystem

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chunkserve/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirectoryExists(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "nested", "logs")

	err := EnsureDirectoryExists(testDir)
	assert.NoError(t, err)

	info, err := os.Stat(testDir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())

	// Test with existing directory
	assert.NoError(t, EnsureDirectoryExists(testDir))
	assert.NoError(t, EnsureDirectoryExists("."))
}

func TestGetFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.txt")
	content := "test content for file info"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	info, err := GetFileInfo(path)
	assert.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.NotZero(t, info.Modified)

	_, err = GetFileInfo(filepath.Join(t.TempDir(), "non_existent_file.txt"))
	assert.ErrorIs(t, err, errors.ErrFileSystem)
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("test.txt"))
	assert.NoError(t, ValidateFilePath("dir/test.txt"))
	assert.NoError(t, ValidateFilePath("dir/..hidden"))

	assert.Error(t, ValidateFilePath("../test.txt"))
	assert.Error(t, ValidateFilePath("dir/../../test.txt"))
	assert.Error(t, ValidateFilePath("/etc/passwd"))
}

func TestRoot_Open(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "served.txt"), []byte("payload"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "inner.bin"), []byte{1, 2, 3}, 0644))

	root, err := OpenRoot(base)
	require.NoError(t, err)
	defer root.Close()
	assert.Equal(t, base, root.Dir())

	file, info, err := root.Open("served.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)
	file.Close()

	file, info, err = root.Open("sub/inner.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	file.Close()

	for _, name := range []string{"missing.txt", "sub", "../served.txt", "/etc/hostname"} {
		_, _, err := root.Open(name)
		assert.ErrorIs(t, err, errors.ErrNotFound, name)
	}
}

func TestOpenRoot_MissingDirectory(t *testing.T) {
	_, err := OpenRoot(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, errors.ErrFileSystem)
}

func TestOpenAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transfers.log")

	f, err := OpenAppendFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenAppendFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestCreateOutputFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")

	f, err := CreateOutputFile(dir, "remote/dir/report.pdf")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, filepath.Join(dir, "report.pdf"), f.Name())

	_, err = CreateOutputFile(dir, "..")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash.txt")
	content := "test content for hash calculation"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	hash, err := CalculateFileHash(f)
	assert.NoError(t, err)

	expected := fmt.Sprintf("%x", md5.Sum([]byte(content)))
	assert.Equal(t, expected, hash)
}
