package filesystem

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chunkserve/internal/config"
	"chunkserve/internal/errors"
)

// FileInfo represents information about a file to be transferred
type FileInfo struct {
	Name     string
	Size     int64
	Path     string
	IsDir    bool
	Modified time.Time
}

// ValidateFilePath checks that a requested name stays inside the served
// directory: no absolute paths and no parent-directory components.
func ValidateFilePath(path string) error {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return errors.NewValidationError("file_path", path, "absolute paths are not served")
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return errors.NewValidationError("file_path", path, "path contains directory traversal")
		}
	}

	return nil
}

// GetFileInfo returns information about a file
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewFileSystemError("stat", path, err)
	}

	return &FileInfo{
		Name:     stat.Name(),
		Size:     stat.Size(),
		Path:     path,
		IsDir:    stat.IsDir(),
		Modified: stat.ModTime(),
	}, nil
}

// Root serves files from a single base directory. Lookups cannot escape it,
// whatever the requested name contains.
type Root struct {
	dir  string
	root *os.Root
}

// OpenRoot opens dir as the served directory
func OpenRoot(dir string) (*Root, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, errors.NewFileSystemError("open_root", dir, err)
	}
	return &Root{dir: dir, root: root}, nil
}

// Dir returns the directory the root was opened on
func (r *Root) Dir() string {
	return r.dir
}

// Open opens a regular file below the root for reading. Every failure,
// including names that would escape the root and directories, is reported as
// a NotFoundError since the client only ever learns that nothing was sent.
func (r *Root) Open(name string) (*os.File, *FileInfo, error) {
	if err := ValidateFilePath(name); err != nil {
		return nil, nil, errors.NewNotFoundError(name, err)
	}

	file, err := r.root.Open(name)
	if err != nil {
		return nil, nil, errors.NewNotFoundError(name, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, errors.NewNotFoundError(name, err)
	}
	if !stat.Mode().IsRegular() {
		file.Close()
		return nil, nil, errors.NewNotFoundError(name, fs.ErrInvalid)
	}

	return file, &FileInfo{
		Name:     stat.Name(),
		Size:     stat.Size(),
		Path:     filepath.Join(r.dir, name),
		IsDir:    false,
		Modified: stat.ModTime(),
	}, nil
}

// Close releases the root directory handle
func (r *Root) Close() error {
	return r.root.Close()
}

// OpenAppendFile opens path for appending, creating it and its parent
// directory when missing.
func OpenAppendFile(path string) (*os.File, error) {
	if err := EnsureDirectoryExists(filepath.Dir(path)); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, config.LogFilePerms)
	if err != nil {
		return nil, errors.NewFileSystemError("open_append", path, err)
	}
	return file, nil
}

// CreateOutputFile creates (or truncates) the local copy of a requested file
// inside dir. Only the base name of the request is used.
func CreateOutputFile(dir, requested string) (*os.File, error) {
	name := filepath.Base(filepath.FromSlash(requested))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return nil, errors.NewValidationError("filename", requested, "no usable file name")
	}

	if err := EnsureDirectoryExists(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, config.OutFilePerms)
	if err != nil {
		return nil, errors.NewFileSystemError("create", path, err)
	}

	slog.Debug("Output file created", "path", path)
	return file, nil
}

// CalculateFileHash calculates MD5 hash of a file
func CalculateFileHash(file *os.File) (string, error) {
	// Reset file position
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", errors.NewFileSystemError("seek", file.Name(), err)
	}

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", errors.NewFileSystemError("read_hash", file.Name(), err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// EnsureDirectoryExists creates a directory if it doesn't exist
func EnsureDirectoryExists(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, config.LogDirPerms); err != nil {
		return errors.NewFileSystemError("mkdir", dir, err)
	}

	return nil
}
