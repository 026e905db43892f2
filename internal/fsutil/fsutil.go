// Package fsutil provides the file and path helpers used by the cache and the
// synthesis pipeline.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o640
	partialSuffix          = ".part-*"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtOpenSource        = "failed to open %s: %w"
	errFmtCreatePartial     = "failed to create temporary file in %s: %w"
	errFmtCopy              = "failed to copy %s to %s: %w"
	errFmtRename            = "failed to move %s into place: %w"
)

// ErrNotRegular is returned when a path exists but is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// FileExists reports whether path is a non-empty regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular() && info.Size() > 0
}

// CopyFile copies src to dst through a temporary file in dst's directory so
// readers of dst never observe a partial write. Concurrent copies to the
// same dst resolve to the last rename.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf(errFmtOpenSource, src, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, src)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf(errFmtOpenSource, src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)

	out, err := os.CreateTemp(dir, filepath.Base(dst)+partialSuffix)
	if err != nil {
		return fmt.Errorf(errFmtCreatePartial, dir, err)
	}

	partial := out.Name()

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr == nil {
		copyErr = closeErr
	}

	if copyErr == nil {
		copyErr = os.Chmod(partial, defaultFilePermissions)
	}

	if copyErr != nil {
		_ = os.Remove(partial)

		return fmt.Errorf(errFmtCopy, src, dst, copyErr)
	}

	err = os.Rename(partial, dst)
	if err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf(errFmtRename, dst, err)
	}

	return nil
}

// WriteFile writes data to path atomically, like CopyFile.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)

	out, err := os.CreateTemp(dir, filepath.Base(path)+partialSuffix)
	if err != nil {
		return fmt.Errorf(errFmtCreatePartial, dir, err)
	}

	partial := out.Name()

	_, writeErr := out.Write(data)
	closeErr := out.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(partial, defaultFilePermissions)
	}

	if writeErr != nil {
		_ = os.Remove(partial)

		return fmt.Errorf("failed to write %s: %w", path, writeErr)
	}

	err = os.Rename(partial, path)
	if err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf(errFmtRename, path, err)
	}

	return nil
}

// TrimExt returns path without its final extension.
func TrimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// SizeOf returns the size of the file at path, or 0 if it cannot be read.
func SizeOf(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
