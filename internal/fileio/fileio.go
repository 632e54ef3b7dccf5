// Package fileio holds the crash-safe file primitives shared by the
// checkpoint, transcript, prompt and audio stores.
package fileio

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TempSuffix marks in-progress writes. Sweeps remove leftovers with this suffix.
const TempSuffix = ".tmp"

// WriteAtomic replaces path with data. Readers observe either the previous
// content or the new content, never a partial write.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		os.Remove(tempPath)
		return fmt.Errorf("destination is a symlink: %s", path)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return syncDir(filepath.Dir(path))
}

// WriteExclusive creates path with data, failing with an error satisfying
// os.IsExist if the path already exists. The content appears atomically.
func WriteExclusive(path string, data []byte, perm os.FileMode) error {
	tempPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	// Link fails if path exists, so a finished file is never replaced.
	if err := os.Link(tempPath, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

// ReadFile reads path without following a symlink in the final component.
func ReadFile(path string) ([]byte, error) {
	f, err := openNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// IsTemp reports whether name is a leftover temp file from an interrupted write.
func IsTemp(name string) bool {
	return strings.HasSuffix(name, TempSuffix)
}

// EnsureDir creates dir with owner-only permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	// best-effort, may not work on all platforms
	_ = os.Chmod(dir, 0700)
	return nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + TempSuffix

	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return "", err
	}
	if err := file.Sync(); err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	file = nil

	success = true
	return tempPath, nil
}
