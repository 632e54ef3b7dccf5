//go:build windows

package fileio

import "os"

// openNoFollow opens a file for writing.
// O_NOFOLLOW is not available on Windows.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

func openNoFollowRead(path string) (*os.File, error) {
	return os.Open(path)
}

// syncDir is a no-op; directory handles cannot be fsynced on Windows.
func syncDir(string) error {
	return nil
}
