//go:build !darwin && !linux

package storage

// Filesystem type is not inspected here; the path is treated as local.
func detectFilesystemType(string) (string, error) {
	return "", nil
}
