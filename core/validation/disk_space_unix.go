//go:build !windows

package validation

import "golang.org/x/sys/unix"

// getDiskSpace returns total bytes and bytes available to unprivileged users
// for the filesystem containing path.
func getDiskSpace(path string) (total int64, free int64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}

	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total, free, nil
}
