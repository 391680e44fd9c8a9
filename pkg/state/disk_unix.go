//go:build unix

package state

import "golang.org/x/sys/unix"

// DiskUsage reports used and total bytes of the filesystem holding path.
func DiskUsage(path string) (used, total uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	available := stat.Bavail * uint64(stat.Bsize)
	total = stat.Blocks * uint64(stat.Bsize)
	return total - available, total, nil
}
