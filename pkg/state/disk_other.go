//go:build !unix

package state

import "errors"

var errDiskUsageUnsupported = errors.New("disk usage not supported on this platform")

func DiskUsage(path string) (used, total uint64, err error) {
	return 0, 0, errDiskUsageUnsupported
}
