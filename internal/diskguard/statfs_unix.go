//go:build unix

package diskguard

import "golang.org/x/sys/unix"

// statfsFree reports free bytes available to an unprivileged user under
// path's filesystem, via unix.Statfs.
func statfsFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
