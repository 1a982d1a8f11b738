//go:build windows

package diskguard

import "golang.org/x/sys/windows"

// statfsFree reports free bytes available to the caller under path's
// volume, via GetDiskFreeSpaceEx.
func statfsFree(path string) (uint64, error) {
	var freeAvail, total, free uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &total, &free); err != nil {
		return 0, err
	}
	return freeAvail, nil
}
