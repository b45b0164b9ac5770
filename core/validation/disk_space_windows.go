//go:build windows

package validation

import "golang.org/x/sys/windows"

// getDiskSpace returns total bytes and bytes available to the caller for the
// volume containing path.
func getDiskSpace(path string) (total int64, free int64, err error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}

	var freeToCaller, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeToCaller, &totalBytes, &totalFree); err != nil {
		return 0, 0, err
	}

	return int64(totalBytes), int64(freeToCaller), nil
}
