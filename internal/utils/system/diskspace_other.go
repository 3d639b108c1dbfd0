//go:build !unix

package system

import "errors"

// AvailableBytes is not implemented on this platform.
func AvailableBytes(path string) (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
