//go:build !linux

package fdinfo

import "errors"

// Snapshot requires the /proc descriptor table and is only implemented on
// Linux.
func Snapshot() (map[int]Info, error) {
	return nil, errors.ErrUnsupported
}
