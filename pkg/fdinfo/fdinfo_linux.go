//go:build linux

package fdinfo

import (
	"errors"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// scanRetries bounds retry attempts when the descriptor table changes under
// the scan.
const scanRetries = 3

// Snapshot returns the process's open descriptors above stderr, classified by
// stat mode and annotated with their readlink targets. Descriptors that
// vanish between listing and stat are skipped; they belong to the scan itself
// or to concurrent activity.
func Snapshot() (map[int]Info, error) {
	var lastErr error
	for attempt := 0; attempt <= scanRetries; attempt++ {
		snap, err := scan()
		if err == nil {
			return snap, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func scan() (map[int]Info, error) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return nil, err
	}

	snap := make(map[int]Info, len(entries))
	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if fd < 3 {
			// stdin, stdout and stderr are not the pool's to account for
			continue
		}

		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			if errors.Is(err, unix.EBADF) {
				continue
			}
			return nil, err
		}

		target, _ := os.Readlink("/proc/self/fd/" + entry.Name())
		snap[fd] = Info{FD: fd, Kind: classify(st.Mode), Target: target}
	}
	return snap, nil
}

func classify(mode uint32) Kind {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return Regular
	case unix.S_IFDIR:
		return Directory
	case unix.S_IFCHR:
		return CharDevice
	case unix.S_IFBLK:
		return BlockDevice
	case unix.S_IFIFO:
		return FIFO
	case unix.S_IFLNK:
		return Symlink
	case unix.S_IFSOCK:
		return Socket
	}
	return Unknown
}
