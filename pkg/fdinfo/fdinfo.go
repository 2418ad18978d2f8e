// Package fdinfo provides diagnostic accounting of the process's open file
// descriptors.
//
// It exists so pool teardown can be verified from the outside: snapshot the
// descriptor table, run a pool with the pipe transport, snapshot again and
// diff. A drained or closed pool must leave the table exactly as it found it.
package fdinfo

// Kind classifies a descriptor by its stat mode bits.
type Kind int

const (
	Unknown Kind = iota
	Regular
	Directory
	CharDevice
	BlockDevice
	FIFO
	Symlink
	Socket
)

// String returns the classification name.
func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case CharDevice:
		return "character_device"
	case BlockDevice:
		return "block_device"
	case FIFO:
		return "fifo"
	case Symlink:
		return "symlink"
	case Socket:
		return "socket"
	default:
		return "unknown"
	}
}

// Info describes one open descriptor.
type Info struct {
	// FD is the descriptor number
	FD int

	// Kind is the stat-mode classification
	Kind Kind

	// Target is the readlink destination, empty if unreadable
	Target string
}

// Diff is the difference between two snapshots, keyed by descriptor number.
type Diff struct {
	// Opened holds descriptors present only in the later snapshot
	Opened map[int]Info

	// Closed holds descriptors present only in the earlier snapshot
	Closed map[int]Info
}

// Empty reports whether the snapshots describe the same descriptor set.
func (d Diff) Empty() bool {
	return len(d.Opened) == 0 && len(d.Closed) == 0
}

// Compare diffs two snapshots by descriptor number.
func Compare(before, after map[int]Info) Diff {
	d := Diff{
		Opened: make(map[int]Info),
		Closed: make(map[int]Info),
	}
	for fd, info := range after {
		if _, ok := before[fd]; !ok {
			d.Opened[fd] = info
		}
	}
	for fd, info := range before {
		if _, ok := after[fd]; !ok {
			d.Closed[fd] = info
		}
	}
	return d
}
