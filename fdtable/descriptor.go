package fdtable

import "github.com/fanyeren/sysdig/types"

// Descriptor is reconstructed state for one open file descriptor on
// one thread (spec §3 "FD descriptor").
type Descriptor struct {
	FD   int32
	Type Type

	// Path is populated for TypeFile/TypeDirectory.
	Path string

	// Tuple is populated for socket types; zero value until a
	// bind/connect/accept observation sets it (spec §4.6).
	Tuple types.Tuple
}

// NewFile returns a file-typed descriptor with the given resolved
// absolute path (spec §4.6 "open/openat/creat").
func NewFile(path string, dir bool) *Descriptor {
	t := TypeFile
	if dir {
		t = TypeDirectory
	}
	return &Descriptor{Type: t, Path: path}
}

// NewSocket returns a socket-typed descriptor with an empty tuple
// (spec §4.6 "socket").
func NewSocket(t Type) *Descriptor {
	return &Descriptor{Type: t}
}

// NewOther returns a descriptor of one of the fixed non-file,
// non-socket kinds (pipe, eventfd, signalfd, inotify, timerfd, other).
func NewOther(t Type) *Descriptor {
	return &Descriptor{Type: t}
}

// Clone returns a value copy, used by dup semantics (spec §4.3/§4.6:
// "Dup copies descriptors; no shared ownership across threads").
func (d *Descriptor) Clone() *Descriptor {
	cp := *d
	return &cp
}
