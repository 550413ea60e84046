// Package fdtable implements C3 (spec §4.3): the per-thread map from
// fd number to FD descriptor. Grounded on the teacher's
// process.ProcessMap / network.ConnectionMap shape (mutex-guarded
// map + helper accessors), narrowed here to per-thread ownership: each
// threadtable.Thread owns exactly one *fdtable.Table, so there is no
// cross-thread locking — the inspector loop is single-threaded over
// the whole reconstruction (spec §5).
package fdtable

// Type tags the kind of a file descriptor (spec §3 "FD descriptor").
type Type uint8

const (
	TypeUnknown Type = iota
	TypeFile
	TypeDirectory
	TypeIPv4Sock
	TypeIPv6Sock
	TypeUnixSock
	TypePipe
	TypeEventfd
	TypeSignalfd
	TypeInotify
	TypeTimerfd
	TypeOther
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeIPv4Sock:
		return "ipv4"
	case TypeIPv6Sock:
		return "ipv6"
	case TypeUnixSock:
		return "unix"
	case TypePipe:
		return "pipe"
	case TypeEventfd:
		return "eventfd"
	case TypeSignalfd:
		return "signalfd"
	case TypeInotify:
		return "inotify"
	case TypeTimerfd:
		return "timerfd"
	case TypeOther:
		return "other"
	default:
		return "unknown"
	}
}

func (t Type) IsSocket() bool {
	return t == TypeIPv4Sock || t == TypeIPv6Sock || t == TypeUnixSock
}

// ClosedHook is invoked whenever a descriptor is discarded by Add
// replacing an existing entry, so decoders can observe a synthetic
// close (spec §4.3 "add(fd, desc) (replace if present; old descriptor
// discarded with a synthetic close observation for decoders)").
type ClosedHook func(fd int32, old *Descriptor)

// Table is one thread's fd -> descriptor map. Not safe for concurrent
// use across threads; the inspector loop is single-threaded over it
// (spec §4.3).
type Table struct {
	byFD   map[int32]*Descriptor
	onShut ClosedHook
}

// New creates an empty FD table. onClosed, if non-nil, fires for every
// descriptor displaced by Add or removed by Remove.
func New(onClosed ClosedHook) *Table {
	return &Table{byFD: make(map[int32]*Descriptor), onShut: onClosed}
}

// Get returns the descriptor for fd, or nil if absent.
func (t *Table) Get(fd int32) *Descriptor {
	return t.byFD[fd]
}

// Add installs desc at fd, replacing any existing descriptor. The
// previous occupant, if any, is reported to onShut before being
// dropped (spec §4.3).
func (t *Table) Add(fd int32, desc *Descriptor) {
	if old, ok := t.byFD[fd]; ok && t.onShut != nil {
		t.onShut(fd, old)
	}
	desc.FD = fd
	t.byFD[fd] = desc
}

// Remove deletes fd from the table, if present.
func (t *Table) Remove(fd int32) {
	if old, ok := t.byFD[fd]; ok {
		delete(t.byFD, fd)
		if t.onShut != nil {
			t.onShut(fd, old)
		}
	}
}

// Iter calls fn for every live descriptor. fn must not mutate the
// table.
func (t *Table) Iter(fn func(fd int32, d *Descriptor)) {
	for fd, d := range t.byFD {
		fn(fd, d)
	}
}

// Len reports the number of live descriptors.
func (t *Table) Len() int { return len(t.byFD) }

// SetClosedHook rebinds the table's close observer, used when a table
// changes owning thread (e.g. a cloned table inherited by a new
// thread record) and the hook needs to report the new owner.
func (t *Table) SetClosedHook(hook ClosedHook) { t.onShut = hook }

// Clone returns a deep copy of the table, used by dup-table-wide
// semantics (a clone that does not share CLONE_FILES).
func (t *Table) Clone() *Table {
	nt := New(t.onShut)
	for fd, d := range t.byFD {
		cp := *d
		nt.byFD[fd] = &cp
	}
	return nt
}
