package threadtable

import (
	"github.com/fanyeren/sysdig/fdtable"
)

// Thread is the per-tid reconstructed state (spec §3 "Thread record").
// A process record is simply the Thread whose Tid == Pid (the leader).
type Thread struct {
	Tid      uint32
	Pid      uint32
	ParentID uint32

	ExeName     string
	CmdLine     []string
	Cwd         string
	UID         uint32
	GID         uint32
	ContainerID string

	CreatedAt    int64 // ns since epoch
	LastAccessed int64 // ns since epoch, used for LRU eviction

	// Incomplete marks a record synthesized with only tid+timestamp
	// populated because no /proc synthesis was available or requested
	// (spec §4.6 "Tie-breaks").
	Incomplete bool

	// PendingExit marks a thread observed to have exited; removal is
	// deferred to the next Next() iteration so the caller's reference
	// from the exit-carrying event stays valid (spec §4.6 "exit/
	// exit_group", spec §9 open question (a)).
	PendingExit bool

	FDs *fdtable.Table

	// enterArgs stashes in-flight enter-phase syscall arguments keyed
	// by event type, consumed by the matching exit-phase handler (spec
	// §4.6 "Dispatch": "arguments and return values arrive on separate
	// events").
	enterArgs map[uint16]any

	// private is the fixed private-state block sized by the
	// SlotRegistry at capture start (spec §4.4 "Private state").
	private []byte
}

// IsLeader reports whether this record is a process leader (pid==tid).
func (t *Thread) IsLeader() bool { return t.Tid == t.Pid }

// StashEnterArgs records enter-phase arguments for evtType, to be
// picked up by the exit-phase handler for the same thread+type.
func (t *Thread) StashEnterArgs(evtType uint16, args any) {
	if t.enterArgs == nil {
		t.enterArgs = make(map[uint16]any)
	}
	t.enterArgs[evtType] = args
}

// TakeEnterArgs returns and clears the stashed enter-phase arguments
// for evtType, or (nil, false) if none were stashed.
func (t *Thread) TakeEnterArgs(evtType uint16) (any, bool) {
	if t.enterArgs == nil {
		return nil, false
	}
	v, ok := t.enterArgs[evtType]
	if ok {
		delete(t.enterArgs, evtType)
	}
	return v, ok
}

// PrivateSlot returns the byte range of the thread's private-state
// block addressed by id, per the SlotRegistry that sized it.
func (t *Thread) PrivateSlot(reg *SlotRegistry, id SlotID) []byte {
	if len(t.private) < reg.TotalSize() {
		nb := reg.NewBlock()
		copy(nb, t.private)
		t.private = nb
	}
	return reg.Slice(t.private, id)
}
