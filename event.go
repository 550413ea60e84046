package sysdig

import (
	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// Event is the enriched event (spec §3 "Event (enriched)"): a value
// object reused across iterations, carrying the raw frame fields plus
// borrowed references into the reconstructed OS state. This type can
// only live in the root package: Thread/FD point into threadtable/
// fdtable, and those packages must never import back up to something
// that knows about both at once (spec §9 "Friendship" design note —
// this package is the one broad-access collaborator, everything below
// it gets a narrow capability).
//
// Lifetime: overwritten on every call to Next; callers must not retain
// it past the following call (spec §3, §5 "Shared resources").
type Event struct {
	EventNum uint64
	Ts       int64
	CPU      uint16
	Type     types.EventType
	Dir      types.Direction
	Tid      uint32
	RetVal   int64
	Params   []types.Param

	// Thread is nil only if resolution somehow failed entirely, which
	// Engine.Dispatch never does (it always creates a minimal,
	// Incomplete record as a last resort).
	Thread *threadtable.Thread

	// FD is nil whenever the event does not reference a resolved file
	// descriptor (e.g. clone, execve, or an fd the parser could not
	// find).
	FD *fdtable.Descriptor
}

func (i *Inspector) bindEvent(raw types.RawEvent, th *threadtable.Thread, fd *fdtable.Descriptor) Event {
	return Event{
		EventNum: raw.EventNum,
		Ts:       raw.Ts,
		CPU:      raw.CPU,
		Type:     raw.Type,
		Dir:      raw.Dir,
		Tid:      raw.Tid,
		RetVal:   raw.RetVal,
		Params:   raw.Params,
		Thread:   th,
		FD:       fd,
	}
}
