// Package parser implements C6 (spec §4.6): the state-transition
// engine that mutates the thread table, FD tables, and container
// manager in response to raw events, and annotates each event with
// resolved references. Grounded on the teacher's types/events.go
// event-type constants together with the type-switch-by-code style of
// FormatProcessEvent/FormatNetworkEvent, generalized per spec §9's
// "Polymorphism over event types" design note from a formatting
// switch into a genuine (type, direction) dispatch table.
package parser

import (
	"github.com/fanyeren/sysdig/container"
	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// handler is one dispatch-table entry. Enter records in-flight
// arguments on the thread record; Exit completes the transition using
// both the stashed enter-time arguments and the exit event's return
// value (spec §4.6 "Dispatch").
type handler struct {
	Enter func(e *Engine, th *threadtable.Thread, raw types.RawEvent)
	Exit  func(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor
}

// Engine is the event parser (spec §4.6).
type Engine struct {
	Threads    *threadtable.Table
	Containers *container.Manager

	Decoders *Decoders

	// QueryOSIfNotFound enables best-effort /proc synthesis for
	// unknown tids on live captures (spec §4.4 find_or_create,
	// §4.6 "Tie-breaks").
	QueryOSIfNotFound bool
	Live              bool

	// OSQuery, if set, performs the /proc synthesis; nil means "not
	// available" (e.g. non-Linux build, or file-mode capture).
	OSQuery func(tid uint32) (*threadtable.Thread, bool)

	Logger types.Logger

	meta     *types.RawEvent
	handlers map[types.EventType]*handler
}

// New constructs a parser engine wired to the given collaborators.
func New(threads *threadtable.Table, containers *container.Manager, logger types.Logger) *Engine {
	e := &Engine{
		Threads:    threads,
		Containers: containers,
		Decoders:   NewDecoders(),
		Logger:     logger,
	}
	e.handlers = make(map[types.EventType]*handler)
	registerProcessHandlers(e)
	registerFDHandlers(e)
	registerCredHandlers(e)
	threads.OnRemove = e.Decoders.fireReset
	threads.FDClosedHook = e.fireClose
	return e
}

// fireClose adapts threadtable's per-thread fdtable.ClosedHook into a
// CategoryClose decoder event (spec §4.3 "synthetic close observation
// for decoders").
func (e *Engine) fireClose(th *threadtable.Thread, fd int32, old *fdtable.Descriptor) {
	e.Decoders.fire(CategoryClose, DecoderEvent{Thread: th, FD: old})
}

func (e *Engine) register(t types.EventType, h *handler) {
	e.handlers[t] = h
}

// Result carries the annotations Dispatch derived for the caller to
// bind onto the public enriched Event (assembled by the root package,
// which is the only layer allowed to know about both threadtable and
// fdtable at once — see spec §9 "Friendship" design note).
type Result struct {
	Thread *threadtable.Thread
	FD     *fdtable.Descriptor
}

// Dispatch resolves raw's owning thread (creating or synthesizing it
// if necessary) and runs the matching dispatch-table handler, mutating
// C3-C5 as a side effect (spec §4.6 "Input ... Output").
func (e *Engine) Dispatch(raw types.RawEvent, nowNS int64) Result {
	th := e.resolveThread(raw.Tid, nowNS)
	th.LastAccessed = nowNS
	if th.ContainerID != "" {
		e.Containers.Touch(th.ContainerID, nowNS)
	} else if e.Live {
		if id, _ := e.Containers.Resolve(th.Pid, "", true, nowNS); id != "" {
			th.ContainerID = id
			e.QueueMeta(types.RawEvent{
				Type: types.EvtContainerDiscovered,
				Tid:  th.Tid,
				Ts:   nowNS,
			})
		}
	}

	h, ok := e.handlers[raw.Type]
	if !ok {
		// Unknown/unversioned event type: pass through with minimal
		// annotation (spec §6).
		return Result{Thread: th}
	}

	var fd *fdtable.Descriptor
	if raw.Dir == types.DirEnter {
		if h.Enter != nil {
			h.Enter(e, th, raw)
		}
	} else {
		if h.Exit != nil {
			fd = h.Exit(e, th, raw)
		}
	}
	return Result{Thread: th, FD: fd}
}

// resolveThread implements spec §4.6 "Tie-breaks": find the thread, or
// synthesize via /proc (live + QueryOSIfNotFound), or create a minimal
// incomplete record.
func (e *Engine) resolveThread(tid uint32, nowNS int64) *threadtable.Thread {
	if th := e.Threads.Find(tid, false); th != nil {
		return th
	}
	if e.Live && e.QueryOSIfNotFound && e.OSQuery != nil {
		if th, ok := e.OSQuery(tid); ok {
			th.CreatedAt = nowNS
			th.LastAccessed = nowNS
			e.Threads.Add(th)
			return th
		}
	}
	th := &threadtable.Thread{
		Tid:          tid,
		Pid:          tid,
		CreatedAt:    nowNS,
		LastAccessed: nowNS,
		Incomplete:   true,
	}
	e.Threads.Add(th)
	return th
}

// PendingMeta returns the currently queued meta-event, if any (spec
// §4.6 "Meta-events" / §4.9 step 1).
func (e *Engine) PendingMeta() (types.RawEvent, bool) {
	if e.meta == nil {
		return types.RawEvent{}, false
	}
	return *e.meta, true
}

// TakeMeta clears and returns the pending meta-event.
func (e *Engine) TakeMeta() (types.RawEvent, bool) {
	if e.meta == nil {
		return types.RawEvent{}, false
	}
	m := *e.meta
	e.meta = nil
	return m, true
}

// QueueMeta synthesizes a meta-event to carry deferred work (spec
// §4.6). Only one meta-slot exists; a second Queue before the first is
// consumed overwrites it, since the spec describes a single slot, not
// a queue.
func (e *Engine) QueueMeta(raw types.RawEvent) {
	e.meta = &raw
}
