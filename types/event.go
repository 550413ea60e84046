// Package types holds the data-model types shared across every
// component (capture, fdtable, threadtable, container, parser, filter,
// dump): the raw/enriched event shapes, parameter vector, and the
// fixed-tuple network address pair. Kept dependency-free (stdlib only)
// so every other package can import it without risking a cycle back
// into the root package, which is the one place all of them are wired
// together (spec §9 "Friendship / cross-component mutation" — narrow,
// shared value types instead of broad access to one another).
package types

import (
	"fmt"
	"net"
	"sort"
)

// Direction distinguishes a syscall's entry from its exit (spec §3).
type Direction uint8

const (
	DirEnter Direction = iota
	DirExit
)

func (d Direction) String() string {
	if d == DirEnter {
		return "enter"
	}
	return "exit"
}

// EventType is the raw event type code carried in every frame header
// (spec §6). Unknown codes must be tolerated (pass-through, minimal
// annotation) rather than rejected.
type EventType uint16

const (
	EvtClone EventType = iota + 1
	EvtExecve
	EvtOpen
	EvtOpenat
	EvtCreat
	EvtSocket
	EvtBind
	EvtConnect
	EvtAccept
	EvtAccept4
	EvtRead
	EvtWrite
	EvtSend
	EvtRecv
	EvtClose
	EvtDup
	EvtDup2
	EvtDup3
	EvtSetuid
	EvtSetgid
	EvtExit
	EvtExitGroup

	// EvtContainerDiscovered is a meta-event type (spec §4.6
	// "Meta-events"): synthesized by the parser, not sourced from the
	// driver, when a thread's container id is resolved for the first
	// time.
	EvtContainerDiscovered

	// evtMax bounds the codes Known accepts; anything >= evtMax is an
	// unknown/unversioned type (spec §6).
	evtMax
)

var eventTypeNames = map[EventType]string{
	EvtClone:     "clone",
	EvtExecve:    "execve",
	EvtOpen:      "open",
	EvtOpenat:    "openat",
	EvtCreat:     "creat",
	EvtSocket:    "socket",
	EvtBind:      "bind",
	EvtConnect:   "connect",
	EvtAccept:    "accept",
	EvtAccept4:   "accept4",
	EvtRead:      "read",
	EvtWrite:     "write",
	EvtSend:      "send",
	EvtRecv:      "recv",
	EvtClose:     "close",
	EvtDup:       "dup",
	EvtDup2:      "dup2",
	EvtDup3:      "dup3",
	EvtSetuid:    "setuid",
	EvtSetgid:    "setgid",
	EvtExit:      "exit",
	EvtExitGroup: "exit_group",

	EvtContainerDiscovered: "container_discovered",
}

func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// Known reports whether t is one of this build's event type codes.
func (t EventType) Known() bool { return t > 0 && t < evtMax }

// AllEventTypes returns every known event type, ascending, for
// introspection (GetEventInfoTables).
func AllEventTypes() []EventType {
	ts := make([]EventType, 0, len(eventTypeNames))
	for t := range eventTypeNames {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

// nonMutatingTypes are syscalls the parser annotates but never uses to
// change thread/FD/container state (spec §4.6: "do not mutate state").
var nonMutatingTypes = map[EventType]bool{
	EvtRead: true, EvtWrite: true, EvtSend: true, EvtRecv: true,
}

// MutatesState reports whether an event of this type changes
// reconstructed state, used to decide which filtered-out events
// fatfile mode still preserves (spec §4.6 "Fatfile mode").
func (t EventType) MutatesState() bool { return t.Known() && !nonMutatingTypes[t] }

// EventTypeByName resolves a syscall name back to its EventType. The
// empty EventType (0) signals "no such name".
func EventTypeByName(name string) EventType {
	for k, v := range eventTypeNames {
		if v == name {
			return k
		}
	}
	return 0
}

// ParamKind tags the type of a single decoded parameter, keyed by type
// per spec §6 ("parameter table keyed by type").
type ParamKind uint8

const (
	ParamFD ParamKind = iota
	ParamPID
	ParamPath
	ParamBuffer
	ParamTuple
	ParamUint64
	ParamInt64
	ParamString
	ParamBytes
)

// Tuple is a 5-tuple-shaped socket address pair (spec §3 "FD
// descriptor" / §4.6 "bind/connect"). Proto is the raw socket protocol
// (6 == TCP, 17 == UDP, 0 == unset).
type Tuple struct {
	SrcIP   net.IP
	SrcPort uint16
	DstIP   net.IP
	DstPort uint16
	Proto   uint8
}

func (t Tuple) IsZero() bool {
	return t.SrcIP == nil && t.DstIP == nil && t.SrcPort == 0 && t.DstPort == 0
}

// Inverse swaps src/dst, used when synthesizing the accepting side's FD
// from the listening socket's tuple (spec §4.6 "accept/accept4").
func (t Tuple) Inverse() Tuple {
	return Tuple{SrcIP: t.DstIP, SrcPort: t.DstPort, DstIP: t.SrcIP, DstPort: t.SrcPort, Proto: t.Proto}
}

func (t Tuple) String() string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d->%s:%d", t.SrcIP, t.SrcPort, t.DstIP, t.DstPort)
}

// Param is one decoded syscall argument or return value.
type Param struct {
	Name string
	Kind ParamKind

	Str   string
	U64   uint64
	I64   int64
	Raw   []byte
	Tuple Tuple
}

// RawEvent is the frame-decoded, not-yet-enriched event as produced by
// a capture source (spec §6 "Raw event frame").
type RawEvent struct {
	EventNum uint64
	Ts       int64 // ns since epoch
	CPU      uint16
	Type     EventType
	Dir      Direction
	Tid      uint32
	RetVal   int64
	Params   []Param
}

// ParamByName looks up a decoded parameter by name; ok is false if
// absent (e.g. an enter-phase event has no return value parameter).
func ParamByName(params []Param, name string) (Param, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}
