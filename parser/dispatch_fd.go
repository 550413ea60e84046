package parser

import (
	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// registerFDHandlers wires the file/socket lifecycle events. Grounded
// on the teacher's network/tracking.go CreateConnectionInfo (tuple
// bookkeeping on connect/accept) generalized to the full FD lifecycle
// spec §4.6 describes, since the teacher only tracks sockets.
func registerFDHandlers(e *Engine) {
	open := &handler{Enter: enterPath, Exit: exitOpen}
	e.register(types.EvtOpen, open)
	e.register(types.EvtOpenat, open)
	e.register(types.EvtCreat, open)

	e.register(types.EvtSocket, &handler{Enter: enterSocket, Exit: exitSocket})
	e.register(types.EvtBind, &handler{Enter: enterTuple, Exit: exitBind})
	e.register(types.EvtConnect, &handler{Enter: enterTuple, Exit: exitConnect})

	accept := &handler{Enter: enterFD, Exit: exitAccept}
	e.register(types.EvtAccept, accept)
	e.register(types.EvtAccept4, accept)

	e.register(types.EvtRead, &handler{Exit: exitIO(CategoryRead)})
	e.register(types.EvtWrite, &handler{Exit: exitIO(CategoryWrite)})
	e.register(types.EvtSend, &handler{Exit: exitIO(CategoryWrite)})
	e.register(types.EvtRecv, &handler{Exit: exitIO(CategoryRead)})

	e.register(types.EvtClose, &handler{Enter: enterFD, Exit: exitClose})

	dup := &handler{Enter: enterFD, Exit: exitDup}
	e.register(types.EvtDup, dup)
	e.register(types.EvtDup2, dup)
	e.register(types.EvtDup3, dup)
}

func enterPath(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(raw.Type), raw)
}

func enterFD(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(raw.Type), raw)
}

func enterTuple(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(raw.Type), raw)
}

func enterSocket(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(types.EvtSocket), raw)
}

// exitOpen implements spec §4.6 "open/openat/creat (add file FD on
// success)".
func exitOpen(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(raw.Type))
	if raw.RetVal < 0 {
		return nil
	}
	path := paramStr(raw.Params, "path")
	if path == "" {
		if ev, ok := enter.(types.RawEvent); ok {
			path = paramStr(ev.Params, "path")
		}
	}
	isDir := paramU64(raw.Params, "is_dir") != 0

	desc := fdtable.NewFile(path, isDir)
	fd := int32(raw.RetVal)
	th.FDs.Add(fd, desc)
	e.Decoders.fire(CategoryOpen, DecoderEvent{Thread: th, FD: desc, Raw: raw})
	return desc
}

// exitSocket implements spec §4.6 "socket (add empty-tuple socket FD)".
func exitSocket(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	th.TakeEnterArgs(uint16(types.EvtSocket))
	if raw.RetVal < 0 {
		return nil
	}
	domain := paramU64(raw.Params, "domain")
	desc := fdtable.NewSocket(socketTypeForDomain(domain))
	fd := int32(raw.RetVal)
	th.FDs.Add(fd, desc)
	return desc
}

func socketTypeForDomain(domain uint64) fdtable.Type {
	switch domain {
	case 2: // AF_INET
		return fdtable.TypeIPv4Sock
	case 10: // AF_INET6
		return fdtable.TypeIPv6Sock
	case 1: // AF_UNIX
		return fdtable.TypeUnixSock
	default:
		return fdtable.TypeOther
	}
}

// exitBind implements spec §4.6 "bind/connect (update tuple, fire
// CONNECT/TUPLE_CHANGE decoder callbacks)" for the bind half: only the
// local half of the tuple is known.
func exitBind(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtBind))
	if raw.RetVal != 0 {
		return nil
	}
	fd := resolveFD(raw, enter)
	desc := th.FDs.Get(fd)
	if desc == nil {
		return nil
	}
	if tp, ok := paramTuple(raw.Params, enter); ok {
		desc.Tuple.SrcIP = tp.SrcIP
		desc.Tuple.SrcPort = tp.SrcPort
		desc.Tuple.Proto = tp.Proto
		e.Decoders.fire(CategoryTupleChange, DecoderEvent{Thread: th, FD: desc, Raw: raw})
	}
	return desc
}

func exitConnect(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtConnect))
	if raw.RetVal != 0 {
		return nil
	}
	fd := resolveFD(raw, enter)
	desc := th.FDs.Get(fd)
	if desc == nil {
		return nil
	}
	if tp, ok := paramTuple(raw.Params, enter); ok {
		desc.Tuple = tp
		e.Decoders.fire(CategoryConnect, DecoderEvent{Thread: th, FD: desc, Raw: raw})
		e.Decoders.fire(CategoryTupleChange, DecoderEvent{Thread: th, FD: desc, Raw: raw})
	}
	return desc
}

// exitAccept implements spec §4.6 "accept/accept4 (create inverse-
// tuple FD)".
func exitAccept(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(raw.Type))
	if raw.RetVal < 0 {
		return nil
	}
	listenFD := resolveFD(raw, enter)
	listenDesc := th.FDs.Get(listenFD)

	t := fdtable.TypeIPv4Sock
	var tuple types.Tuple
	if listenDesc != nil {
		t = listenDesc.Type
		tuple = listenDesc.Tuple.Inverse()
	}
	desc := fdtable.NewSocket(t)
	desc.Tuple = tuple

	newFD := int32(raw.RetVal)
	th.FDs.Add(newFD, desc)
	e.Decoders.fire(CategoryConnect, DecoderEvent{Thread: th, FD: desc, Raw: raw})
	e.Decoders.fire(CategoryTupleChange, DecoderEvent{Thread: th, FD: desc, Raw: raw})
	return desc
}

// exitIO implements spec §4.6 "read/write/send*/recv* (annotate + fire
// READ/WRITE callbacks, no state mutation)".
func exitIO(cat Category) func(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	return func(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
		fd := int32(paramU64(raw.Params, "fd"))
		desc := th.FDs.Get(fd)
		e.Decoders.fire(cat, DecoderEvent{Thread: th, FD: desc, Raw: raw})
		return desc
	}
}

// exitClose implements spec §4.6 "close (remove FD on success)".
func exitClose(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtClose))
	if raw.RetVal != 0 {
		return nil
	}
	fd := resolveFD(raw, enter)
	desc := th.FDs.Get(fd)
	th.FDs.Remove(fd)
	return desc
}

// exitDup implements spec §4.6 "dup* (copy descriptor, close target
// first if occupied)". Table.Add already fires the close hook for any
// displaced occupant, so "close target first" falls out of the
// existing fdtable.Table.Add contract rather than needing its own
// close call here.
func exitDup(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(raw.Type))
	if raw.RetVal < 0 {
		return nil
	}
	oldFD := resolveFD(raw, enter)
	old := th.FDs.Get(oldFD)
	if old == nil {
		return nil
	}
	cp := old.Clone()
	newFD := int32(raw.RetVal)
	th.FDs.Add(newFD, cp)
	return cp
}

func resolveFD(raw types.RawEvent, enter any) int32 {
	if p, ok := types.ParamByName(raw.Params, "fd"); ok {
		return int32(p.U64)
	}
	if ev, ok := enter.(types.RawEvent); ok {
		if p, ok := types.ParamByName(ev.Params, "fd"); ok {
			return int32(p.U64)
		}
	}
	return 0
}

func paramTuple(params []types.Param, enter any) (types.Tuple, bool) {
	if p, ok := types.ParamByName(params, "tuple"); ok {
		return p.Tuple, true
	}
	if ev, ok := enter.(types.RawEvent); ok {
		if p, ok := types.ParamByName(ev.Params, "tuple"); ok {
			return p.Tuple, true
		}
	}
	return types.Tuple{}, false
}

func paramStr(params []types.Param, name string) string {
	if p, ok := types.ParamByName(params, name); ok {
		return p.Str
	}
	return ""
}

func paramU64(params []types.Param, name string) uint64 {
	if p, ok := types.ParamByName(params, name); ok {
		return p.U64
	}
	return 0
}
