package parser

import (
	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// registerCredHandlers wires setuid/setgid. The teacher has no
// credential syscalls to generalize from; these follow the same
// two-phase enter-stash/exit-apply shape as the rest of the dispatch
// table for consistency.
func registerCredHandlers(e *Engine) {
	e.register(types.EvtSetuid, &handler{Enter: enterCred(types.EvtSetuid), Exit: exitSetuid})
	e.register(types.EvtSetgid, &handler{Enter: enterCred(types.EvtSetgid), Exit: exitSetgid})
}

func enterCred(t types.EventType) func(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	return func(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
		th.StashEnterArgs(uint16(t), raw)
	}
}

func exitSetuid(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtSetuid))
	if raw.RetVal != 0 {
		return nil
	}
	if uid, ok := credArg(raw, enter, "uid"); ok {
		th.UID = uint32(uid)
	}
	return nil
}

func exitSetgid(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtSetgid))
	if raw.RetVal != 0 {
		return nil
	}
	if gid, ok := credArg(raw, enter, "gid"); ok {
		th.GID = uint32(gid)
	}
	return nil
}

func credArg(raw types.RawEvent, enter any, name string) (uint64, bool) {
	if p, ok := types.ParamByName(raw.Params, name); ok {
		return p.U64, true
	}
	if ev, ok := enter.(types.RawEvent); ok {
		if p, ok := types.ParamByName(ev.Params, name); ok {
			return p.U64, true
		}
	}
	return 0, false
}
