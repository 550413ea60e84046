package sysdig

import (
	"github.com/fanyeren/sysdig/capture"
	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/hostinfo"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// EventInfo is one row of the static event-type introspection table
// (spec §6 "get_event_info_tables()").
type EventInfo struct {
	Type types.EventType
	Name string
}

// GetThread looks up tid (spec §6 "get_thread(tid[, query_os,
// lookup_only])"). If absent and queryOS is set on a live capture, it
// attempts the same best-effort /proc synthesis the parser uses for an
// unresolved event.
func (i *Inspector) GetThread(tid uint32, queryOS, lookupOnly bool) (*threadtable.Thread, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if th := i.threads.Find(tid, lookupOnly); th != nil {
		return th, nil
	}
	if queryOS && i.live && i.parser.OSQuery != nil {
		if th, ok := i.parser.OSQuery(tid); ok {
			i.threads.Add(th)
			return th, nil
		}
	}
	return nil, errs.Wrap(errs.LookupFailed, "tid %d not found", tid)
}

// GetUserList returns the imported user table (spec §6
// "get_userlist()").
func (i *Inspector) GetUserList() map[uint32]hostinfo.User {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hostinfo.Users()
}

// GetGroupList returns the imported group table.
func (i *Inspector) GetGroupList() map[uint32]hostinfo.Group {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hostinfo.Groups()
}

// GetIfaddrList returns the imported interface snapshot, split by
// address family (spec §6 "get_ifaddr_list()").
func (i *Inspector) GetIfaddrList() (ipv4, ipv6 []hostinfo.IfAddr) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hostinfo.GetIPv4List(), i.hostinfo.GetIPv6List()
}

// GetMachineInfo returns the machine-info block imported at open, or
// built locally for a live capture (spec §6 "get_machine_info()").
func (i *Inspector) GetMachineInfo() map[string]string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.machineInfo
}

// GetCaptureStats forwards to the active source's stats (spec §6
// "get_capture_stats()").
func (i *Inspector) GetCaptureStats() capture.Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.src == nil {
		return capture.Stats{}
	}
	return i.src.Stats()
}

// GetNumEvents returns the count of source events Next has returned so
// far; meta-events synthesized by the parser are not counted (spec §6
// "get_num_events()").
func (i *Inspector) GetNumEvents() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.numEvents
}

// GetReadProgress returns the active source's read progress, 0-100
// (spec §6 "get_read_progress()").
func (i *Inspector) GetReadProgress() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.src == nil {
		return 0
	}
	return i.src.Stats().ProgressPct
}

// GetEventInfoTables returns the static event-type table for
// introspection (spec §6 "get_event_info_tables()").
func (i *Inspector) GetEventInfoTables() []EventInfo {
	all := types.AllEventTypes()
	out := make([]EventInfo, len(all))
	for idx, t := range all {
		out[idx] = EventInfo{Type: t, Name: t.String()}
	}
	return out
}

// GetInputFilename returns the path passed to OpenFile, or "" for a
// live capture (spec §6 "get_input_filename()").
func (i *Inspector) GetInputFilename() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inputFilename
}

// IsLive reports whether the active source is a live driver rather
// than a trace file (spec §6 "is_live()").
func (i *Inspector) IsLive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.live
}

// GetLastError returns the most recent failure recorded on this
// inspector (spec §6 "get_last_error()").
func (i *Inspector) GetLastError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}
