// Package container implements C5 (spec §4.5): container id ->
// metadata, resolved lazily from a thread's cgroup membership and
// evicted once no referring thread remains past an inactivity
// threshold. Grounded on the teacher's cgroup-sniffing logic buried in
// process.CollectProcMetadata (grep /proc/<pid>/cgroup for "docker"/
// "containerd", regex out the id) — lifted here into its own resolver
// so it can run against any thread record, live or synthesized.
package container

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Type is the container runtime kind (spec §3 "Container record").
type Type uint8

const (
	TypeUnknown Type = iota
	TypeDocker
	TypeLXC
	TypeRkt
	TypeMesos
	TypeOther
)

func (t Type) String() string {
	switch t {
	case TypeDocker:
		return "docker"
	case TypeLXC:
		return "lxc"
	case TypeRkt:
		return "rkt"
	case TypeMesos:
		return "mesos"
	case TypeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Record is a container's metadata (spec §3 "Container record").
type Record struct {
	ID     string
	Type   Type
	Image  string
	Labels map[string]string

	lastReferencedNS int64
}

var containerIDRegex = regexp.MustCompile(`^[0-9a-f]{12,64}$`)

// Manager resolves and caches container records by id, evicting
// entries with no referring thread past an inactivity threshold.
type Manager struct {
	byID    map[string]*Record
	timeout int64 // ns

	// ProcRoot allows tests to point cgroup inspection at a fake /proc.
	ProcRoot string
}

// New creates an empty container manager. timeoutNS <= 0 disables the
// inactivity sweep.
func New(timeoutNS int64) *Manager {
	return &Manager{byID: make(map[string]*Record), timeout: timeoutNS, ProcRoot: "/proc"}
}

// Get returns the cached record for id, or nil.
func (m *Manager) Get(id string) *Record { return m.byID[id] }

// Resolve returns the container id and metadata for a thread, given
// its pid. If id is already known the cached record's reference
// timestamp is refreshed. If live is true and the id is empty,
// Resolve attempts a best-effort cgroup inspection (spec §4.5
// "resolve(thread_record) ... running cgroup inspection on live
// captures when the id is not yet known").
func (m *Manager) Resolve(pid uint32, knownID string, live bool, nowNS int64) (string, *Record) {
	id := knownID
	if id == "" && live {
		id = m.sniffCgroup(pid)
	}
	if id == "" {
		return "", nil
	}
	rec, ok := m.byID[id]
	if !ok {
		rec = &Record{ID: id, Type: classify(id), Labels: map[string]string{}}
		m.byID[id] = rec
	}
	rec.lastReferencedNS = nowNS
	return id, rec
}

// Touch refreshes id's last-referenced timestamp without attempting
// resolution, used whenever an existing thread with a known container
// id is accessed.
func (m *Manager) Touch(id string, nowNS int64) {
	if rec, ok := m.byID[id]; ok {
		rec.lastReferencedNS = nowNS
	}
}

// SweepInactive drops every record whose last-referenced timestamp is
// older than now-timeout (spec §4.5).
func (m *Manager) SweepInactive(nowNS int64) int {
	if m.timeout <= 0 {
		return 0
	}
	cutoff := nowNS - m.timeout
	n := 0
	for id, rec := range m.byID {
		if rec.lastReferencedNS < cutoff {
			delete(m.byID, id)
			n++
		}
	}
	return n
}

// Len reports the number of cached container records.
func (m *Manager) Len() int { return len(m.byID) }

// SetTimeout adjusts the inactivity eviction threshold in nanoseconds.
func (m *Manager) SetTimeout(ns int64) { m.timeout = ns }

func classify(id string) Type {
	// Best-effort: the id alone rarely discloses the runtime; callers
	// that know more (e.g. from an import) should set rec.Type
	// directly. Default to docker since that is overwhelmingly the
	// common case on the cgroup path we scan below.
	_ = id
	return TypeDocker
}

// sniffCgroup greps /proc/<pid>/cgroup for a known runtime prefix and
// extracts a plausible container id, mirroring the teacher's
// process.CollectProcMetadata cgroup parsing.
func (m *Manager) sniffCgroup(pid uint32) string {
	f, err := os.Open(m.ProcRoot + "/" + strconv.FormatUint(uint64(pid), 10) + "/cgroup")
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "docker") && !strings.Contains(line, "containerd") &&
			!strings.Contains(line, "libpod") {
			continue
		}
		parts := strings.Split(line, "/")
		for i := len(parts) - 1; i >= 0; i-- {
			p := strings.TrimSuffix(parts[i], ".scope")
			if idx := strings.LastIndex(p, "-"); idx >= 0 {
				p = p[idx+1:]
			}
			if containerIDRegex.MatchString(p) {
				return p
			}
		}
	}
	return ""
}
