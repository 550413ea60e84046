package sysdig

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// importLiveSnapshot performs the one-shot import described in spec.md
// GLOSSARY ("Import — one-shot population of interface/user/thread
// tables at open"), live-mode only. Grounded on sinsp.h's
// bulk-import-at-open design (original_source) rather than per-event
// lookups.
func (i *Inspector) importLiveSnapshot() error {
	if err := i.hostinfo.ImportFromHost(); err != nil {
		i.log(types.SeverityWarn, "import interfaces: %v", err)
	}

	i.mu.Lock()
	importUsers := i.importUsers
	i.mu.Unlock()
	if importUsers {
		if err := i.hostinfo.ImportUsers("/etc/passwd"); err != nil {
			i.log(types.SeverityWarn, "import users: %v", err)
		}
		if err := i.hostinfo.ImportGroups("/etc/group"); err != nil {
			i.log(types.SeverityWarn, "import groups: %v", err)
		}
	}

	i.importProcessTree()
	return nil
}

// importProcessTree seeds the thread table from /proc, mirroring the
// teacher's process.CollectProcMetadata /proc walk, generalized from
// "build a display record" to "seed the thread manager with complete
// records" so events arriving before a process's own clone/execve is
// observed still resolve to real state instead of an Incomplete stub.
func (i *Inspector) importProcessTree() {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		i.log(types.SeverityWarn, "import process tree: %v", err)
		return
	}
	for _, e := range entries {
		pid, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		th := readProcThread(uint32(pid))
		if th == nil {
			continue
		}
		i.mu.Lock()
		i.threads.Add(th)
		i.mu.Unlock()
	}
}

func readProcThread(pid uint32) *threadtable.Thread {
	base := "/proc/" + strconv.FormatUint(uint64(pid), 10)

	comm, err := os.ReadFile(base + "/comm")
	if err != nil {
		// The process exited between ReadDir and here, or we lack
		// permission; either way there is nothing to import.
		return nil
	}
	cwd, _ := os.Readlink(base + "/cwd")
	cmdline, _ := os.ReadFile(base + "/cmdline")
	ppid, uid, gid := readProcStatus(base + "/status")

	return &threadtable.Thread{
		Tid:      pid,
		Pid:      pid,
		ParentID: ppid,
		ExeName:  strings.TrimSpace(string(comm)),
		CmdLine:  splitNulArgs(string(cmdline)),
		Cwd:      cwd,
		UID:      uid,
		GID:      gid,
	}
}

func readProcStatus(path string) (ppid, uid, gid uint32) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "PPid:"):
			ppid = parseStatusField(line)
		case strings.HasPrefix(line, "Uid:"):
			uid = parseStatusField(line)
		case strings.HasPrefix(line, "Gid:"):
			gid = parseStatusField(line)
		}
	}
	return ppid, uid, gid
}

// parseStatusField extracts the first numeric field of a /proc/<pid>/
// status line ("Uid:\t1000\t1000\t1000\t1000" -> 1000).
func parseStatusField(line string) uint32 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 32)
	return uint32(v)
}

func splitNulArgs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
