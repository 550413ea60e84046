// Package sysdig is the root of the inspection library: it wires C1-C8
// into the inspector loop described by spec.md §4.9 (C9), and is the
// only place that holds a reference into both threadtable and fdtable
// at once (spec §9 "Friendship" design note — everything below this
// package gets a narrow capability, this package gets the broad one).
package sysdig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/fanyeren/sysdig/capture"
	"github.com/fanyeren/sysdig/container"
	"github.com/fanyeren/sysdig/dump"
	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/filter"
	"github.com/fanyeren/sysdig/hostinfo"
	"github.com/fanyeren/sysdig/parser"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// State is one of the inspector's six lifecycle states (spec §4.9).
type State uint8

const (
	StateUninit State = iota
	StateImportingLive
	StateImportingFile
	StateRunning
	StatePaused
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateImportingLive:
		return "importing_live"
	case StateImportingFile:
		return "importing_file"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BufferFormat selects how a caller wants data-carrying parameters
// rendered for display (spec §6 "set_buffer_format").
type BufferFormat uint8

const (
	FormatNormal BufferFormat = iota
	FormatJSON
	FormatBase64
	FormatHex
	FormatHexAscii
)

// ErrTimeout is returned by Next when a live source's poll deadline
// elapses with nothing to report (spec §4.1 "Timeout"). It is not part
// of the errs taxonomy: a timeout is an expected condition on a live
// capture, not a failure.
var ErrTimeout = errors.New("sysdig: next timed out")

const (
	defaultMaxThreadTableSize = 131072
	defaultThreadTimeout      = 5 * time.Minute
	defaultContainerTimeout   = 5 * time.Minute
	defaultSweepEveryN        = 4096
	defaultSweepInterval      = 30 * time.Second
)

// Inspector is the consumer-facing entry point (spec §4.9, §6). All
// state mutation happens on the goroutine that calls Next (spec §5
// "Scheduling model"); Close is the one method designed to be safe to
// call concurrently with a blocked Next.
type Inspector struct {
	mu sync.Mutex

	state       State
	logger      types.Logger
	minSeverity types.Severity

	src           capture.Source
	live          bool
	inputFilename string

	hostinfo   *hostinfo.Registry
	threads    *threadtable.Table
	containers *container.Manager
	parser     *parser.Engine

	filterPred filter.Predicate
	filterExpr string

	dumper      *dump.CycleWriter
	fatfileMode bool

	snaplen         int
	importUsers     bool
	debugMode       bool
	maxEvtOutputLen int
	bufferFormat    BufferFormat

	requiredDecoders map[string]bool

	numEvents    uint64
	firstEventTs int64

	sweepEveryN     uint64
	sweepInterval   int64
	lastSweepAtNS   int64

	machineInfo map[string]string

	lastErr  error
	fatalErr error
}

// NewInspector constructs an idle inspector. A nil logger installs the
// process-wide stderr default (spec §9 "Global-mutable state": the
// only place a package-global logging decision is made is at this
// public entry point).
func NewInspector(logger types.Logger) *Inspector {
	if logger == nil {
		logger = types.NewDefaultLogger(types.SeverityInfo)
	}
	threads := threadtable.New(defaultMaxThreadTableSize, int64(defaultThreadTimeout))
	containers := container.New(int64(defaultContainerTimeout))
	return &Inspector{
		state:            StateUninit,
		logger:           logger,
		hostinfo:         hostinfo.New(),
		threads:          threads,
		containers:       containers,
		parser:           parser.New(threads, containers, logger),
		importUsers:      true,
		maxEvtOutputLen:  0,
		bufferFormat:     FormatNormal,
		requiredDecoders: map[string]bool{},
		sweepEveryN:      defaultSweepEveryN,
		sweepInterval:    int64(defaultSweepInterval),
		machineInfo:      buildMachineInfo(),
	}
}

func buildMachineInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"hostname": hostname,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"num_cpu":  strconv.Itoa(runtime.NumCPU()),
	}
}

func (i *Inspector) log(sev types.Severity, format string, args ...any) {
	if sev < i.minSeverity {
		return
	}
	i.logger.Log(sev, fmt.Sprintf(format, args...))
}

func errLocked() error { return errs.Wrap(errs.ConfigLocked, "inspector already opened") }

// finishOpenLive runs the shared live-open path (import, freeze,
// state transition) once the platform-specific half has produced a
// *capture.LiveSource.
func (i *Inspector) finishOpenLive(src *capture.LiveSource) error {
	i.mu.Lock()
	if i.state != StateUninit {
		i.mu.Unlock()
		return errs.Wrap(errs.ConfigLocked, "inspector already opened")
	}
	i.state = StateImportingLive
	i.live = true
	i.parser.Live = true
	i.parser.OSQuery = func(tid uint32) (*threadtable.Thread, bool) {
		th := readProcThread(tid)
		return th, th != nil
	}
	i.mu.Unlock()

	if err := i.importLiveSnapshot(); err != nil {
		i.log(types.SeverityWarn, "live import: %v", err)
	}

	i.mu.Lock()
	i.src = src
	i.threads.Slots.Freeze()
	i.state = StateRunning
	i.mu.Unlock()
	return nil
}

// OpenFile opens path as a trace-file capture source (spec §4.9
// "open_file -> ImportingFile -> Running"). The header's machine
// info/interfaces/users/groups become the registry snapshot, mirroring
// the one-shot live import (spec §3 "Import").
func (i *Inspector) OpenFile(path string) error {
	i.mu.Lock()
	if i.state != StateUninit {
		i.mu.Unlock()
		return errs.Wrap(errs.ConfigLocked, "inspector already opened")
	}
	i.state = StateImportingFile
	i.mu.Unlock()

	fs, err := capture.OpenFile(path)
	if err != nil {
		i.mu.Lock()
		i.state = StateUninit
		i.lastErr = err
		i.mu.Unlock()
		return err
	}

	i.mu.Lock()
	i.src = fs
	i.live = false
	i.inputFilename = path
	i.machineInfo = fs.Header.MachineInfo
	i.hostinfo.ImportInterfaces(fs.Header.Interfaces)
	i.hostinfo.ImportUserRecords(fs.Header.Users)
	i.hostinfo.ImportGroupRecords(fs.Header.Groups)
	i.threads.Slots.Freeze()
	i.state = StateRunning
	i.mu.Unlock()
	return nil
}

// Pause/Resume are no-ops outside their expected source state (spec
// §4.9 transitions only name Running<->Paused).
func (i *Inspector) Pause() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateRunning {
		return
	}
	if i.src != nil {
		i.src.Pause()
	}
	i.state = StatePaused
}

func (i *Inspector) Resume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StatePaused {
		return
	}
	if i.src != nil {
		i.src.Resume()
	}
	i.state = StateRunning
}

// Close is terminal (spec §4.9 "close -> Closed ... new capture
// requires a fresh instance"). It deliberately releases the lock
// before touching the source/dumper so a concurrent, blocked Next call
// unblocks promptly instead of waiting for this call to finish (spec
// §5 "Cancellation").
func (i *Inspector) Close() error {
	i.mu.Lock()
	if i.state == StateClosed {
		i.mu.Unlock()
		return nil
	}
	i.state = StateClosed
	if i.fatalErr == nil {
		i.fatalErr = errs.Wrap(errs.CaptureInterrupted, "inspector closed")
	}
	src := i.src
	dumper := i.dumper
	i.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	if dumper != nil {
		if derr := dumper.Close(); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

// Next implements the per-iteration contract of spec §4.9. The filter
// gates whether a dump sink sees the event (step 6/7); it does not
// gate whether Next itself returns the event to the caller, matching
// the 9-step contract's "return to caller" at step 9 running
// unconditionally after steps 1-8.
func (i *Inspector) Next() (Event, error) {
	i.mu.Lock()
	if i.state == StateClosed {
		err := i.fatalErr
		i.mu.Unlock()
		if err == nil {
			err = errs.Wrap(errs.CaptureInterrupted, "inspector closed")
		}
		return Event{}, err
	}
	if i.state == StatePaused {
		i.mu.Unlock()
		return Event{}, ErrTimeout
	}

	// Step 1: a pending meta-event is bound and returned ahead of
	// anything pulled from the source.
	if raw, ok := i.parser.TakeMeta(); ok {
		th := i.threads.Find(raw.Tid, true)
		i.mu.Unlock()
		return i.bindEvent(raw, th, nil), nil
	}

	// Step 2: deferred removals from the previous iteration.
	i.threads.ProcessDeferredRemovals()

	src := i.src
	i.mu.Unlock()

	if src == nil {
		return Event{}, errs.Wrap(errs.Fatal, "next called before open")
	}

	// Step 3: pull, unlocked so a concurrent Close can unblock this.
	pr := src.Next()

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == StateClosed {
		return Event{}, i.fatalErr
	}

	switch pr.Outcome {
	case capture.OutcomeTimeout:
		return Event{}, ErrTimeout
	case capture.OutcomeEOF:
		return Event{}, io.EOF
	case capture.OutcomeError:
		i.lastErr = pr.Err
		if errors.Is(pr.Err, errs.Fatal) || errors.Is(pr.Err, errs.CaptureInterrupted) {
			i.state = StateClosed
			i.fatalErr = pr.Err
		}
		return Event{}, pr.Err
	}

	raw := pr.Event
	i.numEvents++
	if i.firstEventTs == 0 {
		i.firstEventTs = raw.Ts
	}

	// Steps 4-5: bind + dispatch to C6.
	res := i.parser.Dispatch(raw, raw.Ts)

	// Step 6: apply C7.
	passed := true
	if i.filterPred != nil {
		passed = i.filterPred.Evaluate(&filter.Context{Raw: raw, Thread: res.Thread, FD: res.FD})
	}

	// Step 7: hand to C8.
	if i.dumper != nil {
		if passed {
			if err := i.dumper.Write(raw); err != nil {
				i.lastErr = err
			}
		} else if i.fatfileMode && raw.Type.MutatesState() {
			if err := i.dumper.Write(raw); err != nil {
				i.lastErr = err
			}
		}
	}

	// Step 8: periodic sweep, by count or elapsed time.
	if i.numEvents%i.sweepEveryN == 0 || raw.Ts-i.lastSweepAtNS >= i.sweepInterval {
		i.threads.SweepInactive(raw.Ts)
		i.containers.SweepInactive(raw.Ts)
		i.lastSweepAtNS = raw.Ts
	}

	// Step 9: return to caller.
	return i.bindEvent(raw, res.Thread, res.FD), nil
}
