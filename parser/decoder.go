package parser

import (
	"sync"

	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// Category names one of the extension points a decoder callback can
// subscribe to (spec §9 "Extension hooks"). The parser has no plugin
// system of its own to generalize from — this is new, but shaped like
// fdtable's ClosedHook: a narrow callback fired at a well-defined
// transition rather than a general event bus.
type Category int

const (
	CategoryOpen Category = iota
	CategoryConnect
	CategoryRead
	CategoryWrite
	CategoryTupleChange
	CategoryClose
)

// DecoderEvent is what a registered callback receives.
type DecoderEvent struct {
	Thread *threadtable.Thread
	FD     *fdtable.Descriptor
	Raw    types.RawEvent
}

// DecoderFunc observes one category transition. Callbacks run
// synchronously on the inspector loop's goroutine and must not block.
type DecoderFunc func(DecoderEvent)

// ResetFunc observes a thread record being dropped from the table
// (exit, collision, capacity eviction, or inactivity sweep), so a
// decoder with state keyed off a reserved thread-memory slot can clear
// it before the slot is reused by an unrelated tid (spec §6 "decoder
// reset registration").
type ResetFunc func(*threadtable.Thread)

// Decoders is the registry of extension callbacks (spec §9).
type Decoders struct {
	mu      sync.Mutex
	byC     map[Category][]DecoderFunc
	onReset []ResetFunc
}

func NewDecoders() *Decoders {
	return &Decoders{byC: make(map[Category][]DecoderFunc)}
}

// RegisterReset subscribes fn to every thread removal, regardless of
// category.
func (d *Decoders) RegisterReset(fn ResetFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReset = append(d.onReset, fn)
}

func (d *Decoders) fireReset(th *threadtable.Thread) {
	d.mu.Lock()
	fns := d.onReset
	d.mu.Unlock()
	for _, fn := range fns {
		fn(th)
	}
}

// Register subscribes fn to cat. Registration is expected to happen
// before capture start, alongside ReserveThreadMemory, but nothing
// here enforces that — unlike slot reservation, a late-registered
// decoder just starts seeing events from the next transition onward.
func (d *Decoders) Register(cat Category, fn DecoderFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byC[cat] = append(d.byC[cat], fn)
}

func (d *Decoders) fire(cat Category, ev DecoderEvent) {
	d.mu.Lock()
	fns := d.byC[cat]
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// ReserveThreadMemory reserves bytes of per-thread private state,
// forwarding to the thread table's slot registry (spec §4.4 "Private
// state"). Must be called before the inspector opens a capture source
// (errs.ConfigLocked otherwise).
func (e *Engine) ReserveThreadMemory(bytes int) (threadtable.SlotID, error) {
	return e.Threads.Slots.Reserve(bytes)
}
