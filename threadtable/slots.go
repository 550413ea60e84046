package threadtable

import (
	"fmt"
	"sync"

	"github.com/fanyeren/sysdig/errs"
)

// SlotID identifies one reservation made against a SlotRegistry (spec
// §4.4 "Private state").
type SlotID int

// SlotRegistry fixes private-state-block offsets before capture
// begins. Extensions (filters, decoders) reserve a slot once, then
// index into every thread's private block by SlotID with no second
// map lookup. Grounded on spec §4.4's "Private state" paragraph; there
// is no teacher analog, so this is built stdlib-only from the spec's
// own description.
type SlotRegistry struct {
	mu     sync.Mutex
	frozen bool
	total  int
	offs   []int
	sizes  []int
}

// NewSlotRegistry returns an empty, unfrozen registry.
func NewSlotRegistry() *SlotRegistry {
	return &SlotRegistry{}
}

// Reserve allocates bytes in the private-state block and returns the
// slot id to address it. Fails with errs.ConfigLocked once the registry has
// been frozen by capture start (spec §4.4 "fails after capture
// starts"; spec §5 "ConfigLocked").
func (r *SlotRegistry) Reserve(bytes int) (SlotID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return 0, errs.Wrap(errs.ConfigLocked, "cannot reserve thread memory after capture start")
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("threadtable: slot size must be positive, got %d", bytes)
	}
	id := SlotID(len(r.offs))
	r.offs = append(r.offs, r.total)
	r.sizes = append(r.sizes, bytes)
	r.total += bytes
	return id, nil
}

// Freeze locks the registry against further reservations. Idempotent.
func (r *SlotRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *SlotRegistry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// TotalSize returns the size of the contiguous private-state block
// each thread record must carry.
func (r *SlotRegistry) TotalSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Slice returns the sub-slice of block addressed by id.
func (r *SlotRegistry) Slice(block []byte, id SlotID) []byte {
	r.mu.Lock()
	off, size := r.offs[id], r.sizes[id]
	r.mu.Unlock()
	return block[off : off+size]
}

// NewBlock allocates a zeroed private-state block sized to the sum of
// all reservations made so far.
func (r *SlotRegistry) NewBlock() []byte {
	return make([]byte, r.TotalSize())
}
