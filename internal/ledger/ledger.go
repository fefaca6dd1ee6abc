// Package ledger provides the shared execution substrate for the
// protocol programs: global call serialization, per-instance
// reentrancy guards, and the time/block sources state transitions
// are validated against.
package ledger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mevshield/mevshield/pkg/errors"
)

// Sequencer admits one state-changing call at a time across all
// programs sharing it. A call runs to completion before the next is
// admitted; there is no interleaving or partial visibility.
type Sequencer struct {
	mu sync.Mutex
}

// NewSequencer creates a sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Do runs fn as one atomic ledger call
func (s *Sequencer) Do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Guard is a per-instance, non-reentrant critical-section flag.
// Nested entry while a guarded call is in progress fails with
// ReentrantCall instead of blocking: an external-transfer callback
// re-invoking a guarded method must be rejected, not queued.
type Guard struct {
	entered atomic.Bool
}

// Enter acquires the guard, failing if it is already held
func (g *Guard) Enter() error {
	if !g.entered.CompareAndSwap(false, true) {
		return errors.ReentrantCall("guarded call already in progress")
	}
	return nil
}

// Exit releases the guard. It must be called on every exit path of a
// guarded method, success or failure.
func (g *Guard) Exit() {
	g.entered.Store(false)
}

// Clock supplies ledger time for eligibility checks and record timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// BlockSource supplies the current block height for future-block checks
type BlockSource interface {
	BlockNumber() uint64
}

// Blocks is a monotonically advancing block counter. In-process
// deployments have no real chain; the service layer ticks it.
type Blocks struct {
	height atomic.Uint64
}

// NewBlocks creates a block counter starting at the given height
func NewBlocks(start uint64) *Blocks {
	b := &Blocks{}
	b.height.Store(start)
	return b
}

// BlockNumber returns the current height
func (b *Blocks) BlockNumber() uint64 {
	return b.height.Load()
}

// Advance moves the height forward by one and returns the new height
func (b *Blocks) Advance() uint64 {
	return b.height.Add(1)
}
