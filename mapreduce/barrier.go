package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBarrierArmed    = errors.New("phase barrier already initialized")
	ErrBarrierNotArmed = errors.New("phase barrier not initialized")
	ErrBarrierOverflow = errors.New("phase barrier signaled more times than armed")
)

// PhaseBarrier gates the start of one phase and counts its tasks down to
// completion. A run owns one barrier per phase.
type PhaseBarrier struct {
	phase Phase

	startOnce sync.Once
	start     chan struct{}

	mu        sync.Mutex
	armed     bool
	remaining int
	done      chan struct{}
}

func NewPhaseBarrier(phase Phase) *PhaseBarrier {
	return &PhaseBarrier{
		phase: phase,
		start: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Initialize arms the completion counter with the number of tasks in the
// phase. Zero tasks completes the phase at once.
func (b *PhaseBarrier) Initialize(n int) error {
	if n < 0 {
		return fmt.Errorf("%v barrier: negative task count %v", b.phase, n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.armed {
		return fmt.Errorf("%v barrier: %w", b.phase, ErrBarrierArmed)
	}
	b.armed = true
	b.remaining = n
	if n == 0 {
		close(b.done)
	}
	return nil
}

// SignalStart opens the start gate. Calls after the first are no-ops.
func (b *PhaseBarrier) SignalStart() {
	b.startOnce.Do(func() { close(b.start) })
}

func (b *PhaseBarrier) AwaitStart(ctx context.Context) error {
	select {
	case <-b.start:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *PhaseBarrier) SignalTaskDone() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.armed {
		return fmt.Errorf("%v barrier: %w", b.phase, ErrBarrierNotArmed)
	}
	if b.remaining == 0 {
		return fmt.Errorf("%v barrier: %w", b.phase, ErrBarrierOverflow)
	}
	b.remaining--
	if b.remaining == 0 {
		close(b.done)
	}
	return nil
}

func (b *PhaseBarrier) IsPhaseComplete() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *PhaseBarrier) AwaitPhaseComplete(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every armed task has signaled.
func (b *PhaseBarrier) Done() <-chan struct{} {
	return b.done
}

func (b *PhaseBarrier) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
