package runner

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is the default cause recorded by Cancel.
var ErrCanceled = errors.New("execution canceled")

// ExecutionControl provides cooperative execution control for long running work.
type ExecutionControl interface {
	WaitIfPaused(ctx context.Context) error
	Done() <-chan struct{}
	CancelCause() error
}

// ManualExecutionControl gates progress with pause/resume and ends it with
// cancel. Pause and Resume are idempotent; Cancel is final.
type ManualExecutionControl struct {
	mu sync.RWMutex

	paused   bool
	resumeCh chan struct{}
	doneCh   chan struct{}
	cause    error
}

// NewManualExecutionControl creates a control that can be paused/resumed/canceled manually.
func NewManualExecutionControl() *ManualExecutionControl {
	resume := make(chan struct{})
	close(resume)
	return &ManualExecutionControl{
		resumeCh: resume,
		doneCh:   make(chan struct{}),
	}
}

// WaitIfPaused blocks while paused. It returns the cancel cause once canceled.
func (c *ManualExecutionControl) WaitIfPaused(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	for {
		paused, resume := c.Paused()
		done := c.Done()

		if !paused {
			select {
			case <-done:
				return c.doneErr()
			default:
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return c.doneErr()
		case <-resume:
		}
	}
}

// Paused reports the pause flag and a channel closed on the next Resume.
// The channel is already closed when not paused.
func (c *ManualExecutionControl) Paused() (bool, <-chan struct{}) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused, c.resumeCh
}

func (c *ManualExecutionControl) IsPaused() bool {
	paused, _ := c.Paused()
	return paused
}

func (c *ManualExecutionControl) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doneCh
}

func (c *ManualExecutionControl) Canceled() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func (c *ManualExecutionControl) CancelCause() error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cause
}

func (c *ManualExecutionControl) doneErr() error {
	if cause := c.CancelCause(); cause != nil {
		return cause
	}
	return context.Canceled
}

// Pause blocks future WaitIfPaused calls until Resume is called.
// It reports whether the call changed anything.
func (c *ManualExecutionControl) Pause() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.isDone() {
		return false
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
	return true
}

// Resume unblocks waiters created by Pause.
// It reports whether the call changed anything.
func (c *ManualExecutionControl) Resume() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	close(c.resumeCh)
	return true
}

// Cancel marks control as done and optionally records a cause.
func (c *ManualExecutionControl) Cancel(cause error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDone() {
		return
	}
	if cause == nil {
		cause = ErrCanceled
	}
	c.cause = cause
	if c.paused {
		c.paused = false
		close(c.resumeCh)
	}
	close(c.doneCh)
}

func (c *ManualExecutionControl) isDone() bool {
	select {
	case <-c.doneCh:
		return true
	default:
		return false
	}
}
