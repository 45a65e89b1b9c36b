package cron

import "sync"

type Subscription interface {
	Unsubscribe()
}

// ScheduleStatus reports a schedule handle state.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

// Handle controls one scheduled job.
type Handle interface {
	Subscription
	Cancel()
	Status() ScheduleStatus
	Err() error
	Done() <-chan struct{}
	ID() int64
}

type handle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	done      chan struct{}

	mu     sync.RWMutex
	status ScheduleStatus
	err    error
	once   sync.Once
}

func (h *handle) Unsubscribe() {
	h.Cancel()
}

// Cancel removes the job. A one-off job that has not fired never runs.
func (h *handle) Cancel() {
	h.once.Do(func() {
		h.scheduler.removeHandle(h.id)
		h.setTerminal(ScheduleStatusCanceled, nil)
	})
}

func (h *handle) Status() ScheduleStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Err is the error of the last failed run.
func (h *handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) ID() int64 { return h.id }

func (h *handle) setStatus(status ScheduleStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.err = err
}

func (h *handle) setTerminal(status ScheduleStatus, err error) {
	h.setStatus(status, err)
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
