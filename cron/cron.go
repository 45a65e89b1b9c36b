// Package cron schedules recurring and one-off jobs, such as the operator
// reminder sweep over open suspensions.
package cron

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"

	rcron "github.com/robfig/cron/v3"
)

// Logger receives scheduler and job run messages.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Job runs under the scheduler context, which Stop cancels.
type Job func(ctx context.Context) error

// Scheduler runs jobs on robfig/cron and tracks each through a Handle.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	ctx    context.Context
	cancel context.CancelFunc

	nextHandleID int64
	handles      map[int64]*handle
}

// NewScheduler returns a stopped scheduler. Errors go to the standard
// logger unless WithErrorHandler is set.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location:     time.Local,
		parser:       DefaultParser,
		logLevel:     LogLevelError,
		errorHandler: func(err error) { log.Printf("cron: %v", err) },
		handles:      map[int64]*handle{},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cron = rcron.New(s.cronOptions()...)
	return s
}

// ScheduleCron schedules a recurring job by cron expression. Timeout and
// MaxRetries of cfg apply to every run.
func (s *Scheduler) ScheduleCron(cfg shipment.HandlerConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	run, err := s.runnable(cfg, job)
	if err != nil {
		return nil, err
	}

	h := s.newHandle()
	entry := rcron.FuncJob(func() {
		if isTerminalStatus(h.Status()) {
			return
		}

		h.setStatus(ScheduleStatusRunning, nil)
		err := run()
		if err != nil {
			s.errorHandler(err)
		}
		// a failed run keeps the schedule alive; Err reports the last failure
		if !isTerminalStatus(h.Status()) {
			h.setStatus(ScheduleStatusIdle, err)
		}
	})

	entryID, err := s.cron.AddJob(cfg.Expression, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	h.entryID = int(entryID)
	s.storeHandle(h)
	return h, nil
}

// ScheduleAt schedules one execution at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg shipment.HandlerConfig, job Job) (Handle, error) {
	run, err := s.runnable(cfg, job)
	if err != nil {
		return nil, err
	}

	h := s.newHandle()
	s.storeHandle(h)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.Done():
			return
		}

		if isTerminalStatus(h.Status()) {
			return
		}
		h.setStatus(ScheduleStatusRunning, nil)
		if err := run(); err != nil {
			h.setTerminal(ScheduleStatusFailed, err)
			s.errorHandler(err)
			s.removeStoredHandle(h.id)
			return
		}
		h.setTerminal(ScheduleStatusCompleted, nil)
		s.removeStoredHandle(h.id)
	}()

	return h, nil
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop cancels running jobs, waits for them and marks every live handle
// stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	live := s.handles
	s.handles = map[int64]*handle{}
	s.mu.Unlock()

	for _, h := range live {
		if h.entryID > 0 {
			s.cron.Remove(rcron.EntryID(h.entryID))
		}
		if !isTerminalStatus(h.Status()) {
			h.setTerminal(ScheduleStatusStopped, nil)
		}
	}
	return nil
}

// Len returns the number of live handles.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) removeHandle(id int64) {
	h := s.removeStoredHandle(id)
	if h == nil {
		return
	}
	if h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *handle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	delete(s.handles, id)
	return h
}

func (s *Scheduler) storeHandle(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.id] = h
}

func (s *Scheduler) newHandle() *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &handle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

// runnable wraps job in a runner.Handler honoring the timeout and retry
// settings of cfg.
func (s *Scheduler) runnable(cfg shipment.HandlerConfig, job Job) (func() error, error) {
	if job == nil {
		return nil, fmt.Errorf("cron job cannot be nil")
	}
	opts := []runner.Option{
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithErrorHandler(s.errorHandler),
	}
	if s.logger != nil {
		opts = append(opts, runner.WithLogger(s.logger))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(cfg.Timeout))
	}
	h := runner.NewHandler(opts...)
	return func() error {
		return h.Run(s.ctx, job)
	}, nil
}

func printfLogger(out io.Writer, level LogLevel) rcron.Logger {
	std := log.New(out, "cron: ", log.LstdFlags)
	if level >= LogLevelDebug {
		return rcron.VerbosePrintfLogger(std)
	}
	return rcron.PrintfLogger(std)
}

var parserFields = map[Parser]rcron.ParseOption{
	StandardParser: rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
	SecondsParser:  rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
}

// cronOptions translates the scheduler settings into robfig options. Panics
// in jobs are recovered and reported to the error handler.
func (s *Scheduler) cronOptions() []rcron.Option {
	opts := []rcron.Option{
		rcron.WithChain(rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler})),
	}
	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}
	if fields, ok := parserFields[s.parser]; ok {
		opts = append(opts, rcron.WithParser(rcron.NewParser(fields)))
	}

	switch {
	case s.logger != nil:
		opts = append(opts, rcron.WithLogger(&loggerAdapter{logger: s.logger, level: s.logLevel}))
	case s.logWriter != nil:
		opts = append(opts, rcron.WithLogger(printfLogger(s.logWriter, s.logLevel)))
	case s.logLevel > LogLevelSilent:
		opts = append(opts, rcron.WithLogger(printfLogger(os.Stdout, s.logLevel)))
	}
	return opts
}
