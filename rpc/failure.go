package rpc

// FailureStage is where a server failure was caught.
type FailureStage string

const (
	FailureStageRegister FailureStage = "register"
	FailureStageInvoke   FailureStage = "invoke"
)

// FailureMode selects how the server reacts to a failure.
type FailureMode int

const (
	// FailureModeReject returns registration errors and re-panics handler panics.
	FailureModeReject FailureMode = iota
	// FailureModeRecover turns handler panics into ErrHandlerPanic errors.
	FailureModeRecover
	// FailureModeLogAndContinue logs the failure, skips a bad registration and
	// turns handler panics into errors.
	FailureModeLogAndContinue
)

type FailureEvent struct {
	Stage  FailureStage
	Method string
	Err    error
	Panic  any
}

// FailureStrategy picks a mode per event.
type FailureStrategy func(FailureEvent) FailureMode

type FailureLogger func(FailureEvent)

// Option configures a Server.
type Option func(*Server)

func WithFailureStrategy(strategy FailureStrategy) Option {
	return func(s *Server) {
		if strategy != nil {
			s.strategy = strategy
		}
	}
}

// WithFailureMode applies mode to every failure.
func WithFailureMode(mode FailureMode) Option {
	return WithFailureStrategy(func(FailureEvent) FailureMode { return mode })
}

func WithFailureLogger(logger FailureLogger) Option {
	return func(s *Server) {
		s.onFailure = logger
	}
}

// WithMiddleware appends middleware. Nil entries are dropped.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		for _, m := range mw {
			if m != nil {
				s.chain = append(s.chain, m)
			}
		}
	}
}

func (s *Server) mode(event FailureEvent) FailureMode {
	if s.strategy == nil {
		return FailureModeReject
	}
	return s.strategy(event)
}

func (s *Server) report(event FailureEvent) {
	if s.onFailure != nil {
		s.onFailure(event)
	}
}

// rejectRegistration returns err unless the policy says to log and skip.
func (s *Server) rejectRegistration(method string, err error) error {
	event := FailureEvent{Stage: FailureStageRegister, Method: method, Err: err}
	if s.mode(event) == FailureModeLogAndContinue {
		s.report(event)
		return nil
	}
	return err
}

// recoverInvoke converts a handler panic into an error, or re-panics under
// FailureModeReject.
func (s *Server) recoverInvoke(method string, p any) error {
	err := handlerPanic(method, p)
	event := FailureEvent{Stage: FailureStageInvoke, Method: method, Err: err, Panic: p}
	switch s.mode(event) {
	case FailureModeRecover, FailureModeLogAndContinue:
		s.report(event)
		return err
	}
	panic(p)
}
