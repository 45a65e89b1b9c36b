package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/gateway"
	"github.com/goliatone/go-shipment/ledger"
	"github.com/goliatone/go-shipment/router"
	"github.com/goliatone/go-shipment/runner"
	"github.com/goliatone/go-shipment/store"
	"github.com/google/uuid"
)

// Lifecycle event kinds published on the mux.
const (
	EventTransition = "transition"
	EventSuspended  = "suspended"
	EventDecision   = "decision"
	EventControl    = "control"
)

var errStopped = errors.New("shipment instance stopped")

type phase int

const (
	phaseBusy phase = iota
	phaseIdle
	phaseSuspended
	phaseGated
	phaseStopped
)

type envelope struct {
	cmd      shipment.Command
	category shipment.Category
	choice   shipment.Choice
	at       time.Time
	reply    chan reply
}

type reply struct {
	rec shipment.Record
	err error
}

func (e *envelope) wait(ctx context.Context, in *Instance) (shipment.Record, error) {
	select {
	case r := <-e.reply:
		return r.rec, r.err
	case <-ctx.Done():
		return in.Record(), ctx.Err()
	}
}

// Instance is the single sequential process of one shipment. Only its run
// goroutine advances the record; control commands touch the execution
// control and commit through the same lock.
type Instance struct {
	id     string
	m      *Manager
	ctl    *runner.ManualExecutionControl
	logger shipment.Logger

	inbox chan envelope
	done  chan struct{}

	cmdMu    sync.Mutex
	commitMu sync.Mutex

	mu    sync.RWMutex
	rec   shipment.Record
	phase phase
	fatal error

	// owned by the run goroutine
	pending *envelope
}

func newInstance(m *Manager, rec shipment.Record) *Instance {
	return &Instance{
		id:     rec.ShipmentID,
		m:      m,
		ctl:    runner.NewManualExecutionControl(),
		logger: shipment.WithLoggerFields(m.logger, map[string]any{"shipment_id": rec.ShipmentID}),
		inbox:  make(chan envelope),
		done:   make(chan struct{}),
		rec:    rec.Clone(),
	}
}

// Record returns a copy of the current record.
func (in *Instance) Record() shipment.Record {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.rec.Clone()
}

func (in *Instance) state() shipment.State {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.rec.State
}

func (in *Instance) terminal() bool {
	return in.state().Terminal()
}

func (in *Instance) setPhase(p phase) {
	in.mu.Lock()
	in.phase = p
	in.mu.Unlock()
}

func (in *Instance) alive() bool {
	select {
	case <-in.done:
		return false
	default:
		return true
	}
}

func (in *Instance) launch(first *envelope) {
	in.m.wg.Add(1)
	go func() {
		defer in.m.wg.Done()
		in.run(in.m.ctx, first)
	}()
}

func (in *Instance) run(ctx context.Context, first *envelope) {
	defer close(in.done)
	in.pending = first

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-in.ctl.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	err := in.loop(runCtx)
	switch {
	case in.terminal():
		err = nil
	case in.ctl.Canceled():
		err = in.finish(ctx, shipment.StateCanceled, "Shipment cancelled by operator.")
	case ctx.Err() != nil:
		in.logger.Debug("shipment instance stopped in state %s", in.state())
		err = errStopped
	default:
		in.logger.Error("shipment run aborted in state %s: %v", in.state(), err)
	}

	in.mu.Lock()
	in.phase = phaseStopped
	in.fatal = err
	in.mu.Unlock()
	in.respond(err)
}

// loop drives pending stage work, then rests idle until the next command.
func (in *Instance) loop(ctx context.Context) error {
	for {
		if err := in.drive(ctx); err != nil {
			return err
		}
		if in.terminal() {
			return nil
		}

		in.setPhase(phaseIdle)
		in.respond(nil)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-in.inbox:
			in.setPhase(phaseBusy)
			in.pending = &env
			if err := in.advance(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (in *Instance) advance(ctx context.Context, env envelope) error {
	rec := in.Record()
	if env.cmd == shipment.CommandResolve {
		in.respond(shipment.InvalidChoice(env.category, env.choice, ""))
		return nil
	}
	next, ok := env.cmd.Next()
	if !ok || !shipment.Allowed(env.cmd, rec.State) || !rec.StageDone {
		in.respond(shipment.InvalidTransition(env.cmd, rec.State))
		return nil
	}
	if next == shipment.StateDelivered {
		return in.finish(ctx, next, "Shipment delivered.")
	}
	return in.transition(ctx, next, func(r *shipment.Record) {
		r.StageDone = false
	})
}

// gate blocks while paused. The pending command is answered first.
func (in *Instance) gate(ctx context.Context) error {
	for {
		paused, resumed := in.ctl.Paused()
		if !paused {
			return ctx.Err()
		}
		in.setPhase(phaseGated)
		in.respond(nil)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumed:
			in.setPhase(phaseBusy)
		}
	}
}

// await holds the open suspension until a matching decision, the deadline or
// cancellation. A decision stamped at or after the deadline loses the race.
func (in *Instance) await(ctx context.Context, sus shipment.SuspensionPoint) error {
	in.setPhase(phaseSuspended)

	var expired <-chan time.Time
	if !sus.Deadline.IsZero() {
		timer := time.NewTimer(max(sus.Deadline.Sub(in.m.now()), 0))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		in.respond(nil)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return in.halt(ctx, sus)
		case env := <-in.inbox:
			in.pending = &env
			if !sus.Deadline.IsZero() && !env.at.Before(sus.Deadline) {
				if err := in.halt(ctx, sus); err != nil {
					return err
				}
				in.respond(shipment.InvalidTransition(env.cmd, in.state()))
				return nil
			}
			if env.cmd != shipment.CommandResolve {
				in.respond(shipment.InvalidTransition(env.cmd, in.state()))
				continue
			}
			if env.category != sus.Category {
				in.respond(shipment.InvalidChoice(env.category, env.choice, sus.Category))
				continue
			}
			opt, ok := in.Record().CurrentError.Option(env.choice)
			if !ok {
				in.respond(shipment.InvalidChoice(env.category, env.choice, sus.Category))
				continue
			}
			in.setPhase(phaseBusy)
			return in.apply(ctx, sus.Category, opt)
		}
	}
}

func (in *Instance) respond(err error) {
	if in.pending == nil {
		return
	}
	in.pending.reply <- reply{rec: in.Record(), err: err}
	in.pending = nil
}

// send hands env to the run goroutine and waits for the next resting point.
func (in *Instance) send(ctx context.Context, env envelope) (shipment.Record, error) {
	in.cmdMu.Lock()
	defer in.cmdMu.Unlock()

	in.mu.RLock()
	rec, ph, fatal := in.rec.Clone(), in.phase, in.fatal
	in.mu.RUnlock()

	if err := admit(env, rec, ph); err != nil {
		return rec, err
	}
	if ph == phaseStopped {
		if fatal == nil {
			fatal = errStopped
		}
		return rec, fatal
	}

	env.at = in.m.now()
	env.reply = make(chan reply, 1)
	select {
	case in.inbox <- env:
	case <-in.done:
		rec = in.Record()
		return rec, shipment.InvalidTransition(env.cmd, rec.State)
	case <-ctx.Done():
		return rec, ctx.Err()
	}
	return env.wait(ctx, in)
}

// admit rejects commands the current record cannot accept without
// involving the run goroutine.
func admit(env envelope, rec shipment.Record, ph phase) error {
	if rec.State.Terminal() {
		return shipment.InvalidTransition(env.cmd, rec.State)
	}
	if env.cmd == shipment.CommandResolve {
		var active shipment.Category
		if rec.Suspension != nil {
			active = rec.Suspension.Category
		}
		if active != env.category {
			return shipment.InvalidChoice(env.category, env.choice, active)
		}
		if _, ok := rec.CurrentError.Option(env.choice); !ok {
			return shipment.InvalidChoice(env.category, env.choice, active)
		}
		return nil
	}
	if !shipment.Allowed(env.cmd, rec.State) || rec.Suspension != nil || ph != phaseIdle {
		return shipment.InvalidTransition(env.cmd, rec.State)
	}
	return nil
}

func (in *Instance) cancel(ctx context.Context) (shipment.Record, error) {
	rec := in.Record()
	if rec.State.Terminal() {
		return rec, shipment.InvalidTransition(shipment.CommandCancel, rec.State)
	}

	in.ctl.Cancel(runner.ErrCanceled)
	select {
	case <-in.done:
	case <-ctx.Done():
		return in.Record(), ctx.Err()
	}

	if !in.terminal() {
		if err := in.finish(ctx, shipment.StateCanceled, "Shipment cancelled by operator."); err != nil {
			return in.Record(), err
		}
	}
	rec = in.Record()
	if rec.State != shipment.StateCanceled {
		return rec, shipment.InvalidTransition(shipment.CommandCancel, rec.State)
	}
	return rec, nil
}

func (in *Instance) pause(ctx context.Context) (shipment.Record, error) {
	if st := in.state(); st.Terminal() {
		return in.Record(), shipment.InvalidTransition(shipment.CommandPause, st)
	}
	if !in.ctl.Pause() {
		return in.Record(), nil
	}
	err := in.mutate(ctx, func(r *shipment.Record) {
		r.Paused = true
	}, store.NewEvent(in.id, store.KindControl, string(shipment.CommandPause), nil))
	if err == nil {
		in.logger.Info("shipment paused")
		in.publish(ctx, EventControl, shipment.CommandPause)
	}
	return in.Record(), err
}

func (in *Instance) resume(ctx context.Context) (shipment.Record, error) {
	if st := in.state(); st.Terminal() {
		return in.Record(), shipment.InvalidTransition(shipment.CommandResume, st)
	}
	if !in.ctl.Resume() {
		return in.Record(), nil
	}
	err := in.mutate(ctx, func(r *shipment.Record) {
		r.Paused = false
	}, store.NewEvent(in.id, store.KindControl, string(shipment.CommandResume), nil))
	if err == nil {
		in.logger.Info("shipment resumed")
		in.publish(ctx, EventControl, shipment.CommandResume)
	}
	return in.Record(), err
}

// mutate applies fn to a copy of the record, commits it with events and
// swaps it in. Nothing changes when the commit fails.
func (in *Instance) mutate(ctx context.Context, fn func(*shipment.Record), events ...store.Event) error {
	in.commitMu.Lock()
	defer in.commitMu.Unlock()

	in.mu.RLock()
	next := in.rec.Clone()
	in.mu.RUnlock()

	fn(&next)
	next.UpdatedAt = in.m.now()
	version, err := in.m.store.Commit(context.WithoutCancel(ctx), next, next.Version, events...)
	if err != nil {
		return err
	}
	next.Version = version

	in.mu.Lock()
	in.rec = next
	in.mu.Unlock()
	return nil
}

func (in *Instance) transition(ctx context.Context, to shipment.State, fn func(*shipment.Record), events ...store.Event) error {
	from := in.state()
	events = append(events, store.NewEvent(in.id, store.KindTransition, string(to), map[string]string{"from": string(from)}))
	err := in.mutate(ctx, func(r *shipment.Record) {
		r.State = to
		if fn != nil {
			fn(r)
		}
	}, events...)
	if err != nil {
		return err
	}
	in.logger.Info("shipment transition %s -> %s", from, to)
	in.publish(ctx, EventTransition, map[string]string{"from": string(from), "to": string(to)})
	return nil
}

// finish moves to a terminal state, releasing any suspension and freezing
// the ledger with the final status.
func (in *Instance) finish(ctx context.Context, final shipment.State, note string) error {
	return in.finishWith(ctx, final, note, in.book())
}

// finishWith commits book frozen with final. The record keeps its previous
// ledger when the commit fails.
func (in *Instance) finishWith(ctx context.Context, final shipment.State, note string, book *ledger.Ledger) error {
	ctx = context.WithoutCancel(ctx)
	book.Freeze(final)
	err := in.transition(ctx, final, func(r *shipment.Record) {
		r.Suspension = nil
		r.CurrentError = nil
		r.StageDone = true
		r.Paused = false
		syncLedger(r, book)
	})
	if err != nil {
		return err
	}
	if note != "" {
		in.notify(ctx, "", note, false, nil)
	}
	return nil
}

// book returns a working copy of the committed decision ledger. Its changes
// reach the record only through syncLedger inside a successful commit.
func (in *Instance) book() *ledger.Ledger {
	rec := in.Record()
	return ledger.Restore(ledger.State{
		Decisions: rec.Decisions,
		Summary:   rec.Summary,
	}, ledger.WithClock(in.m.now))
}

func syncLedger(r *shipment.Record, book *ledger.Ledger) {
	state := book.State()
	r.Decisions = state.Decisions
	r.Summary = state.Summary
}

func (in *Instance) invoke(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	req.ShipmentID = in.id
	res, err := in.m.gateway.Invoke(ctx, req)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if shipment.HasCode(err, shipment.ErrCodeGatewayFailure) {
		return res, err
	}
	return res, shipment.GatewayFailure(string(req.Check), err)
}

// notify sends an operator notification. Delivery failures are logged only.
func (in *Instance) notify(ctx context.Context, category shipment.Category, message string, action bool, opts []shipment.ResolutionOption) {
	note := gateway.Notification{
		ID:             uuid.NewString(),
		ShipmentID:     in.id,
		Category:       category,
		Message:        message,
		ActionRequired: action,
		Options:        opts,
		SentAt:         in.m.now(),
	}
	req := gateway.Request{Check: gateway.CheckNotifyOperator, ShipmentID: in.id, State: in.state(), Notification: &note}
	if _, err := in.m.gateway.Invoke(ctx, req); err != nil {
		in.logger.Warn("operator notification failed: %v", err)
	}
}

func (in *Instance) publish(ctx context.Context, kind string, payload any) {
	if in.m.mux == nil {
		return
	}
	evt := router.Event{
		Topic:      router.Topic("shipment", in.id, kind),
		ShipmentID: in.id,
		Kind:       kind,
		Payload:    payload,
		At:         in.m.now(),
	}
	if err := in.m.mux.Publish(ctx, evt); err != nil {
		in.logger.Warn("publish %s failed: %v", kind, err)
	}
}
