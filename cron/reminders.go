package cron

import (
	"context"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/router"
)

// DefaultReminderExpression runs the reminder sweep every minute.
const DefaultReminderExpression = "@every 1m"

// Reminder re-notifies operators about suspensions older than minAge and
// returns how many reminders went out.
type Reminder interface {
	Remind(ctx context.Context, minAge time.Duration) int
}

// ReminderConfig configures the recurring reminder sweep.
type ReminderConfig struct {
	Expression string        `json:"expression" yaml:"expression"`
	MinAge     time.Duration `json:"min_age" yaml:"min_age"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	// DeadlineLead is how long before a deadline the operator gets a final
	// warning. Zero disables deadline warnings.
	DeadlineLead time.Duration `json:"deadline_lead" yaml:"deadline_lead"`
}

// ScheduleReminders registers r on s. An empty expression uses
// DefaultReminderExpression.
func ScheduleReminders(s *Scheduler, r Reminder, cfg ReminderConfig) (Handle, error) {
	expr := cfg.Expression
	if expr == "" {
		expr = DefaultReminderExpression
	}
	return s.ScheduleCron(shipment.HandlerConfig{
		Expression: expr,
		Timeout:    cfg.Timeout,
	}, func(ctx context.Context) error {
		sent := r.Remind(ctx, cfg.MinAge)
		if sent > 0 && s.logger != nil {
			s.logger.Info("sent %d shipment reminders", sent)
		}
		return nil
	})
}

// DeadlineWarner warns the operator about a suspension close to its deadline.
// It reports whether a warning went out.
type DeadlineWarner interface {
	WarnDeadline(ctx context.Context, shipmentID string, category shipment.Category) bool
}

// SuspendedTopic matches the suspension events of every shipment.
const SuspendedTopic = "shipment.*.suspended"

// WatchDeadlines schedules a one-off warning lead before the deadline of
// every raced suspension published on mux. It returns nil when lead is not
// positive.
func WatchDeadlines(s *Scheduler, mux *router.Mux, w DeadlineWarner, lead time.Duration) router.Subscription {
	if lead <= 0 || mux == nil {
		return nil
	}
	return mux.Subscribe(SuspendedTopic, func(_ context.Context, evt router.Event) error {
		details, ok := evt.Payload.(*shipment.ErrorDetails)
		if !ok || details == nil || details.Deadline.IsZero() {
			return nil
		}
		id, category := evt.ShipmentID, details.Category
		_, err := s.ScheduleAt(details.Deadline.Add(-lead), shipment.HandlerConfig{}, func(ctx context.Context) error {
			if w.WarnDeadline(ctx, id, category) && s.logger != nil {
				s.logger.Info("sent %s deadline warning for shipment %s", category, id)
			}
			return nil
		})
		return err
	})
}
