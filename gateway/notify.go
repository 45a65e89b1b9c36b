package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/router"
)

// FormatOptions renders the option list in the order presented.
func FormatOptions(opts []shipment.ResolutionOption) string {
	if len(opts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Options:")
	for i, opt := range opts {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Text)
	}
	return b.String()
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger shipment.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) error {
	logger := shipment.WithLoggerFields(shipment.NormalizeLogger(n.Logger).WithContext(ctx), map[string]any{
		"shipment_id":     note.ShipmentID,
		"category":        string(note.Category),
		"action_required": note.ActionRequired,
	})
	logger.Info("operator notification: %s", note.Message)
	return nil
}

// NotificationTopic is the mux topic notifications for id are published on.
func NotificationTopic(id string) string {
	return router.Topic("shipment", id, "notify")
}

// MuxNotifier publishes notifications on the router mux.
type MuxNotifier struct {
	Mux *router.Mux
}

func (n MuxNotifier) Notify(ctx context.Context, note Notification) error {
	return n.Mux.Publish(ctx, router.Event{
		Topic:      NotificationTopic(note.ShipmentID),
		ShipmentID: note.ShipmentID,
		Kind:       "notify",
		Payload:    note,
		At:         note.SentAt,
	})
}

// MultiNotifier delivers to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(_ context.Context, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// For returns the notifications sent for one shipment.
func (r *Recorder) For(id string) []Notification {
	var out []Notification
	for _, n := range r.Notifications() {
		if n.ShipmentID == id {
			out = append(out, n)
		}
	}
	return out
}
