package dispatcher

import "sync"

// Subscription detaches a handler registered with Subscribe*.
type Subscription interface {
	Unsubscribe()
}

type registration struct {
	dispatcher *Dispatcher
	msgType    string
	handler    any
	once       sync.Once
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (r *registration) Unsubscribe() {
	if r == nil || r.dispatcher == nil {
		return
	}
	r.once.Do(func() {
		r.dispatcher.removeHandler(r.msgType, r.handler)
	})
}

func (d *Dispatcher) removeHandler(msgType string, handler any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[msgType][:0:0]
	for _, h := range d.handlers[msgType] {
		if h != handler {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, msgType)
		return
	}
	d.handlers[msgType] = kept
}
