package shipment

import "strings"

// State is the lifecycle position of a shipment.
type State string

const (
	StateOrderReceived       State = "ORDER_RECEIVED"
	StatePaymentReceived     State = "PAYMENT_RECEIVED"
	StateWarehouseAllocation State = "WAREHOUSE_ALLOCATION"
	StatePackaged            State = "PACKAGED"
	StateTransportStarted    State = "TRANSPORT_STARTED"
	StateCustomsClearance    State = "CUSTOMS_CLEARANCE"
	StateLocalDelivery       State = "LOCAL_DELIVERY"
	StateDelivered           State = "DELIVERED"
	StateCanceled            State = "CANCELED"
	StateCriticalHalt        State = "CRITICAL_HALT"
)

// States lists every lifecycle state in pipeline order followed by the alternate terminals.
var States = []State{
	StateOrderReceived,
	StatePaymentReceived,
	StateWarehouseAllocation,
	StatePackaged,
	StateTransportStarted,
	StateCustomsClearance,
	StateLocalDelivery,
	StateDelivered,
	StateCanceled,
	StateCriticalHalt,
}

// Terminal reports whether no further commands are accepted in s.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateCanceled, StateCriticalHalt:
		return true
	default:
		return false
	}
}

func (s State) String() string { return string(s) }

// Category returns the stage category checked while in s.
func (s State) Category() (Category, bool) {
	switch s {
	case StateOrderReceived:
		return CategoryOrder, true
	case StateWarehouseAllocation:
		return CategoryWarehouse, true
	case StateTransportStarted:
		return CategoryTransport, true
	case StateCustomsClearance:
		return CategoryCustoms, true
	case StateLocalDelivery:
		return CategoryDelivery, true
	}
	return "", false
}

// ParseState resolves a state name case-insensitively.
func ParseState(v string) (State, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, s := range States {
		if string(s) == v {
			return s, true
		}
	}
	return "", false
}

// PaymentStatus tracks the payment retry controller.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentSuccess              PaymentStatus = "success"
	PaymentFailed               PaymentStatus = "failed"
	PaymentWaitingForResolution PaymentStatus = "waiting_for_resolution"
)

// Category names a decision category, one per stage.
type Category string

const (
	CategoryOrder     Category = "order"
	CategoryPayment   Category = "payment"
	CategoryWarehouse Category = "warehouse"
	CategoryTransport Category = "transport"
	CategoryCustoms   Category = "customs"
	CategoryDelivery  Category = "delivery"
)

// Categories lists categories in pipeline order.
var Categories = []Category{
	CategoryOrder,
	CategoryPayment,
	CategoryWarehouse,
	CategoryTransport,
	CategoryCustoms,
	CategoryDelivery,
}

// Raced reports whether suspensions of this category race the hard deadline.
func (c Category) Raced() bool {
	switch c {
	case CategoryWarehouse, CategoryTransport, CategoryCustoms:
		return true
	default:
		return false
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// Command names an external input accepted by a shipment.
type Command string

const (
	CommandStart               Command = "start"
	CommandAllocateWarehouse   Command = "allocate_warehouse"
	CommandStartTransport      Command = "start_transport"
	CommandUpdateCustomsStatus Command = "update_customs_status"
	CommandStartLocalDelivery  Command = "start_local_delivery"
	CommandMarkDelivered       Command = "mark_delivered"
	CommandCancel              Command = "cancel"
	CommandPause               Command = "pause"
	CommandResume              Command = "resume"
	CommandResolve             Command = "resolve"
)

// Commands lists every command name.
var Commands = []Command{
	CommandStart,
	CommandAllocateWarehouse,
	CommandStartTransport,
	CommandUpdateCustomsStatus,
	CommandStartLocalDelivery,
	CommandMarkDelivered,
	CommandCancel,
	CommandPause,
	CommandResume,
	CommandResolve,
}

var advancePredecessor = map[Command]State{
	CommandAllocateWarehouse:   StatePaymentReceived,
	CommandStartTransport:      StatePackaged,
	CommandUpdateCustomsStatus: StateTransportStarted,
	CommandStartLocalDelivery:  StateCustomsClearance,
	CommandMarkDelivered:       StateLocalDelivery,
}

// Predecessor returns the state an advance command requires.
func (c Command) Predecessor() (State, bool) {
	s, ok := advancePredecessor[c]
	return s, ok
}

var advanceTarget = map[Command]State{
	CommandAllocateWarehouse:   StateWarehouseAllocation,
	CommandStartTransport:      StateTransportStarted,
	CommandUpdateCustomsStatus: StateCustomsClearance,
	CommandStartLocalDelivery:  StateLocalDelivery,
	CommandMarkDelivered:       StateDelivered,
}

// Next returns the state an advance command moves to.
func (c Command) Next() (State, bool) {
	s, ok := advanceTarget[c]
	return s, ok
}

// Advance reports whether c moves the pipeline forward by one stage.
func (c Command) Advance() bool {
	_, ok := advancePredecessor[c]
	return ok
}

// Allowed is the fixed command/state table. Start is never allowed on an
// existing record; the manager owns the first start. Resolve additionally
// requires an active suspension of the matching category.
func Allowed(c Command, s State) bool {
	if s.Terminal() {
		return false
	}
	switch c {
	case CommandStart:
		return false
	case CommandCancel, CommandPause, CommandResume, CommandResolve:
		return true
	}
	pred, ok := advancePredecessor[c]
	return ok && pred == s
}
