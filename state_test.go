package shipment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedTableIsTotal(t *testing.T) {
	for _, s := range States {
		for _, c := range Commands {
			got := Allowed(c, s)
			switch {
			case s.Terminal():
				assert.False(t, got, "%s in terminal %s", c, s)
			case c == CommandStart:
				assert.False(t, got, "start on existing record in %s", s)
			case c == CommandCancel || c == CommandPause || c == CommandResume || c == CommandResolve:
				assert.True(t, got, "%s in %s", c, s)
			default:
				pred, _ := c.Predecessor()
				assert.Equal(t, pred == s, got, "%s in %s", c, s)
			}
		}
	}
}

func TestAdvanceCommands(t *testing.T) {
	cases := []struct {
		cmd  Command
		from State
		to   State
	}{
		{CommandAllocateWarehouse, StatePaymentReceived, StateWarehouseAllocation},
		{CommandStartTransport, StatePackaged, StateTransportStarted},
		{CommandUpdateCustomsStatus, StateTransportStarted, StateCustomsClearance},
		{CommandStartLocalDelivery, StateCustomsClearance, StateLocalDelivery},
		{CommandMarkDelivered, StateLocalDelivery, StateDelivered},
	}
	for _, tc := range cases {
		assert.True(t, tc.cmd.Advance(), tc.cmd)
		from, ok := tc.cmd.Predecessor()
		assert.True(t, ok)
		assert.Equal(t, tc.from, from)
		to, ok := tc.cmd.Next()
		assert.True(t, ok)
		assert.Equal(t, tc.to, to)
	}

	for _, c := range []Command{CommandStart, CommandCancel, CommandPause, CommandResume, CommandResolve} {
		assert.False(t, c.Advance(), c)
		_, ok := c.Next()
		assert.False(t, ok, c)
	}
}

func TestStateCategory(t *testing.T) {
	cases := map[State]Category{
		StateOrderReceived:       CategoryOrder,
		StateWarehouseAllocation: CategoryWarehouse,
		StateTransportStarted:    CategoryTransport,
		StateCustomsClearance:    CategoryCustoms,
		StateLocalDelivery:       CategoryDelivery,
	}
	for s, want := range cases {
		got, ok := s.Category()
		assert.True(t, ok, s)
		assert.Equal(t, want, got)
	}
	for _, s := range []State{StatePaymentReceived, StatePackaged, StateDelivered, StateCanceled, StateCriticalHalt} {
		_, ok := s.Category()
		assert.False(t, ok, s)
	}
}

func TestParseStateAndCategories(t *testing.T) {
	s, ok := ParseState(" customs_clearance ")
	assert.True(t, ok)
	assert.Equal(t, StateCustomsClearance, s)
	_, ok = ParseState("LOST_AT_SEA")
	assert.False(t, ok)

	var raced []Category
	for _, c := range Categories {
		assert.True(t, c.Valid())
		if c.Raced() {
			raced = append(raced, c)
		}
	}
	assert.Equal(t, []Category{CategoryWarehouse, CategoryTransport, CategoryCustoms}, raced)
	assert.False(t, Category("billing").Valid())
}
