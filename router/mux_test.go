package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteMatcher(t *testing.T) {
	match := MakeRouteMatcher()
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"shipment.s1.notify", "shipment.s1.notify", true},
		{"shipment.*.notify", "shipment.s1.notify", true},
		{"shipment.*.notify", "shipment.s1.state", false},
		{"shipment.#", "shipment.s1.notify", true},
		{"shipment.#", "shipment", true},
		{"#.notify", "shipment.s1.notify", true},
		{"shipment.*", "shipment.s1.notify", false},
		{"other.#", "shipment.s1", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, match(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}

	final := MakeRouteMatcher(MakeRouteMatcherOptions{OnlyFinalSegment: true})
	assert.False(t, final("#.notify", "shipment.s1.notify"))
	assert.True(t, final("shipment.#", "shipment.s1.notify"))
}

func TestMuxPublishFansOutToAllMatches(t *testing.T) {
	m := NewMux()
	var mu sync.Mutex
	got := map[string]int{}
	record := func(name string) Handler {
		return func(_ context.Context, evt Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name]++
			assert.False(t, evt.At.IsZero())
			return nil
		}
	}

	m.Subscribe("shipment.#", record("all"))
	m.Subscribe("shipment.*.notify", record("notify"))
	m.Subscribe("shipment.*.state", record("state"))

	require.NoError(t, m.Publish(context.Background(), Event{Topic: "shipment.s1.notify"}))
	assert.Equal(t, map[string]int{"all": 1, "notify": 1}, got)
	assert.Equal(t, 2, m.Match("shipment.s1.notify"))
}

func TestMuxUnsubscribe(t *testing.T) {
	m := NewMux()
	calls := 0
	sub := m.Subscribe("shipment.#", func(context.Context, Event) error {
		calls++
		return nil
	})

	require.NoError(t, m.Publish(context.Background(), Event{Topic: "shipment.a"}))
	sub.Unsubscribe()
	require.NoError(t, m.Publish(context.Background(), Event{Topic: "shipment.a"}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.Match("shipment.a"))
}

func TestMuxJoinsHandlerErrors(t *testing.T) {
	m := NewMux()
	errA := errors.New("a")
	errB := errors.New("b")
	m.Subscribe("x.#", func(context.Context, Event) error { return errA })
	m.Subscribe("x.y", func(context.Context, Event) error { return errB })

	err := m.Publish(context.Background(), Event{Topic: "x.y"})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "shipment.s1.notify", Topic("shipment", "s1", "notify"))
}
