package hotswap

import (
	"context"
	"errors"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventCollector struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (c *eventCollector) observer(id string) Observer {
	return NewFunctionalObserver(id, func(_ context.Context, event cloudevents.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, event)
		return nil
	})
}

func (c *eventCollector) ofType(eventType string) []cloudevents.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cloudevents.Event
	for _, e := range c.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestRuntimeObservers(t *testing.T) {
	t.Run("should_emit_cycle_events_with_shared_cycle_id", func(t *testing.T) {
		collector := &eventCollector{}
		g, _ := acceptingChain(t, WithObserver(collector.observer("all")))

		g.publish("leaf")
		_, err := g.checkAndApply(nil)
		require.NoError(t, err)
		g.rt.WaitObservers()

		statusEvents := collector.ofType(EventTypeStatusChanged)
		assert.Len(t, statusEvents, 6)

		applied := collector.ofType(EventTypeUpdateApplied)
		require.Len(t, applied, 1)
		cycle := CycleID(applied[0])
		require.NotEmpty(t, cycle)

		for _, e := range statusEvents {
			assert.Equal(t, cycle, CycleID(e), "status event %s", e.ID())
		}
		checked := collector.ofType(EventTypeUpdateChecked)
		require.Len(t, checked, 1)
		assert.Equal(t, cycle, CycleID(checked[0]))

		disposed := collector.ofType(EventTypeModuleDisposed)
		require.Len(t, disposed, 1)
		var data map[string]any
		require.NoError(t, disposed[0].DataAs(&data))
		assert.Equal(t, "leaf", data["module"])
	})

	t.Run("should_use_new_cycle_id_per_cycle", func(t *testing.T) {
		collector := &eventCollector{}
		g, _ := acceptingChain(t, WithObserver(collector.observer("checked"), EventTypeUpdateChecked))

		_, err := g.rt.Check(context.Background(), nil)
		require.NoError(t, err)
		_, err = g.rt.Check(context.Background(), nil)
		require.NoError(t, err)
		g.rt.WaitObservers()

		checked := collector.ofType(EventTypeUpdateChecked)
		require.Len(t, checked, 2)
		assert.NotEqual(t, CycleID(checked[0]), CycleID(checked[1]))
		assert.Empty(t, collector.ofType(EventTypeStatusChanged), "filtered observer only sees subscribed types")
	})

	t.Run("should_emit_aborted_event_with_chain", func(t *testing.T) {
		collector := &eventCollector{}
		g := chainGraph(t)
		require.NoError(t, g.rt.RegisterObserver(collector.observer("aborts"), EventTypeUpdateAborted))
		g.on("a", func(m *Module, _ RequireFunc) {
			m.Hot.Decline("leaf")
		})
		g.load("root")

		g.publish("leaf")
		_, err := g.checkAndApply(nil)
		require.Error(t, err)
		g.rt.WaitObservers()

		aborted := collector.ofType(EventTypeUpdateAborted)
		require.Len(t, aborted, 1)
		var data map[string]any
		require.NoError(t, aborted[0].DataAs(&data))
		assert.Equal(t, "leaf", data["module"])
		assert.Equal(t, []any{"leaf", "a"}, data["chain"])
	})

	t.Run("should_survive_failing_and_panicking_observers", func(t *testing.T) {
		g, _ := acceptingChain(t)
		require.NoError(t, g.rt.RegisterObserver(NewFunctionalObserver("failing", func(context.Context, cloudevents.Event) error {
			return errors.New("observer failed")
		})))
		require.NoError(t, g.rt.RegisterObserver(NewFunctionalObserver("panicking", func(context.Context, cloudevents.Event) error {
			panic("observer panicked")
		})))

		g.publish("leaf")
		_, err := g.checkAndApply(nil)
		require.NoError(t, err)
		g.rt.WaitObservers()
		assert.True(t, g.logger.Has("error", "Observer error"))
		assert.True(t, g.logger.Has("error", "Observer panicked"))
	})

	t.Run("should_unregister_observers", func(t *testing.T) {
		collector := &eventCollector{}
		g, _ := acceptingChain(t)
		obs := collector.observer("temp")
		require.NoError(t, g.rt.RegisterObserver(obs))
		require.Len(t, g.rt.GetObservers(), 1)
		require.NoError(t, g.rt.UnregisterObserver(obs))
		require.NoError(t, g.rt.UnregisterObserver(obs))
		assert.Empty(t, g.rt.GetObservers())
	})
}

func TestCloudEvent(t *testing.T) {
	t.Parallel()
	event := NewCloudEvent("test.event", "test.source", map[string]any{"k": "v"}, map[string]any{cycleExtension: "abc"})

	assert.Equal(t, "test.event", event.Type())
	assert.Equal(t, "test.source", event.Source())
	assert.Equal(t, "abc", CycleID(event))
	assert.NotEmpty(t, event.ID())
	require.NoError(t, ValidateCloudEvent(event))
}
