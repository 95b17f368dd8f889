package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDispatchesByType(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var gotValue []ValueCreated
	var gotJob []JobCreated
	Subscribe(bus, func(e ValueCreated) { gotValue = append(gotValue, e) })
	Subscribe(bus, func(e JobCreated) { gotJob = append(gotJob, e) })

	bus.Publish(ValueCreated{ValueID: uuid.New(), SchemaType: "string"})
	bus.Publish(JobCreated{JobID: uuid.New(), ModuleType: "uppercase"})

	require.Len(t, gotValue, 1)
	require.Len(t, gotJob, 1)
	assert.Equal(t, "string", gotValue[0].SchemaType)
	assert.Equal(t, "uppercase", gotJob[0].ModuleType)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(ValueCreated{ValueID: uuid.New()})
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	count := 0
	unsub := Subscribe(bus, func(ValueCreated) { count++ })

	bus.Publish(ValueCreated{})
	unsub()
	bus.Publish(ValueCreated{})

	assert.Equal(t, 1, count)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var panicked bool
	bus.OnHandlerPanic(func(evt any, r any) { panicked = true })

	var secondCalled bool
	Subscribe(bus, func(ValueCreated) { panic("boom") })
	Subscribe(bus, func(ValueCreated) { secondCalled = true })

	assert.NotPanics(t, func() { bus.Publish(ValueCreated{}) })
	assert.True(t, panicked)
	assert.True(t, secondCalled, "a panicking handler must not block other subscribers")
}

func TestMultipleSubscribersSameType(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var order []int
	Subscribe(bus, func(ValueCreated) { order = append(order, 1) })
	Subscribe(bus, func(ValueCreated) { order = append(order, 2) })

	bus.Publish(ValueCreated{})
	assert.Equal(t, []int{1, 2}, order)
}
