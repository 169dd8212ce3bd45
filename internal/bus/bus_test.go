package bus_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
)

var testSource = message.Source{ID: "test", Type: message.SourceRunner}

func quietBus() *bus.Bus {
	return bus.New(bus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestPublishInRegistrationOrder(t *testing.T) {
	b := quietBus()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe(nil, func(message.Message) { order = append(order, i) })
	}

	b.Publish(message.NewEvent(testSource, message.EventReady))
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPredicatesMustAllMatch(t *testing.T) {
	b := quietBus()

	var got []message.Event
	b.Subscribe([]message.Predicate{
		message.IsEvent(message.EventReady, message.EventWorking),
		message.IsFrom("w-1"),
	}, func(m message.Message) {
		got = append(got, m.(message.EventMessage).Event)
	})

	w1 := message.Source{ID: "w-1", Type: message.SourceClient}
	w2 := message.Source{ID: "w-2", Type: message.SourceClient}
	b.Publish(message.NewEvent(w1, message.EventReady))
	b.Publish(message.NewEvent(w2, message.EventReady))
	b.Publish(message.NewEvent(w1, message.EventExited))
	b.Publish(message.NewEvent(w1, message.EventWorking))

	require.Equal(t, []message.Event{message.EventReady, message.EventWorking}, got)
}

func TestUnsubscribe(t *testing.T) {
	b := quietBus()

	calls := 0
	id := b.Subscribe(nil, func(message.Message) { calls++ })
	require.Equal(t, 1, b.Len())

	require.True(t, b.Unsubscribe(id))
	require.False(t, b.Unsubscribe(id))
	require.Equal(t, 0, b.Len())

	b.Publish(message.NewEvent(testSource, message.EventReady))
	require.Zero(t, calls)
}

func TestSubscriptionIDsAreUnique(t *testing.T) {
	b := quietBus()
	seen := make(map[bus.SubscriptionID]struct{})
	for i := 0; i < 100; i++ {
		id := b.Subscribe(nil, func(message.Message) {})
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := quietBus()

	var after bool
	b.Subscribe(nil, func(message.Message) { panic("boom") })
	b.Subscribe(nil, func(message.Message) { after = true })

	require.NotPanics(t, func() {
		b.Publish(message.NewEvent(testSource, message.EventReady))
	})
	require.True(t, after)
}

func TestUnsubscribeDuringPublishSkipsLaterHandler(t *testing.T) {
	b := quietBus()

	var second bus.SubscriptionID
	var secondCalled bool
	b.Subscribe(nil, func(message.Message) { b.Unsubscribe(second) })
	second = b.Subscribe(nil, func(message.Message) { secondCalled = true })

	b.Publish(message.NewEvent(testSource, message.EventReady))
	require.False(t, secondCalled)
}

func TestSubscribeDuringPublishTakesEffectNextTime(t *testing.T) {
	b := quietBus()

	lateCalls := 0
	var once sync.Once
	b.Subscribe(nil, func(message.Message) {
		once.Do(func() {
			b.Subscribe(nil, func(message.Message) { lateCalls++ })
		})
	})

	b.Publish(message.NewEvent(testSource, message.EventReady))
	require.Zero(t, lateCalls)
	b.Publish(message.NewEvent(testSource, message.EventReady))
	require.Equal(t, 1, lateCalls)
}

func TestConcurrentPublish(t *testing.T) {
	b := quietBus()

	var mu sync.Mutex
	count := 0
	b.Subscribe(nil, func(message.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(message.NewEvent(testSource, message.EventReady))
		}()
	}
	wg.Wait()
	require.Equal(t, 50, count)
}
