package events

import "testing"

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	var a, b int
	bus.Subscribe(func(Event) { a++ })
	bus.Subscribe(func(Event) { b++ })

	bus.Publish(JobCreated("job-1", 1))

	if a != 1 || b != 1 {
		t.Fatalf("expected both subscribers to receive the event, got a=%d b=%d", a, b)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	var count int
	id := bus.Subscribe(func(Event) { count++ })

	bus.Publish(JobCreated("job-1", 1))
	bus.Unsubscribe(id)
	bus.Publish(JobCreated("job-1", 1))

	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Unsubscribe(999)
}

func TestSubscriberCanUnsubscribeItselfMidPublish(t *testing.T) {
	bus := NewBus()
	var id int
	var calls int
	id = bus.Subscribe(func(Event) {
		calls++
		bus.Unsubscribe(id)
	})

	bus.Publish(JobCreated("job-1", 1))
	bus.Publish(JobCreated("job-1", 1))

	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}
