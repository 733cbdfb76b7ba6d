package eventbus

import (
	"testing"
	"time"
)

func TestBusDeliversMatchingTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe("debug.session.*", 4)
	defer sub.Unsubscribe()

	b.Publish(TopicSessionStarted, SessionStarted{SessionID: "s1"})
	b.Publish(TopicBreakpointHit, BreakpointEvent{SessionID: "s1"})

	select {
	case ev := <-sub.Events():
		if ev.Topic != TopicSessionStarted {
			t.Fatalf("expected session.started, got %s", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected second event delivered: %+v", ev)
	default:
	}
}

func TestBusNonMatchingPatternNotDelivered(t *testing.T) {
	b := New()
	sub := b.Subscribe("debug.thread.*", 4)
	defer sub.Unsubscribe()

	b.Publish(TopicSessionStarted, SessionStarted{SessionID: "s1"})

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected delivery for non-matching pattern: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusDropsOldestWhenFull(t *testing.T) {
	b := New()
	sub := b.Subscribe("debug.output.*", 2)
	defer sub.Unsubscribe()

	b.Publish(TopicOutputReceived, OutputReceived{Text: "1"})
	b.Publish(TopicOutputReceived, OutputReceived{Text: "2"})
	b.Publish(TopicOutputReceived, OutputReceived{Text: "3"})

	first := <-sub.Events()
	second := <-sub.Events()

	if first.Payload.(OutputReceived).Text != "2" || second.Payload.(OutputReceived).Text != "3" {
		t.Fatalf("expected oldest event dropped, got %+v then %+v", first, second)
	}
	if sub.Dropped() != 1 {
		t.Fatalf("expected dropped counter = 1, got %d", sub.Dropped())
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe("debug.*", 4)
	sub.Unsubscribe()

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}

	// Publish after unsubscribe must not panic even though the channel
	// is closed; no subscriber remains to receive it.
	b.Publish(TopicSessionStarted, SessionStarted{})
}

func TestBusMultipleSubscribersIndependentBuffers(t *testing.T) {
	b := New()
	a := b.Subscribe("debug.session.*", 4)
	defer a.Unsubscribe()
	c := b.Subscribe("debug.session.started", 4)
	defer c.Unsubscribe()

	b.Publish(TopicSessionStarted, SessionStarted{SessionID: "s1"})

	if len(a.Events()) != 1 || len(c.Events()) != 1 {
		t.Fatalf("expected both subscribers to receive the event independently")
	}
}
