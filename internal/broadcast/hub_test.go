package broadcast

import (
	"fmt"
	"testing"
	"time"
)

func TestFanOutPreservesPerSubscriberOrder(t *testing.T) {
	hub := NewHub(16)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Message{Name: fmt.Sprintf("msg-%d", i)})
	}

	for _, sub := range []*Subscriber{a, b} {
		for i := 0; i < 5; i++ {
			select {
			case msg := <-sub.C():
				if want := fmt.Sprintf("msg-%d", i); msg.Name != want {
					t.Fatalf("got %q, want %q", msg.Name, want)
				}
			case <-time.After(time.Second):
				t.Fatal("message never delivered")
			}
		}
	}
}

func TestSlowSubscriberDropsOldestWithoutBlocking(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe() // never drained while publishing
	fast := hub.Subscribe()
	defer slow.Close()
	defer fast.Close()

	// Drain the fast subscriber concurrently so its small buffer never
	// fills.
	received := make(chan []string, 1)
	go func() {
		var got []string
		for msg := range fast.C() {
			got = append(got, msg.Name)
		}
		received <- got
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(Message{Name: fmt.Sprintf("msg-%d", i)})
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if hub.Drops() == 0 {
		t.Error("expected drops on the full buffer")
	}

	// The slow subscriber keeps the freshest messages, still in order.
	first := <-slow.C()
	second := <-slow.C()
	if first.Name != "msg-8" || second.Name != "msg-9" {
		t.Errorf("slow subscriber got %q, %q; want the newest two", first.Name, second.Name)
	}

	fast.Close()
	got := <-received
	if len(got) != 10 {
		t.Fatalf("fast subscriber got %d messages, want 10: %v", len(got), got)
	}
	for i, name := range got {
		if want := fmt.Sprintf("msg-%d", i); name != want {
			t.Fatalf("fast subscriber got %q at %d, want %q", name, i, want)
		}
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe()
	if hub.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", hub.Subscribers())
	}

	sub.Close()
	sub.Close() // idempotent
	if hub.Subscribers() != 0 {
		t.Fatalf("subscribers after close = %d, want 0", hub.Subscribers())
	}
	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after close")
	}

	// Publishing after close must not panic or deliver.
	hub.Publish(Message{Name: "late"})
}
