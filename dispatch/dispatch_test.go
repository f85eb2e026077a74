package dispatch

import (
	"sync"
	"testing"
)

func TestLiteralPatternMatchesExactChannel(t *testing.T) {
	d := New()
	var got []string
	sub, err := d.Subscribe("sensors.imu", func(m *Message) { got = append(got, m.Channel) })
	if err != nil {
		t.Fatal(err)
	}
	d.Deliver(Message{Channel: "sensors.imu"})
	d.Deliver(Message{Channel: "sensors.imu.accel"})
	d.Drain(nil)
	if len(got) != 1 || got[0] != "sensors.imu" {
		t.Fatalf("got %v", got)
	}
	_ = sub
}

func TestPrefixPatternMatchesTwoOfThree(t *testing.T) {
	d := New()
	var mu sync.Mutex
	var got []string
	if _, err := d.Subscribe("A.*", func(m *Message) {
		mu.Lock()
		got = append(got, m.Channel)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []string{"ABC", "ADE", "B"} {
		d.Deliver(Message{Channel: ch})
	}
	n := d.Drain(nil)
	if n != 2 {
		t.Fatalf("drained %d callbacks, want 2", n)
	}
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestOverflowDropsExcessAndCountsThem(t *testing.T) {
	d := New()
	sub, err := d.Subscribe("T", func(m *Message) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.SetQueueCapacity(2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		d.Deliver(Message{Channel: "T", Data: []byte{byte(i)}})
	}
	if sub.QueueSize() != 2 {
		t.Fatalf("queue size = %d, want 2", sub.QueueSize())
	}
	if sub.DroppedCount() != 3 {
		t.Fatalf("dropped = %d, want 3", sub.DroppedCount())
	}
}

func TestDeliveryOrderMatchesRegistrationOrder(t *testing.T) {
	d := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if _, err := d.Subscribe("T", func(m *Message) { order = append(order, i) }); err != nil {
			t.Fatal(err)
		}
	}
	d.Deliver(Message{Channel: "T"})
	d.Drain(nil)
	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCallbackPanicIsRecoveredAndDispatchContinues(t *testing.T) {
	d := New()
	if _, err := d.Subscribe("T", func(m *Message) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	var secondCalled bool
	if _, err := d.Subscribe("T", func(m *Message) { secondCalled = true }); err != nil {
		t.Fatal(err)
	}
	d.Deliver(Message{Channel: "T"})

	var recoveredPattern string
	d.Drain(func(pattern string, recovered any) { recoveredPattern = pattern })

	if recoveredPattern != "T" {
		t.Fatalf("onPanic pattern = %q, want T", recoveredPattern)
	}
	if !secondCalled {
		t.Fatalf("second subscription's callback did not run after the first panicked")
	}
}

func TestUnsubscribeRemovesSubscription(t *testing.T) {
	d := New()
	called := false
	sub, err := d.Subscribe("T", func(m *Message) { called = true })
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Unsubscribe(sub); err != nil {
		t.Fatal(err)
	}
	d.Deliver(Message{Channel: "T"})
	d.Drain(nil)
	if called {
		t.Fatalf("callback invoked after Unsubscribe")
	}
	if err := d.Unsubscribe(sub); err == nil {
		t.Fatalf("expected error unsubscribing an already-removed subscription")
	}
}

func TestRegexPatternIsAnchored(t *testing.T) {
	d := New()
	var got []string
	if _, err := d.Subscribe(`sensor[0-9]+`, func(m *Message) { got = append(got, m.Channel) }); err != nil {
		t.Fatal(err)
	}
	d.Deliver(Message{Channel: "sensor1"})
	d.Deliver(Message{Channel: "xsensor1"})  // not anchored at start
	d.Deliver(Message{Channel: "sensor1x"})  // not anchored at end
	d.Drain(nil)
	if len(got) != 1 || got[0] != "sensor1" {
		t.Fatalf("got %v, want exactly [sensor1]", got)
	}
}

func TestBacklogedReflectsQueueState(t *testing.T) {
	d := New()
	if _, err := d.Subscribe("T", func(m *Message) {}); err != nil {
		t.Fatal(err)
	}
	if d.Backlogged() {
		t.Fatal("expected no backlog before any delivery")
	}
	d.Deliver(Message{Channel: "T"})
	if !d.Backlogged() {
		t.Fatal("expected a backlog after Deliver and before Drain")
	}
	d.Drain(nil)
	if d.Backlogged() {
		t.Fatal("expected no backlog after Drain emptied the queue")
	}
}
