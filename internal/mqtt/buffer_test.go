package mqtt

import (
	"testing"
)

func pushN(o *outbox, from, to int) {
	for i := from; i < to; i++ {
		o.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxPushAndDrain(t *testing.T) {
	o := newOutbox(10)
	pushN(o, 0, 5)

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	// Second drain should be empty
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got))
	}
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	o := newOutbox(5)
	pushN(o, 0, 8)

	if o.dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", o.dropped)
	}
	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
	if o.dropped != 0 {
		t.Error("drain should reset the dropped count")
	}
}

func TestOutboxMultipleCycles(t *testing.T) {
	o := newOutbox(4)
	pushN(o, 0, 3)
	o.drain()

	// Wrap the write position around the end of the slice.
	pushN(o, 10, 16)
	got := o.drain()
	if len(got) != 4 {
		t.Fatalf("expected 4 items, got %d", len(got))
	}
	if got[0].payload[0] != 12 || got[3].payload[0] != 15 {
		t.Errorf("unexpected order: first %d, last %d", got[0].payload[0], got[3].payload[0])
	}
}

func TestOutboxLen(t *testing.T) {
	o := newOutbox(3)
	if o.len() != 0 {
		t.Errorf("expected 0, got %d", o.len())
	}
	pushN(o, 0, 2)
	if o.len() != 2 {
		t.Errorf("expected 2, got %d", o.len())
	}
	pushN(o, 0, 5)
	if o.len() != 3 {
		t.Errorf("len should cap at capacity, got %d", o.len())
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(2)
	o.push(pendingMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
