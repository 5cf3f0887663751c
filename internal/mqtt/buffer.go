package mqtt

import "log"

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 256

// pendingMsg is a serialized message waiting for the broker.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO that keeps the newest messages while the
// broker is unreachable. Not safe for concurrent use; caller must synchronize.
type outbox struct {
	msgs    []pendingMsg
	next    int // next write position
	size    int
	dropped int // messages overwritten since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{msgs: make([]pendingMsg, capacity)}
}

func (o *outbox) push(msg pendingMsg) {
	if o.size == len(o.msgs) {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.msgs))
		}
		o.dropped++
	} else {
		o.size++
	}
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % len(o.msgs)
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []pendingMsg {
	if o.size == 0 {
		return nil
	}
	out := make([]pendingMsg, 0, o.size)
	first := (o.next - o.size + len(o.msgs)) % len(o.msgs)
	for i := 0; i < o.size; i++ {
		out = append(out, o.msgs[(first+i)%len(o.msgs)])
	}
	if o.dropped > 0 {
		log.Printf("mqtt: replaying %d buffered messages (%d dropped)", o.size, o.dropped)
	}
	o.next, o.size, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.size
}
