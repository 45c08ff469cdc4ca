package mqtt

// pendingMsg stores a serialized MQTT message queued while the broker link
// is down, for replay after reconnection.
type pendingMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// ringBuffer is a fixed-capacity FIFO for pending messages. When full, a
// push overwrites the oldest entry. Not safe for concurrent use; the
// caller must synchronize.
type ringBuffer struct {
	buf   []pendingMsg
	head  int // next write position
	count int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]pendingMsg, capacity)}
}

// push appends msg and reports whether an older entry was dropped to make
// room.
func (r *ringBuffer) push(msg pendingMsg) bool {
	dropped := r.count == len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if !dropped {
		r.count++
	}
	return dropped
}

// drainAll returns the pending messages oldest-first and empties the buffer.
func (r *ringBuffer) drainAll() []pendingMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]pendingMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	r.count = 0
	r.head = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
