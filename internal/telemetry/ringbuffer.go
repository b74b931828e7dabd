package telemetry

import "github.com/Archerouyang/project-alpha/internal/model"

// ringBuffer is a fixed-capacity circular buffer of OperationRecord,
// mirroring performance_monitor.py's collections.deque(maxlen=1000):
// once full, the oldest record is overwritten rather than growing
// unbounded.
type ringBuffer struct {
	records []model.OperationRecord
	cap     int
	next    int
	size    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{records: make([]model.OperationRecord, capacity), cap: capacity}
}

func (r *ringBuffer) push(rec model.OperationRecord) {
	r.records[r.next] = rec
	r.next = (r.next + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

// snapshot returns the buffer's current contents in insertion order,
// oldest first.
func (r *ringBuffer) snapshot() []model.OperationRecord {
	out := make([]model.OperationRecord, 0, r.size)
	if r.size < r.cap {
		out = append(out, r.records[:r.size]...)
		return out
	}
	out = append(out, r.records[r.next:]...)
	out = append(out, r.records[:r.next]...)
	return out
}
