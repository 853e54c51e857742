package notify

import "time"

type outcome struct {
	action string
	err    error
}

// entry is a queued request plus the handle its caller waits on.
type entry struct {
	req      Request
	queuedAt time.Time
	done     chan outcome
}

func newEntry(req Request) *entry {
	return &entry{req: req, queuedAt: time.Now(), done: make(chan outcome, 1)}
}

// resolve completes the entry. Only the first call has an effect.
func (e *entry) resolve(action string, err error) {
	select {
	case e.done <- outcome{action: action, err: err}:
	default:
	}
}

// priorityQueue keeps entries ordered by priority, FIFO within a class.
// It is not safe for concurrent use; Service guards it with its mutex.
type priorityQueue struct {
	items []*entry
}

func (q *priorityQueue) len() int { return len(q.items) }

// insert places e before the first entry with a strictly lower priority.
//
// If the queue already holds max or more entries, all low-priority entries
// are evicted first and returned. The insert happens regardless, so the queue
// may exceed max when it is full of normal/high entries.
func (q *priorityQueue) insert(e *entry, max int) (evicted []*entry) {
	if max > 0 && len(q.items) >= max {
		kept := q.items[:0]
		for _, it := range q.items {
			if it.req.Priority == PriorityLow {
				evicted = append(evicted, it)
				continue
			}
			kept = append(kept, it)
		}
		for i := len(kept); i < len(q.items); i++ {
			q.items[i] = nil
		}
		q.items = kept
	}

	rank := e.req.Priority.rank()
	pos := len(q.items)
	for i, it := range q.items {
		if it.req.Priority.rank() < rank {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = e
	return evicted
}

// popFront removes and returns the head. Callers must check len() first;
// popping an empty queue is a bug and panics.
func (q *priorityQueue) popFront() *entry {
	if len(q.items) == 0 {
		panic("notify: popFront on empty queue")
	}
	e := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return e
}

// clear discards all entries and returns them.
func (q *priorityQueue) clear() []*entry {
	out := q.items
	q.items = nil
	return out
}

func (q *priorityQueue) snapshot() []Request {
	out := make([]Request, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it.req)
	}
	return out
}
