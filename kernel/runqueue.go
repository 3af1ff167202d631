package kernel

// RunQueues holds one FIFO per priority class plus the schedule
// counter driving anti-starvation.
//
// High-priority threads run on every decision except when the counter
// is a multiple of a lower class's threshold and that class has work.
// Low beats normal when both thresholds hit at once.
type RunQueues struct {
	queues [numPriorities]threadList
	count  uint64

	lowThreshold  uint64
	normThreshold uint64
}

// NewRunQueues returns empty queues with the given starvation thresholds.
func NewRunQueues(low, norm uint64) RunQueues {
	if low == 0 {
		low = 1024
	}
	if norm == 0 {
		norm = 128
	}
	return RunQueues{lowThreshold: low, normThreshold: norm}
}

// Enqueue appends t to the back of class and marks it ready.
func (q *RunQueues) Enqueue(t *Thread, class Priority) {
	if class >= numPriorities {
		class = PriorityNormal
	}
	t.Priority = class
	t.state = StateReady
	q.queues[class].PushBack(t)
}

// Remove takes t out of whichever queue holds it.
func (q *RunQueues) Remove(t *Thread) bool {
	for i := range q.queues {
		if q.queues[i].Remove(t) {
			return true
		}
	}
	return false
}

// Len reports the number of ready threads in class.
func (q *RunQueues) Len(class Priority) int {
	if class >= numPriorities {
		return 0
	}
	return q.queues[class].Len()
}

// Count returns the number of scheduling decisions made so far.
func (q *RunQueues) Count() uint64 { return q.count }

// SelectNext makes one scheduling decision.
//
// A still-running current thread goes to the back of its class first,
// so rotation matches a pop-and-requeue policy while the chosen thread
// is never left in a queue. If no class qualifies, current keeps the
// processor, or when current cannot continue, the highest non-empty
// class does. A nil result means there is nothing to run at all.
func (q *RunQueues) SelectNext(current *Thread) *Thread {
	q.count++

	requeued := current != nil && current.state == StateRunning
	if requeued {
		q.Enqueue(current, current.Priority)
	}

	var from *threadList
	switch low, norm, high := &q.queues[PriorityLow], &q.queues[PriorityNormal], &q.queues[PriorityHigh]; {
	case !low.Empty() && q.count%q.lowThreshold == 0:
		from = low
	case !norm.Empty() && q.count%q.normThreshold == 0:
		from = norm
	case !high.Empty():
		from = high
	}

	var next *Thread
	switch {
	case from != nil:
		next = from.PopFront()
	case requeued:
		q.Remove(current)
		next = current
	default:
		// Current went to sleep or exited; any ready class will do.
		for _, class := range [...]Priority{PriorityHigh, PriorityNormal, PriorityLow} {
			if next = q.queues[class].PopFront(); next != nil {
				break
			}
		}
	}
	if next != nil {
		next.state = StateRunning
	}
	return next
}
