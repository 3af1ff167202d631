package kernel

// threadEntry links a thread into at most one threadList.
type threadEntry struct {
	next, prev *Thread
	owner      *threadList
}

// threadList is an intrusive FIFO of threads. Push, Remove and PopFront
// never allocate.
type threadList struct {
	head, tail *Thread
	n          int
}

func (l *threadList) Len() int       { return l.n }
func (l *threadList) Empty() bool    { return l.n == 0 }
func (l *threadList) Front() *Thread { return l.head }

func (l *threadList) Contains(t *Thread) bool { return t.link.owner == l }

func (l *threadList) PushBack(t *Thread) {
	if t.link.owner != nil {
		panic("kernel: thread already linked")
	}
	t.link = threadEntry{prev: l.tail, owner: l}
	if l.tail != nil {
		l.tail.link.next = t
	} else {
		l.head = t
	}
	l.tail = t
	l.n++
}

func (l *threadList) PopFront() *Thread {
	t := l.head
	if t != nil {
		l.Remove(t)
	}
	return t
}

// Remove unlinks t and reports whether it was on the list.
func (l *threadList) Remove(t *Thread) bool {
	if t.link.owner != l {
		return false
	}
	if t.link.prev != nil {
		t.link.prev.link.next = t.link.next
	} else {
		l.head = t.link.next
	}
	if t.link.next != nil {
		t.link.next.link.prev = t.link.prev
	} else {
		l.tail = t.link.prev
	}
	t.link = threadEntry{}
	l.n--
	return true
}

// Each calls fn for every thread in order. fn must not modify the list.
func (l *threadList) Each(fn func(*Thread)) {
	for t := l.head; t != nil; t = t.link.next {
		fn(t)
	}
}
