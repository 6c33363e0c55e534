package timer

import (
	"container/heap"
	"time"
)

// Queue holds delayed actions for the game loop. RunDue is called once per
// tick and runs every action whose deadline has passed, in deadline order.
// Single-goroutine access only (game loop).
type Queue struct {
	now   func() time.Time
	items actionHeap
	seq   uint64
}

type action struct {
	at  time.Time
	seq uint64 // FIFO among equal deadlines
	fn  func()
}

func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// After schedules fn to run on the first RunDue at or after now+d.
func (q *Queue) After(d time.Duration, fn func()) {
	q.seq++
	heap.Push(&q.items, action{at: q.now().Add(d), seq: q.seq, fn: fn})
}

// RunDue runs all actions due at now. Actions scheduled by a running action
// are eligible in the same call when already due. Returns the number run.
func (q *Queue) RunDue(now time.Time) int {
	n := 0
	for len(q.items) > 0 && !q.items[0].at.After(now) {
		a := heap.Pop(&q.items).(action)
		a.fn()
		n++
	}
	return n
}

// Len returns the number of pending actions.
func (q *Queue) Len() int { return len(q.items) }

type actionHeap []action

func (h actionHeap) Len() int { return len(h) }
func (h actionHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *actionHeap) Push(x any)   { *h = append(*h, x.(action)) }
func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = action{}
	*h = old[:n-1]
	return a
}
