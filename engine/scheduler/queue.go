package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// taskHeap implements heap.Interface over *QueueItem. Ordering is strict
// priority, high first; ties break on submission order (FIFO), never on
// wait time. There is no aging: a Low task submitted first stays behind
// every High task submitted after it for as long as High tasks keep
// arriving.
type taskHeap []*QueueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Request.Priority != h[j].Request.Priority {
		return h[i].Request.Priority > h[j].Request.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*QueueItem))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe strict-priority queue of QueueItems.
type Queue struct {
	mu   sync.Mutex
	h    taskHeap
	next int64
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{h: make(taskHeap, 0)}
}

// Push enqueues item, stamping it with the next admission sequence number.
func (q *Queue) Push(item *QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item.seq = q.next
	q.next++
	heap.Push(&q.h, item)
}

// Pop removes and returns the highest-priority item, or nil if empty.
func (q *Queue) Pop() *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*QueueItem)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// PushDelayed enqueues item after delay, non-blocking. The scheduler does
// not call it: a failed dispatch is persisted as Failed, not requeued.
func (q *Queue) PushDelayed(item *QueueItem, delay time.Duration) {
	time.AfterFunc(delay, func() { q.Push(item) })
}
