package scheduler

import (
	"container/heap"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// queueEntry is a single queued task with its enqueue-time priority.
type queueEntry struct {
	task *domain.Task
	// priority is a hint only; FIFO within equal priority is not guaranteed
	// under concurrent pollers.
	priority int
	// seq breaks priority ties by enqueue order.
	seq uint64
}

// taskHeap is a max-heap over priority (higher integer dequeues first),
// with enqueue order as the tie-break.
type taskHeap []*queueEntry

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queueEntry))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// push adds an entry maintaining heap order. Caller must hold the
// scheduler lock.
func (h *taskHeap) push(e *queueEntry) {
	heap.Push(h, e)
}

// pop removes the highest-priority entry, or nil when empty. Caller must
// hold the scheduler lock.
func (h *taskHeap) pop() *queueEntry {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*queueEntry)
}
