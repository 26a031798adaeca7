// Package queue provides a thread-safe generic priority queue. The sync
// engine uses it to order transfer work (lower priority value runs first).
package queue

import (
	"container/heap"
	"sync"
)

// Item is a single item in the priority queue
type Item[T any] struct {
	Value    T
	Priority int
	index    int
}

type priorityQueueHeap[T any] []*Item[T]

func (pqh priorityQueueHeap[T]) Len() int {
	return len(pqh)
}

// Lower priority values dequeue first.
func (pqh priorityQueueHeap[T]) Less(i, j int) bool {
	return pqh[i].Priority < pqh[j].Priority
}

func (pqh priorityQueueHeap[T]) Swap(i, j int) {
	pqh[i], pqh[j] = pqh[j], pqh[i]
	pqh[i].index = i
	pqh[j].index = j
}

func (pqh *priorityQueueHeap[T]) Push(x any) {
	n := len(*pqh)
	item := x.(*Item[T])
	item.index = n
	*pqh = append(*pqh, item)
}

func (pqh *priorityQueueHeap[T]) Pop() any {
	old := *pqh
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pqh = old[0 : n-1]
	return item
}

// PriorityQueue implements a thread-safe generic priority queue
type PriorityQueue[T any] struct {
	heap priorityQueueHeap[T]
	mu   sync.Mutex
}

// NewPriorityQueue creates a new priority queue
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		heap: make(priorityQueueHeap[T], 0),
	}
	heap.Init(&pq.heap)
	return pq
}

// Len returns the number of queued items
func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

// Enqueue adds a value with the given priority
func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	item := &Item[T]{
		Value:    value,
		Priority: priority,
	}
	heap.Push(&pq.heap, item)
}

// Dequeue removes and returns the highest priority item
func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}

	item := heap.Pop(&pq.heap).(*Item[T])
	return item.Value, true
}

// DequeueAll drains the queue in priority order
func (pq *PriorityQueue[T]) DequeueAll() []T {
	items := make([]T, 0, pq.Len())
	for pq.Len() > 0 {
		item, _ := pq.Dequeue()
		items = append(items, item)
	}
	return items
}
