// Package memory provides the in-memory work queue shared by capture workers.
package memory

import (
	"github.com/JakeFAU/cardshot/internal/item"
)

// Queue hands out a fixed set of items exactly once. It is filled at
// construction and closed immediately, so Pop never blocks.
type Queue struct {
	ch chan item.ID
}

// NewQueue builds a drained-on-read queue over ids in the given order.
func NewQueue(ids []item.ID) *Queue {
	ch := make(chan item.ID, len(ids))
	for _, id := range ids {
		ch <- id
	}
	close(ch)
	return &Queue{ch: ch}
}

// Pop removes the next item. ok is false once the queue is empty.
func (q *Queue) Pop() (item.ID, bool) {
	id, ok := <-q.ch
	return id, ok
}

// Len reports how many items are still queued.
func (q *Queue) Len() int {
	return len(q.ch)
}
