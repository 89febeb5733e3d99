package mapreduce

import (
	"sync"

	"github.com/gammazero/deque"
)

// TaskQueue is a FIFO of pending tasks of one kind. Each pushed task is
// handed to exactly one successful TryPop.
type TaskQueue[T any] struct {
	mu    sync.Mutex
	tasks deque.Deque[T]
	ready chan struct{}
}

func NewTaskQueue[T any]() *TaskQueue[T] {
	return &TaskQueue[T]{ready: make(chan struct{}, 1)}
}

func (q *TaskQueue[T]) Push(task T) {
	q.mu.Lock()
	q.tasks.PushBack(task)
	q.mu.Unlock()
	q.notify()
}

// TryPop never blocks. ok is false when the queue is empty.
func (q *TaskQueue[T]) TryPop() (task T, ok bool) {
	q.mu.Lock()
	if q.tasks.Len() == 0 {
		q.mu.Unlock()
		return task, false
	}
	task = q.tasks.PopFront()
	left := q.tasks.Len()
	q.mu.Unlock()
	// pass the wake-up on to the next waiting consumer.
	if left > 0 {
		q.notify()
	}
	return task, true
}

// Ready fires after a push. Consumers that found the queue empty wait on it
// instead of sleeping.
func (q *TaskQueue[T]) Ready() <-chan struct{} {
	return q.ready
}

func (q *TaskQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

func (q *TaskQueue[T]) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
