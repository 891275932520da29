package calsync

import "context"

// Task is the handle of a background operation. Its result is captured
// exactly once and can be awaited any number of times.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

func (t *Task[T]) finish(v T, err error) {
	t.value, t.err = v, err
	close(t.done)
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
