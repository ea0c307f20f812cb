package bconn

import (
	"golang.org/x/sync/errgroup"
)

// Scheduler runs dispatch tasks off the connection's read loop. Schedule must not block: it either starts
// the task and returns true, or refuses it and returns false.
type Scheduler interface {
	Schedule(task func()) bool
}

// TaskGroup is a [Scheduler] that runs each task on its own goroutine, with an optional bound on the
// number of tasks in flight.
type TaskGroup struct {
	g errgroup.Group
}

// NewTaskGroup inits a task group. A limit of zero or less means no bound.
func NewTaskGroup(limit int) *TaskGroup {
	tg := &TaskGroup{}
	if limit > 0 {
		tg.g.SetLimit(limit)
	}

	return tg
}

// Schedule implements [Scheduler].
func (tg *TaskGroup) Schedule(task func()) bool {
	return tg.g.TryGo(func() error {
		task()
		return nil
	})
}

// Wait blocks until every scheduled task has returned.
func (tg *TaskGroup) Wait() {
	_ = tg.g.Wait()
}
