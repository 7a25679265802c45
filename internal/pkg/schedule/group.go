// Package schedule owns the timers of a single flow. A flow creates one
// Group on entry, schedules its one-shot and periodic tasks on it, and
// closes it on every exit path. After Close no callback of the group runs
// again, even if its timer had already been due.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Group is a set of cancellable tasks sharing one clock.
type Group struct {
	clock clockwork.Clock

	mu     sync.Mutex
	closed bool
	nextID int
	tasks  map[int]*Task
}

// Task is a handle to one scheduled callback.
type Task struct {
	group *Group
	id    int
	once  sync.Once
	stop  func()
}

// NewGroup creates a group driven by clock. A nil clock means wall time.
func NewGroup(clock clockwork.Clock) *Group {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Group{
		clock: clock,
		tasks: make(map[int]*Task),
	}
}

// Clock returns the clock the group schedules on.
func (g *Group) Clock() clockwork.Clock {
	return g.clock
}

// AfterFunc runs f once after d. It returns nil when the group is closed.
func (g *Group) AfterFunc(d time.Duration, f func()) *Task {
	task := g.register()
	if task == nil {
		return nil
	}

	timer := g.clock.AfterFunc(d, func() {
		if g.finish(task.id) {
			f()
		}
	})
	task.stop = func() { timer.Stop() }
	return task
}

// Every runs f each period until the task is stopped or the group closes.
// Ticks that arrive while f is still running are dropped.
func (g *Group) Every(period time.Duration, f func()) *Task {
	task := g.register()
	if task == nil {
		return nil
	}

	ticker := g.clock.NewTicker(period)
	done := make(chan struct{})
	task.stop = func() {
		ticker.Stop()
		close(done)
	}

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if !g.active(task.id) {
					return
				}
				f()
			case <-done:
				return
			}
		}
	}()
	return task
}

// Stop cancels the task. It is safe to call more than once and on nil.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.group.finish(t.id)
	t.once.Do(func() {
		if t.stop != nil {
			t.stop()
		}
	})
}

// Close cancels every task. It does not wait for running callbacks.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	tasks := g.tasks
	g.tasks = make(map[int]*Task)
	g.mu.Unlock()

	for _, t := range tasks {
		t.once.Do(func() {
			if t.stop != nil {
				t.stop()
			}
		})
	}
}

// Closed reports whether Close has been called.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Len returns the number of live tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Group) register() *Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.nextID++
	t := &Task{group: g, id: g.nextID}
	g.tasks[t.id] = t
	return t
}

// finish removes a task and reports whether it was still live.
func (g *Group) finish(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tasks[id]; !ok {
		return false
	}
	delete(g.tasks, id)
	return true
}

func (g *Group) active(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tasks[id]
	return ok
}
