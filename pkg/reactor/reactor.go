// Package reactor runs the controller's cooperative dispatch loop: a fixed,
// ordered list of tasks polled once per pass on a single goroutine.
//
// A task that returns status.Eagain keeps priority: the rest of the pass is
// skipped and the next pass starts again from the top. Work from other
// goroutines enters through Post and Call and runs between passes, so
// every piece of controller state has exactly one owner.
package reactor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"tinyg-go/pkg/status"
)

// Common errors
var (
	ErrReactorClosed = errors.New("reactor: reactor closed")
	ErrQueueFull     = errors.New("reactor: async queue full")
)

const (
	defaultIdle      = 2 * time.Millisecond
	defaultSpinLimit = 64
	asyncQueueSize   = 256
)

// Task is one entry in the pass order.
type Task interface {
	Name() string
	Run() status.Code
}

// Waiter marks tasks whose Eagain means "waiting on something outside the
// loop" (input bytes, a draining transmit queue, planner capacity). A pass
// blocked by such a task lets the loop park until woken.
type Waiter interface {
	WaitsForInput() bool
}

type funcTask struct {
	name  string
	fn    func() status.Code
	waits bool
}

func (t *funcTask) Name() string        { return t.name }
func (t *funcTask) Run() status.Code    { return t.fn() }
func (t *funcTask) WaitsForInput() bool { return t.waits }

// NewTask wraps fn as a task.
func NewTask(name string, fn func() status.Code) Task {
	return &funcTask{name: name, fn: fn}
}

// NewWaitTask wraps fn as a task whose Eagain parks the loop.
func NewWaitTask(name string, fn func() status.Code) Task {
	return &funcTask{name: name, fn: fn, waits: true}
}

// Noop is a task that never does anything.
func Noop(name string) Task {
	return NewTask(name, func() status.Code { return status.Noop })
}

// Pass describes one completed pass.
type Pass struct {
	// Blocker is the index of the task that returned Eagain, or -1 when
	// every task ran.
	Blocker  int
	Task     string
	Status   status.Code
	Ran      int
	Duration time.Duration
}

// Blocked reports whether a task ended the pass early.
func (p Pass) Blocked() bool { return p.Blocker >= 0 }

// Observer receives every pass, on the loop goroutine.
type Observer interface {
	ObservePass(p Pass)
}

// Completion represents an async operation that will complete with a result.
type Completion struct {
	result interface{}
	done   chan struct{}
	once   sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the completion result and wakes any waiters.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until the completion is done or ctx ends.
func (c *Completion) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithWake sets the channel that unparks an idle loop.
func WithWake(ch <-chan struct{}) Option {
	return func(r *Reactor) { r.wake = ch }
}

// WithIdleInterval bounds how long an idle loop parks.
func WithIdleInterval(d time.Duration) Option {
	return func(r *Reactor) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithSpinLimit sets how many consecutive passes blocked by a non-waiting
// task run back to back before the loop parks for one idle interval.
func WithSpinLimit(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.spinLimit = n
		}
	}
}

// WithObserver installs a per-pass observer.
func WithObserver(o Observer) Option {
	return func(r *Reactor) { r.observer = o }
}

// Reactor owns the task order and the loop goroutine.
type Reactor struct {
	tasks     []Task
	wake      <-chan struct{}
	idle      time.Duration
	spinLimit int
	observer  Observer

	asyncQueue chan func()
	closed     chan struct{}
	closeOnce  sync.Once

	passes    uint64
	startTime time.Time
}

// New creates a Reactor polling tasks in the given order. The order is
// fixed for the reactor's lifetime.
func New(tasks []Task, opts ...Option) *Reactor {
	r := &Reactor{
		tasks:      append([]Task(nil), tasks...),
		idle:       defaultIdle,
		spinLimit:  defaultSpinLimit,
		asyncQueue: make(chan func(), asyncQueueSize),
		closed:     make(chan struct{}),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tasks returns the task order.
func (r *Reactor) Tasks() []Task {
	return append([]Task(nil), r.tasks...)
}

// Monotonic returns seconds since the reactor was created.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// Passes returns the number of passes run so far. Only meaningful on the
// loop goroutine or after Run returns.
func (r *Reactor) Passes() uint64 { return r.passes }

// RunPass polls every task in order until one returns Eagain.
func (r *Reactor) RunPass() Pass {
	start := time.Now()
	p := Pass{Blocker: -1, Status: status.OK}
	for i, t := range r.tasks {
		code := t.Run()
		p.Ran = i + 1
		if code == status.Eagain {
			p.Blocker, p.Task, p.Status = i, t.Name(), code
			break
		}
	}
	p.Duration = time.Since(start)
	r.passes++
	if r.observer != nil {
		r.observer.ObservePass(p)
	}
	return p
}

// Post queues fn to run on the loop goroutine before the next pass.
func (r *Reactor) Post(fn func()) error {
	select {
	case <-r.closed:
		return ErrReactorClosed
	default:
	}
	select {
	case r.asyncQueue <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Call runs fn on the loop goroutine and waits for its result.
func (r *Reactor) Call(ctx context.Context, fn func() interface{}) (interface{}, error) {
	c := newCompletion()
	if err := r.Post(func() { c.Complete(fn()) }); err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

// Run repeats passes until ctx is cancelled. It returns ctx.Err().
func (r *Reactor) Run(ctx context.Context) error {
	defer r.closeOnce.Do(func() { close(r.closed) })

	timer := time.NewTimer(r.idle)
	defer timer.Stop()

	spins := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processAsync()

		p := r.RunPass()
		switch {
		case !p.Blocked():
			spins = 0
			continue
		case r.waits(p.Blocker):
			spins = 0
		default:
			spins++
			if spins < r.spinLimit {
				runtime.Gosched()
				continue
			}
			spins = 0
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.idle)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		case fn := <-r.asyncQueue:
			fn()
		case <-timer.C:
		}
	}
}

func (r *Reactor) waits(i int) bool {
	w, ok := r.tasks[i].(Waiter)
	return ok && w.WaitsForInput()
}

func (r *Reactor) processAsync() {
	for {
		select {
		case fn := <-r.asyncQueue:
			fn()
		default:
			return
		}
	}
}
