package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
)

// errStalled is reported when the script awaits something nothing can settle.
var errStalled = errors.New("script is waiting on a promise that can never settle")

// minInterval keeps setInterval(fn, 0) from spinning.
const minInterval = time.Millisecond

// eventLoop serializes every callback into the runtime on the goroutine that
// drives it. Timers and async host calls post jobs from their own goroutines.
type eventLoop struct {
	vm   *goja.Runtime
	jobs chan func() error
	done chan struct{}

	// Touched only from the loop goroutine.
	timers  map[int64]*loopTimer
	nextID  int64
	pending int
}

type loopTimer struct {
	id       int64
	timer    *time.Timer
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
}

func newEventLoop(vm *goja.Runtime) *eventLoop {
	return &eventLoop{
		vm:     vm,
		jobs:   make(chan func() error, 16),
		done:   make(chan struct{}),
		timers: make(map[int64]*loopTimer),
	}
}

func (l *eventLoop) install() error {
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    func(call goja.FunctionCall) goja.Value { return l.schedule(call, false) },
		"setInterval":   func(call goja.FunctionCall) goja.Value { return l.schedule(call, true) },
		"clearTimeout":  l.clear,
		"clearInterval": l.clear,
	} {
		if err := l.vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// post hands a job to the loop. It drops the job once the loop has closed.
func (l *eventLoop) post(job func() error) {
	select {
	case l.jobs <- job:
	case <-l.done:
	}
}

// run processes jobs until settled reports true, ctx ends, or a job fails.
func (l *eventLoop) run(ctx context.Context, settled func() bool) error {
	for !settled() {
		if l.pending == 0 {
			return errStalled
		}
		select {
		case job := <-l.jobs:
			if err := job(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// close stops all timers and releases goroutines blocked in post.
func (l *eventLoop) close() {
	close(l.done)
	for _, t := range l.timers {
		t.timer.Stop()
	}
}

func (l *eventLoop) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("callback must be a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < minInterval {
		delay = minInterval
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	l.nextID++
	t := &loopTimer{id: l.nextID, fn: fn, args: args, interval: delay, repeat: repeat}
	l.timers[t.id] = t
	l.pending++
	t.timer = time.AfterFunc(delay, func() {
		l.post(func() error { return l.fire(t) })
	})
	return l.vm.ToValue(t.id)
}

func (l *eventLoop) fire(t *loopTimer) error {
	if _, active := l.timers[t.id]; !active {
		return nil
	}
	if t.repeat {
		t.timer.Reset(t.interval)
	} else {
		delete(l.timers, t.id)
		l.pending--
	}
	_, err := t.fn(goja.Undefined(), t.args...)
	return err
}

func (l *eventLoop) clear(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := l.timers[id]; ok {
		t.timer.Stop()
		delete(l.timers, id)
		l.pending--
	}
	return goja.Undefined()
}

// async runs work off the loop and settles the returned promise with its outcome.
// work must not touch the runtime.
func (l *eventLoop) async(work func() (any, error)) goja.Value {
	promise, resolve, reject := l.vm.NewPromise()
	l.pending++
	go func() {
		value, err := work()
		l.post(func() error {
			l.pending--
			if err != nil {
				return reject(l.vm.NewGoError(err))
			}
			return resolve(value)
		})
	}()
	return l.vm.ToValue(promise)
}
