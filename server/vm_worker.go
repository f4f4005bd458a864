package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/kecaknoah/vm"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("vm worker stopped")

// VMWorker owns the VM holding the declarations of the last document that
// compiled cleanly. LSP handlers run on their own goroutines while a VM is
// single-threaded, so every read or swap of the VM is a job run on the
// worker goroutine.
type VMWorker struct {
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once

	current *vm.VM // touched only by loop
}

type job struct {
	run   func(*vm.VM) any
	reply chan outcome
}

type outcome struct {
	value any
	err   error
}

// NewVMWorker starts a worker serving v.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		jobs:    make(chan job, 64),
		quit:    make(chan struct{}),
		current: v,
	}
	go w.loop()
	return w
}

func (w *VMWorker) loop() {
	for {
		select {
		case j := <-w.jobs:
			j.reply <- w.runJob(j.run)
		case <-w.quit:
			return
		}
	}
}

// runJob runs fn against the current VM. A panicking job fails alone; the
// worker keeps serving.
func (w *VMWorker) runJob(fn func(*vm.VM) any) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("vm job panicked: %v", r)
			out = outcome{err: fmt.Errorf("vm job panicked: %v", r)}
		}
	}()
	return outcome{value: fn(w.current)}
}

// Do runs fn on the worker goroutine and waits for its result.
func (w *VMWorker) Do(fn func(*vm.VM) any) (any, error) {
	j := job{run: fn, reply: make(chan outcome, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case out := <-j.reply:
		return out.value, out.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Replace makes v the VM seen by later jobs. Jobs queued earlier still see
// the previous VM.
func (w *VMWorker) Replace(v *vm.VM) {
	w.Do(func(*vm.VM) any {
		w.current = v
		return nil
	})
}

// Stop ends the worker. It is safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
