package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hostbridge/plugin-runtime/errors"
)

// Identifier names the handler a work item targets. Either Tag or MsgID is
// meaningful depending on Binary.
type Identifier struct {
	Tag    string
	MsgID  uint32
	Binary bool
}

// String renders the identifier for logs.
func (id Identifier) String() string {
	if id.Binary {
		return fmt.Sprintf("msg:%d", id.MsgID)
	}
	return "tag:" + id.Tag
}

// Result is the outcome of a single dispatched invocation. Exactly one of
// Data and Err is meaningful.
type Result struct {
	Data []byte
	Err  *errors.Error
}

// Executor performs the actual handler invocation for a work item.
type Executor func(ctx context.Context, id Identifier, payload []byte) ([]byte, *errors.Error)

type workItem struct {
	ctx     context.Context
	id      Identifier
	payload []byte
	done    chan Result
	once    sync.Once
}

// complete delivers the result exactly once. Late completions are dropped.
func (w *workItem) complete(res Result) {
	w.once.Do(func() {
		w.done <- res
	})
}

// Dispatcher owns the queue and the worker pool.
type Dispatcher struct {
	exec    Executor
	log     *zap.Logger
	queue   chan *workItem
	workers int

	// admitMu orders Submit against queue close: submitters hold it shared
	// while sending, Shutdown holds it exclusively while flipping accepting
	// and closing the queue.
	admitMu      sync.RWMutex
	accepting    bool
	cancelQueued atomic.Bool
	rejected     atomic.Uint64
	// cancelled counts only items force-completed because the shutdown
	// drain timed out; caller-context cancellations are not drain failures.
	cancelled atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a dispatcher with the given pool size and queue depth. Start
// must be called before Submit.
func New(workers, depth int, exec Executor, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		exec:    exec,
		log:     log,
		queue:   make(chan *workItem, depth),
		workers: workers,
	}
}

// Start launches the worker pool and opens admission.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.admitMu.Lock()
	d.accepting = true
	d.admitMu.Unlock()
	d.log.Debug("dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_depth", cap(d.queue)))
}

// Submit enqueues a work item and returns the channel its result will
// arrive on. The channel is buffered; the caller may abandon it.
//
// A full queue rejects immediately; callers are expected to retry.
func (d *Dispatcher) Submit(ctx context.Context, id Identifier, payload []byte) (<-chan Result, *errors.Error) {
	d.admitMu.RLock()
	if !d.accepting {
		d.admitMu.RUnlock()
		return nil, errors.InvalidState("submit", "not accepting")
	}
	item := &workItem{
		ctx:     ctx,
		id:      id,
		payload: payload,
		done:    make(chan Result, 1),
	}
	select {
	case d.queue <- item:
		d.admitMu.RUnlock()
		return item.done, nil
	default:
		d.admitMu.RUnlock()
		// Log after the lock is released; the log callback may reenter.
		d.rejected.Add(1)
		d.log.Debug("request rejected, queue full", zap.Stringer("id", id))
		return nil, errors.QueueFull()
	}
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for item := range d.queue {
		if d.cancelQueued.Load() {
			d.cancelled.Add(1)
			item.complete(Result{Err: errors.Cancelled()})
			continue
		}
		if err := item.ctx.Err(); err != nil {
			// The caller abandoned the item; this is not a drain failure
			// and must not make a later shutdown report a timeout.
			item.complete(Result{Err: errors.Cancelled()})
			continue
		}
		data, herr := d.exec(item.ctx, item.id, item.payload)
		if herr != nil {
			d.log.Debug("handler failed",
				zap.Int("worker", n),
				zap.Stringer("id", item.id),
				zap.Uint32("code", uint32(herr.Code)))
			item.complete(Result{Err: herr})
			continue
		}
		item.complete(Result{Data: data})
	}
}

// Shutdown stops admission and drains the queue. Handlers already running
// finish regardless of the timeout; items still queued when the timeout
// expires complete with a cancelled error. Returns a shutdown-timeout error
// when any queued item was cancelled.
func (d *Dispatcher) Shutdown(timeout time.Duration) *errors.Error {
	d.admitMu.Lock()
	d.accepting = false
	d.closeOnce.Do(func() { close(d.queue) })
	d.admitMu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		d.cancelQueued.Store(true)
		d.log.Warn("drain deadline passed, cancelling queued work",
			zap.Duration("timeout", timeout))
		// Force-complete everything still queued right now, racing the
		// workers for the remaining items. Workers stuck inside long
		// handlers must not keep queued callers waiting.
		for item := range d.queue {
			d.cancelled.Add(1)
			item.complete(Result{Err: errors.Cancelled()})
		}
		<-drained
	}

	n := d.cancelled.Load()
	d.log.Info("dispatcher stopped",
		zap.Uint64("rejected", d.rejected.Load()),
		zap.Uint64("cancelled", n))
	if n > 0 {
		return errors.ShutdownTimeout(timeout)
	}
	return nil
}

// RejectedCount reports how many submissions were turned away since start.
func (d *Dispatcher) RejectedCount() uint64 {
	return d.rejected.Load()
}
