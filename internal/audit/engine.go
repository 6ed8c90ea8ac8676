package audit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
	"github.com/hasanmaki/rekaprgu-3duta/internal/telemetry"
)

// CheckFunc performs one status check and returns its outcome.
type CheckFunc func(number string) models.AuditOutcome

// EngineConfig sizes the queue and spaces out outbound checks.
type EngineConfig struct {
	QueueCapacity int
	PerItemDelay  time.Duration
}

// idleWait bounds how long the worker sleeps between checks of the
// pause/stop flags, so control operations are observed within a second.
const idleWait = time.Second

// enqueueWait bounds how long Enqueue blocks waiting for capacity.
const enqueueWait = time.Second

// Engine drains a bounded FIFO of subscriber numbers with a single
// background worker, one outbound check per PerItemDelay. The queue and
// the results sequence survive stop/start cycles; only the worker
// lifecycle resets.
type Engine struct {
	delay time.Duration
	queue chan string

	mu      sync.Mutex
	results []models.AuditOutcome

	processed atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64

	running atomic.Bool
	paused  atomic.Bool

	// ctl serializes Start/Stop so the channel swap and close pair up
	// even when control requests arrive on concurrent HTTP handlers.
	// Kept separate from mu: Stop holds ctl for the join window, and
	// the exiting worker still needs mu to record its last outcome.
	ctl    sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewEngine builds an idle engine. Capacity and delay are clamped to
// their minimums (1 item, 1 second).
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	if cfg.PerItemDelay < time.Second {
		cfg.PerItemDelay = time.Second
	}
	return &Engine{
		delay: cfg.PerItemDelay,
		queue: make(chan string, cfg.QueueCapacity),
	}
}

// Enqueue offers a number to the queue, waiting briefly for capacity.
// It reports false when the queue stays full; the caller decides
// whether to retry.
func (e *Engine) Enqueue(number string) bool {
	timer := time.NewTimer(enqueueWait)
	defer timer.Stop()
	select {
	case e.queue <- number:
		telemetry.QueueDepthGauge.Set(float64(len(e.queue)))
		return true
	case <-timer.C:
		return false
	}
}

// Start spawns the worker. No-op when already running. Items left in
// the queue by a previous stop are picked up again. The new worker
// waits for its predecessor to finish any in-flight check first, so
// the per-item delay holds across restarts.
func (e *Engine) Start(check CheckFunc) {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.paused.Store(false)
	prev := e.done
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.work(check, prev, e.stopCh, e.done)
}

// Pause makes the worker idle-wait before taking its next item. An
// in-flight check completes normally.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume clears the paused flag.
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// Stop signals the worker to exit and waits for a bounded join window.
// Undelivered items stay queued and are reprocessed only by a later
// Start. The join window may expire while a check is still in flight
// (a check can run up to its request timeout); that check completes in
// the background and the next Start's worker waits for it.
func (e *Engine) Stop() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
	}
}

// Running reports whether the worker is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Paused reports whether the worker is idle-waiting on the paused flag.
func (e *Engine) Paused() bool { return e.paused.Load() }

// QueueDepth is the number of items waiting to be checked.
func (e *Engine) QueueDepth() int { return len(e.queue) }

// Counters snapshots the per-bucket totals.
func (e *Engine) Counters() models.AuditCounters {
	return models.AuditCounters{
		Processed: e.processed.Load(),
		Skipped:   e.skipped.Load(),
		Errored:   e.errored.Load(),
	}
}

// Results returns a copy of the append-only outcome sequence, in
// dequeue (== enqueue) order.
func (e *Engine) Results() []models.AuditOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AuditOutcome, len(e.results))
	copy(out, e.results)
	return out
}

// work is the single consumer loop. Per-item failures become outcome
// records; only Stop ends the loop. A predecessor still draining its
// last item must exit before this worker touches the queue.
func (e *Engine) work(check CheckFunc, prev <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-stop:
			return
		}
	}
	for {
		select {
		case <-stop:
			return
		default:
		}

		if e.paused.Load() {
			if !sleepUnlessStopped(stop, idleWait) {
				return
			}
			continue
		}

		var number string
		select {
		case <-stop:
			return
		case number = <-e.queue:
		case <-time.After(idleWait):
			continue
		}

		outcome := e.safeCheck(check, number)
		e.record(outcome)
		telemetry.QueueDepthGauge.Set(float64(len(e.queue)))

		if !sleepUnlessStopped(stop, e.delay) {
			return
		}
	}
}

// safeCheck shields the worker from a panicking check function by
// converting the fault into an error outcome.
func (e *Engine) safeCheck(check CheckFunc, number string) (outcome models.AuditOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.AuditOutcome{
				Number:      number,
				Status:      models.AuditError,
				ErrorDetail: fmt.Sprintf("check panicked: %v", r),
			}
		}
	}()
	return check(number)
}

func (e *Engine) record(outcome models.AuditOutcome) {
	e.mu.Lock()
	e.results = append(e.results, outcome)
	e.mu.Unlock()

	switch outcome.Status {
	case models.AuditSuccess:
		e.processed.Add(1)
		telemetry.AuditProcessed.Inc()
	case models.AuditSkipped:
		e.skipped.Add(1)
		telemetry.AuditSkipped.Inc()
	default:
		e.errored.Add(1)
		telemetry.AuditErrored.Inc()
	}
}

func sleepUnlessStopped(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
