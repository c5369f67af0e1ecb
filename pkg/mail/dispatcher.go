/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/metrics"
)

const (
	// DefaultPopTimeout bounds how long an idle worker blocks on the queue
	// before re-checking for work.
	DefaultPopTimeout = 2 * time.Second

	// MaxBackoff caps the retry delay.
	MaxBackoff = 60 * time.Second
)

// Stats is a point-in-time snapshot of dispatcher activity.
type Stats struct {
	QueueSize      int   `json:"queue_size"`
	SentCount      int64 `json:"sent_count"`
	FailedCount    int64 `json:"failed_count"`
	TotalProcessed int64 `json:"total_processed"`
	ActiveWorkers  int   `json:"active_workers"`
}

// Dispatcher owns the task queue and a fixed pool of workers that deliver
// queued mail through a Transport. Failed deliveries are re-enqueued with
// exponential backoff until the retry budget is exhausted.
//
// A Dispatcher is constructed stopped. Start launches the workers; Shutdown
// stops them via poison pills and cancels pending retry timers. Enqueue
// operations are accepted at any time, but tasks only move once workers run.
type Dispatcher struct {
	queue      *Queue
	transport  Transport
	log        *zap.Logger
	cfg        config.Mail
	workers    int
	maxRetries int
	popTimeout time.Duration
	backoff    func(attempt int) time.Duration

	mu      sync.Mutex
	running bool
	done    []chan struct{}
	timers  map[string]*time.Timer
	sent    int64
	failed  int64
}

// NewDispatcher wires a dispatcher to the given transport. Worker count and
// retry budget come from cfg, falling back to the package defaults when
// unset.
func NewDispatcher(cfg config.Mail, transport Transport, log *zap.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = config.DefaultMaxRetries
	}
	return &Dispatcher{
		queue:      NewQueue(),
		transport:  transport,
		log:        log,
		cfg:        cfg,
		workers:    workers,
		maxRetries: maxRetries,
		popTimeout: DefaultPopTimeout,
		backoff:    Backoff,
		timers:     map[string]*time.Timer{},
	}
}

// Backoff returns the delay before the given retry attempt: 2^attempt
// seconds, capped at MaxBackoff.
func Backoff(attempt int) time.Duration {
	if attempt > 5 {
		return MaxBackoff
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// Start launches the worker pool. Calling Start on a running dispatcher is
// a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.done = make([]chan struct{}, d.workers)
	for i := 0; i < d.workers; i++ {
		done := make(chan struct{})
		d.done[i] = done
		go d.worker(i, done)
	}
	d.log.Info("mail dispatcher started", zap.Int("workers", d.workers), zap.Int("maxRetries", d.maxRetries))
}

func (d *Dispatcher) worker(id int, done chan struct{}) {
	defer close(done)
	for {
		task, ok := d.queue.Pop(d.popTimeout)
		if !ok {
			continue
		}
		if task == nil {
			d.log.Debug("mail worker stopping", zap.Int("worker", id))
			return
		}
		d.process(id, task)
	}
}

func (d *Dispatcher) process(id int, task *Task) {
	// a retry timer registered in here is visible before Done lowers the
	// in-flight count, so Drain never sees the task in neither place
	defer d.queue.Done()

	switch task.Payload.(type) {
	case BackupPayload, ErrorPayload, CustomPayload, DirectPayload:
	default:
		// nothing can deliver this, retrying would never help
		d.mu.Lock()
		d.failed++
		d.mu.Unlock()
		metrics.MailFailed.WithLabelValues(string(task.Kind)).Inc()
		d.log.Error("dropping task with unknown payload kind",
			zap.String("task", task.ID),
			zap.String("kind", string(task.Kind)))
		return
	}

	res := d.deliver(task)
	if res.OK {
		d.mu.Lock()
		d.sent++
		d.mu.Unlock()
		metrics.MailSent.WithLabelValues(string(task.Kind)).Inc()
		d.log.Info("mail sent",
			zap.String("task", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Int("worker", id),
			zap.Int("retries", task.Retries))
		return
	}

	if !res.Permanent && task.Retries < d.maxRetries {
		d.scheduleRetry(task, res)
		return
	}

	d.mu.Lock()
	d.failed++
	d.mu.Unlock()
	metrics.MailFailed.WithLabelValues(string(task.Kind)).Inc()
	d.log.Error("mail delivery failed, retry budget exhausted",
		zap.String("task", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("description", task.Describe()),
		zap.Int("retries", task.Retries),
		zap.String("reason", res.Message))
}

// deliver runs the transport, converting a worker panic into a failed
// Result so a broken payload cannot take the worker down.
func (d *Dispatcher) deliver(task *Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{OK: false, Message: fmt.Sprintf("panic during delivery: %v", r)}
		}
	}()
	return d.transport.Send(task)
}

// scheduleRetry re-enqueues the task after an exponential delay. The timer
// is tracked so Shutdown can cancel it; a cancelled retry counts as failed.
func (d *Dispatcher) scheduleRetry(task *Task, res Result) {
	next := task.withRetries(task.Retries + 1)
	delay := d.backoff(next.Retries)

	d.log.Warn("mail delivery failed, scheduling retry",
		zap.String("task", next.ID),
		zap.String("kind", string(next.Kind)),
		zap.Int("attempt", next.Retries),
		zap.Duration("delay", delay),
		zap.String("reason", res.Message))
	metrics.MailRetryScheduled.WithLabelValues(string(next.Kind)).Inc()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers[next.ID] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, next.ID)
		d.mu.Unlock()
		d.queue.Push(next)
	})
}

// Shutdown stops the worker pool. When wait is true it blocks until every
// worker exits or the timeout elapses, whichever comes first. Pending retry
// timers are cancelled and counted as failures. Shutdown is idempotent;
// tasks enqueued afterwards stay queued until the next Start.
func (d *Dispatcher) Shutdown(wait bool, timeout time.Duration) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	done := d.done
	d.done = nil

	cancelled := 0
	for id, timer := range d.timers {
		if timer.Stop() {
			cancelled++
		}
		delete(d.timers, id)
	}
	d.failed += int64(cancelled)
	d.mu.Unlock()

	if cancelled > 0 {
		d.log.Warn("cancelled pending mail retries during shutdown", zap.Int("count", cancelled))
	}

	for range done {
		d.queue.PushSentinel()
	}
	if !wait {
		d.log.Info("mail dispatcher stopping, not waiting for workers")
		return
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	stragglers := 0
	for _, ch := range done {
		select {
		case <-ch:
		case <-deadline.C:
			stragglers = 0
			for _, c := range done {
				select {
				case <-c:
				default:
					stragglers++
				}
			}
			d.log.Warn("mail dispatcher shutdown timed out",
				zap.Duration("timeout", timeout),
				zap.Int("stragglers", stragglers))
			return
		}
	}
	d.log.Info("mail dispatcher stopped", zap.Int("remaining", d.queue.Len()))
}

// Drain blocks until the queue is empty, no delivery is in flight and no
// retry is pending, or until the timeout elapses. A zero timeout means
// wait forever. It reports whether the dispatcher fully drained.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		d.mu.Lock()
		pendingRetries := len(d.timers)
		d.mu.Unlock()
		if pendingRetries == 0 && d.queue.Idle() {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Running reports whether the worker pool is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stats returns a consistent snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	workers := 0
	for _, ch := range d.done {
		select {
		case <-ch:
		default:
			workers++
		}
	}
	return Stats{
		QueueSize:      d.queue.Len(),
		SentCount:      d.sent,
		FailedCount:    d.failed,
		TotalProcessed: d.sent + d.failed,
		ActiveWorkers:  workers,
	}
}

// mergeRecipients combines explicit recipients with the configured default
// list, deduplicated, preserving order.
func mergeRecipients(to, defaults []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, addr := range append(append([]string{}, to...), defaults...) {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// resolve fills in the default recipient list where the payload asks for it
// or names nobody. It never rejects: a payload that still has no recipients
// is pushed as-is and fails permanently at the transport.
func (d *Dispatcher) resolve(p Payload) Payload {
	defaults := d.cfg.DefaultRecipients
	switch v := p.(type) {
	case BackupPayload:
		if v.UseDefaultRecipients || len(v.To) == 0 {
			v.To = mergeRecipients(v.To, defaults)
		}
		return v
	case ErrorPayload:
		if v.UseDefaultRecipients || len(v.To) == 0 {
			v.To = mergeRecipients(v.To, defaults)
		}
		return v
	case CustomPayload:
		if v.UseDefaultRecipients || len(v.To) == 0 {
			v.To = mergeRecipients(v.To, defaults)
		}
		return v
	case DirectPayload:
		if v.UseDefaultRecipients || len(v.To) == 0 {
			v.To = mergeRecipients(v.To, defaults)
		}
		return v
	default:
		return p
	}
}

// enqueue resolves default recipients and pushes the task. Nothing is
// validated here; a broken payload is discovered by the worker, not the
// producer. It is the single admission point for all Enqueue operations.
func (d *Dispatcher) enqueue(p Payload) (bool, string) {
	task := NewTask(d.resolve(p))
	d.queue.Push(task)
	metrics.MailQueued.WithLabelValues(string(task.Kind)).Inc()
	d.log.Info("mail task queued",
		zap.String("task", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("queueSize", d.queue.Len()))
	return true, fmt.Sprintf("%s queued", task.Kind)
}

// EnqueueBackup queues a backup report notification.
func (d *Dispatcher) EnqueueBackup(p BackupPayload) (bool, string) { return d.enqueue(p) }

// EnqueueError queues an error alert notification.
func (d *Dispatcher) EnqueueError(p ErrorPayload) (bool, string) { return d.enqueue(p) }

// EnqueueCustom queues a free-form templated notification.
func (d *Dispatcher) EnqueueCustom(p CustomPayload) (bool, string) { return d.enqueue(p) }

// EnqueueDirect queues a raw email with caller-supplied subject and body.
func (d *Dispatcher) EnqueueDirect(p DirectPayload) (bool, string) { return d.enqueue(p) }
