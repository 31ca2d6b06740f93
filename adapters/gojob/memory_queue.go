package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is a process-local go-job queue. Messages with the drop dedup
// policy are ignored while another message with the same idempotency key is
// queued or in flight. Delayed nacks become visible again after their delay.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       []*memoryEntry
	inFlight    map[string]struct{}
	deadLetters []*job.ExecutionMessage
	notify      chan struct{}
	now         func() time.Time
}

type memoryEntry struct {
	msg       *job.ExecutionMessage
	visibleAt time.Time
	attempt   int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inFlight: map[string]struct{}{},
		notify:   make(chan struct{}, 1),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" && msg.DedupPolicy == DedupPolicyDrop && q.knownLocked(key) {
		return nil
	}
	q.ready = append(q.ready, &memoryEntry{msg: msg, visibleAt: q.now()})
	q.signal()
	return nil
}

// Dequeue blocks until a message is visible or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	for {
		entry, wait := q.take()
		if entry != nil {
			return &memoryDelivery{queue: q, entry: entry}, nil
		}

		var timer <-chan time.Time
		if wait > 0 {
			t := time.NewTimer(wait)
			timer = t.C
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-q.notify:
				t.Stop()
			case <-timer:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len counts queued messages, including delayed ones.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *MemoryQueue) take() (*memoryEntry, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var wait time.Duration
	for i, entry := range q.ready {
		if !entry.visibleAt.After(now) {
			q.ready = append(q.ready[:i], q.ready[i+1:]...)
			entry.attempt++
			if key := strings.TrimSpace(entry.msg.IdempotencyKey); key != "" {
				q.inFlight[key] = struct{}{}
			}
			return entry, 0
		}
		until := entry.visibleAt.Sub(now)
		if wait == 0 || until < wait {
			wait = until
		}
	}
	return nil, wait
}

func (q *MemoryQueue) settle(entry *memoryEntry, opts *queue.NackOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if key := strings.TrimSpace(entry.msg.IdempotencyKey); key != "" {
		delete(q.inFlight, key)
	}
	if opts == nil {
		return
	}
	switch {
	case opts.Requeue:
		entry.visibleAt = q.now().Add(opts.Delay)
		q.ready = append(q.ready, entry)
		q.signal()
	case opts.DeadLetter:
		q.deadLetters = append(q.deadLetters, entry.msg)
	}
}

func (q *MemoryQueue) knownLocked(key string) bool {
	if _, ok := q.inFlight[key]; ok {
		return true
	}
	for _, entry := range q.ready {
		if strings.TrimSpace(entry.msg.IdempotencyKey) == key {
			return true
		}
	}
	return false
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type memoryDelivery struct {
	queue *MemoryQueue
	entry *memoryEntry
	once  sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	if d == nil || d.entry == nil {
		return nil
	}
	return d.entry.msg
}

// Attempt counts how many times the message was handed out.
func (d *memoryDelivery) Attempt() int {
	if d == nil || d.entry == nil {
		return 0
	}
	return d.entry.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.once.Do(func() {
		d.queue.settle(d.entry, nil)
	})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.once.Do(func() {
		d.queue.settle(d.entry, &opts)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
