package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the delivery buffer has no room
var ErrQueueFull = errors.New("notification queue full")

// ErrQueueClosed is returned after Stop
var ErrQueueClosed = errors.New("notification queue closed")

const deliveryTimeout = 30 * time.Second

type delivery struct {
	ctx         context.Context
	eventType   EventType
	recipientID int64
	payload     Payload
}

// Queue decouples callers from delivery. Send enqueues and returns; a single
// consumer goroutine hands each event to the wrapped Dispatcher.
type Queue struct {
	next   Dispatcher
	logger *logrus.Logger
	// wait bounds how long Send blocks on a full buffer
	wait time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan delivery
	done   chan struct{}
}

// NewQueue creates a Queue with the given buffer size
func NewQueue(next Dispatcher, size int, logger *logrus.Logger) *Queue {
	if size < 1 {
		size = 256
	}
	return &Queue{
		next:   next,
		logger: logger,
		jobs:   make(chan delivery, size),
		done:   make(chan struct{}),
	}
}

// SetEnqueueTimeout makes Send wait up to d for room in a full buffer. Zero
// means Send never blocks.
func (q *Queue) SetEnqueueTimeout(d time.Duration) {
	q.wait = d
}

// Send enqueues an event. When the buffer stays full for the enqueue timeout
// the event is refused with ErrQueueFull and the caller decides what to do.
func (q *Queue) Send(ctx context.Context, eventType EventType, recipientID int64, payload Payload) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	d := delivery{ctx: context.WithoutCancel(ctx), eventType: eventType, recipientID: recipientID, payload: payload}
	select {
	case q.jobs <- d:
		return nil
	default:
	}
	if q.wait <= 0 {
		return ErrQueueFull
	}

	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case q.jobs <- d:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins the consumer goroutine. It runs until Stop is called or ctx is
// cancelled, draining buffered events before it exits.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case d, ok := <-q.jobs:
				if !ok {
					return
				}
				q.deliver(d)
			case <-ctx.Done():
				for {
					select {
					case d, ok := <-q.jobs:
						if !ok {
							return
						}
						q.deliver(d)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop closes the queue and waits for buffered events to be delivered
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, deliveryTimeout)
	defer cancel()

	if err := q.next.Send(ctx, d.eventType, d.recipientID, d.payload); err != nil {
		q.logger.WithError(err).WithFields(logrus.Fields{
			"event":     d.eventType,
			"recipient": d.recipientID,
		}).Warn("notification delivery failed")
	}
}
