package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/service"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrStopped   = errors.New("notification worker stopped")
)

// StartNotificationWorker registers notification handlers on the dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

type delivery struct {
	ctx   context.Context
	event events.Event
}

// NotificationWorker moves broker publishing off the request path. It
// satisfies service.EventPublisher: PublishEvent only enqueues, and a single
// goroutine drains the queue into the wrapped publisher.
type NotificationWorker struct {
	publisher service.EventPublisher
	logger    *zap.Logger
	timeout   time.Duration

	mu      sync.RWMutex
	stopped bool
	queue   chan delivery
	done    chan struct{}
}

// NewNotificationWorker builds a worker with room for queueSize pending events.
func NewNotificationWorker(publisher service.EventPublisher, queueSize int, logger *zap.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		publisher: publisher,
		logger:    logger,
		timeout:   defaultPublishTimeout,
		queue:     make(chan delivery, queueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the draining goroutine.
func (w *NotificationWorker) Start() {
	go w.run()
}

// PublishEvent queues the event without blocking. The request context is
// detached from cancellation so values such as the request id survive.
func (w *NotificationWorker) PublishEvent(ctx context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- delivery{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		w.logger.Warn("notification queue full; dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return ErrQueueFull
	}
}

// Stop rejects new events and waits for queued ones to be published, or for
// ctx to end.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) run() {
	defer close(w.done)
	for d := range w.queue {
		ctx, cancel := context.WithTimeout(d.ctx, w.timeout)
		err := w.publisher.PublishEvent(ctx, d.event)
		cancel()
		if err != nil {
			w.logger.Warn("broker publish failed",
				zap.String("event_id", d.event.ID),
				zap.String("event_type", string(d.event.Type)),
				zap.String("ticket_id", d.event.TicketID),
				zap.Error(err))
		}
	}
}
