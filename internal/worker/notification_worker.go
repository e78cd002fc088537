package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/service"
)

const defaultQueueSize = 256

// NotificationWorker forwards queued domain events to an external publisher
// off the request path.
type NotificationWorker struct {
	publisher events.Publisher
	logger    *zap.Logger
	queue     chan events.Event
	wg        sync.WaitGroup
	once      sync.Once
}

// StartNotificationWorker registers notification handlers and starts forwarding.
// A nil publisher only registers the logging handlers.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, publisher events.Publisher, logger *zap.Logger, queueSize int) *NotificationWorker {
	if notificationService == nil {
		return nil
	}
	if publisher == nil {
		notificationService.RegisterHandlers(nil)
		return nil
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &NotificationWorker{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan events.Event, queueSize),
	}
	notificationService.RegisterHandlers(w)
	w.wg.Add(1)
	go w.run(ctx)
	return w
}

// Enqueue implements service.EventSink without blocking.
func (w *NotificationWorker) Enqueue(event events.Event) (queued bool) {
	defer func() {
		// Enqueue after Stop.
		if recover() != nil {
			queued = false
		}
	}()
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Stop drains pending events and waits for the loop to exit.
func (w *NotificationWorker) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() { close(w.queue) })
	w.wg.Wait()
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for event := range w.queue {
		forwardCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := w.publisher.Forward(forwardCtx, event); err != nil {
			w.logger.Warn("event forward failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}
