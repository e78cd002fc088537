package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/events"
)

// EventSink accepts events for asynchronous delivery.
type EventSink interface {
	Enqueue(event events.Event) bool
}

// NotificationService logs domain events and hands them to an outbound sink.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     orNop(logger),
	}
}

// RegisterHandlers subscribes to every domain event. sink may be nil, in
// which case events are only logged.
func (n *NotificationService) RegisterHandlers(sink EventSink) {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.SubscribeAll(n.handler(sink))
}

func (n *NotificationService) handler(sink EventSink) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		n.logger.Info(string(event.Type),
			zap.String("event_id", event.ID),
			zap.String("issue_id", event.IssueID),
			zap.String("actor", event.Actor.Email),
			zap.Any("payload", event.Payload))
		if sink == nil {
			return nil
		}
		if !sink.Enqueue(event) {
			n.logger.Warn("event queue full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}
