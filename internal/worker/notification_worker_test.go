package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/service"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Forward(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func TestWorkerForwardsDispatchedEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &recordingPublisher{}
	notifications := service.NewNotificationService(dispatcher, zap.NewNop())

	w := StartNotificationWorker(context.Background(), notifications, publisher, zap.NewNop(), 8)
	require.NotNil(t, w)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e1", Type: events.EventIssueCreated, IssueID: "i1"}))
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e2", Type: events.EventIssueBoosted, IssueID: "i1"}))
	w.Stop()

	require.Len(t, publisher.events, 2)
	assert.Equal(t, "e1", publisher.events[0].ID)
	assert.Equal(t, events.EventIssueBoosted, publisher.events[1].Type)

	assert.False(t, w.Enqueue(events.Event{ID: "late"}))
}

func TestWorkerWithoutPublisher(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, zap.NewNop())
	assert.Nil(t, StartNotificationWorker(context.Background(), notifications, nil, zap.NewNop(), 0))
	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventIssueCreated}))
}
