package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventIssueCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.IssueID)
		return errors.New("boom")
	})
	d.Subscribe(EventIssueCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.IssueID)
		return nil
	})
	d.Subscribe(EventIssueBoosted, func(context.Context, Event) error {
		calls = append(calls, "boosted")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventIssueCreated, IssueID: "i1"})
	require.Error(t, err)
	assert.Equal(t, []string{"first:i1", "second:i1"}, calls)
}

func TestDispatcherStampsEvents(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got Event
	d.Subscribe(EventIssueUpvoted, func(_ context.Context, e Event) error {
		got = e
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventIssueUpvoted, IssueID: "i1"}))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())

	require.NoError(t, d.Publish(context.Background(), Event{ID: "fixed", Type: EventIssueUpvoted}))
	assert.Equal(t, "fixed", got.ID)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	ran := false
	d.Subscribe(EventIssueAssigned, func(context.Context, Event) error {
		panic("nil map")
	})
	d.Subscribe(EventIssueAssigned, func(context.Context, Event) error {
		ran = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventIssueAssigned})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue_assigned handler 0")
	assert.True(t, ran)
}

func TestDispatcherSubscribeAll(t *testing.T) {
	d := NewInMemoryDispatcher()
	seen := map[EventType]int{}
	d.SubscribeAll(func(_ context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})
	for _, et := range AllEventTypes {
		require.NoError(t, d.Publish(context.Background(), Event{Type: et}))
	}
	assert.Len(t, seen, len(AllEventTypes))
}

func TestDispatcherNoHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventUserSubscribed}))
}

func TestStreamPublisherWithoutClient(t *testing.T) {
	p := NewRedisStreamPublisher(nil, "issue-events")
	assert.Error(t, p.Forward(context.Background(), Event{Type: EventIssueCreated}))
}
