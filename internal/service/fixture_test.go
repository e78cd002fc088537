package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/payment"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository/memory"
)

const validSignature = "t=1,v1=valid"

type fakeProcessor struct {
	mu        sync.Mutex
	intents   map[string]*payment.Intent
	events    map[string]*payment.Event
	created   []payment.IntentRequest
	createErr error
	next      int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		intents: make(map[string]*payment.Intent),
		events:  make(map[string]*payment.Event),
	}
}

func (f *fakeProcessor) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.next++
	intent := &payment.Intent{
		ID:           fmt.Sprintf("pi_%d", f.next),
		ClientSecret: fmt.Sprintf("pi_%d_secret", f.next),
		Status:       "requires_payment_method",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Metadata:     req.Metadata,
	}
	f.created = append(f.created, req)
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeProcessor) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	cp := *intent
	return &cp, nil
}

func (f *fakeProcessor) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if signature != validSignature {
		return nil, payment.ErrInvalidSignature
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[string(payload)]
	if !ok {
		return nil, payment.ErrMalformedEvent
	}
	return event, nil
}

// succeed marks the intent as paid, as the processor would after the client
// completes checkout.
func (f *fakeProcessor) succeed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = payment.StatusSucceeded
}

// webhook registers a delivery for the intent and returns its payload.
func (f *fakeProcessor) webhook(eventType, intentID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := fmt.Sprintf(`{"id":"evt_%s_%d","type":%q}`, intentID, len(f.events), eventType)
	intent := *f.intents[intentID]
	f.events[payload] = &payment.Event{ID: "evt_" + intentID, Type: eventType, Intent: &intent}
	return []byte(payload)
}

type fixture struct {
	store       *memory.Store
	processor   *fakeProcessor
	locker      persistence.Locker
	metrics     *observability.Metrics
	dispatcher  events.Dispatcher
	published   *[]events.Event
	timeline    *TimelineService
	issues      *IssueService
	assignments *AssignmentService
	users       *UserService
	payments    *PaymentService
}

func paymentConfig() config.PaymentConfig {
	return config.PaymentConfig{
		Currency:            "bdt",
		BoostAmount:         100,
		SubscriptionAmount:  1000,
		VerifyConfirmations: true,
		LockTTLSeconds:      30,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	processor := newFakeProcessor()
	locker := persistence.NewLocalLocker()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var mu sync.Mutex
	published := []events.Event{}
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
		return nil
	}
	dispatcher.SubscribeAll(record)

	timeline := NewTimelineService(store.Issues(), store.Timeline())
	f := &fixture{
		store:      store,
		processor:  processor,
		locker:     locker,
		metrics:    metrics,
		dispatcher: dispatcher,
		published:  &published,
		timeline:   timeline,
		issues: NewIssueService(IssueDependencies{
			IssueRepo:      store.Issues(),
			AssignmentRepo: store.Assignments(),
			Timeline:       timeline,
			Dispatcher:     dispatcher,
			FreeIssueLimit: 3,
			BoostPrice:     100,
		}),
		assignments: NewAssignmentService(AssignmentDependencies{
			IssueRepo:      store.Issues(),
			AssignmentRepo: store.Assignments(),
			UserRepo:       store.Users(),
			Timeline:       timeline,
			Dispatcher:     dispatcher,
		}),
		users: NewUserService(store.Users()),
		payments: NewPaymentService(PaymentDependencies{
			PaymentRepo: store.Payments(),
			IssueRepo:   store.Issues(),
			UserRepo:    store.Users(),
			Timeline:    timeline,
			Processor:   processor,
			Locker:      locker,
			Dispatcher:  dispatcher,
			Metrics:     metrics,
			Config:      paymentConfig(),
		}),
	}
	return f
}

// user registers a profile with the given role and returns it as an Actor.
func (f *fixture) user(t *testing.T, email string, role domain.Role) Actor {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Register(ctx, domain.Identity{Email: email, UID: "uid-" + email}, email)
	require.NoError(t, err)
	if role != domain.RoleCitizen {
		require.NoError(t, f.store.Users().SetRole(ctx, u.Email, role))
	}
	return f.actor(t, email)
}

// actor reloads the stored profile, picking up subscription or role changes.
func (f *fixture) actor(t *testing.T, email string) Actor {
	t.Helper()
	u, err := f.store.Users().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return ActorFromUser(u)
}

func (f *fixture) createIssue(t *testing.T, reporter Actor, title string) *domain.Issue {
	t.Helper()
	issue, err := f.issues.CreateIssue(context.Background(), reporter, IssueCreateInput{
		Title:       title,
		Location:    "Dhanmondi, Dhaka",
		Category:    "road",
		Description: "Large pothole near the junction",
	})
	require.NoError(t, err)
	return issue
}

func (f *fixture) messages(t *testing.T, issueID string) []string {
	t.Helper()
	entries, err := f.timeline.ListForIssue(context.Background(), issueID)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
