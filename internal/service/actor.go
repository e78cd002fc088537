package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
)

// Actor is the authenticated, registered caller of a service operation.
type Actor struct {
	Email      string
	Role       domain.Role
	Subscribed bool
}

// ActorFromUser builds an Actor from a stored profile.
func ActorFromUser(user *domain.User) Actor {
	if user == nil {
		return Actor{}
	}
	return Actor{Email: user.Email, Role: user.Role, Subscribed: user.IsSubscribed}
}

func (a Actor) eventActor() events.Actor {
	return events.Actor{Email: a.Email, Role: a.Role}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// eventPublisher publishes best-effort domain events.
type eventPublisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func (p eventPublisher) publishEvent(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID),
			zap.Error(err))
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
