// Package mock provides testify mocks of the dailybrief services.
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/quantonganh/dailybrief"
)

type SubscriptionService struct {
	mock.Mock
}

func (m *SubscriptionService) UpsertPending(ctx context.Context, email string, meta dailybrief.SubscriptionMeta) error {
	args := m.Called(ctx, email, meta)
	return args.Error(0)
}

func (m *SubscriptionService) FindByEmail(ctx context.Context, email string) (*dailybrief.Subscriber, error) {
	args := m.Called(ctx, email)
	s, _ := args.Get(0).(*dailybrief.Subscriber)
	return s, args.Error(1)
}

func (m *SubscriptionService) SetActive(ctx context.Context, email string, at time.Time) (bool, error) {
	args := m.Called(ctx, email, at)
	return args.Bool(0), args.Error(1)
}

func (m *SubscriptionService) SetUnsubscribed(ctx context.Context, email string, at time.Time, reason, feedback string) error {
	args := m.Called(ctx, email, at, reason, feedback)
	return args.Error(0)
}

func (m *SubscriptionService) ListActive(ctx context.Context) ([]dailybrief.Subscriber, error) {
	args := m.Called(ctx)
	subscribers, _ := args.Get(0).([]dailybrief.Subscriber)
	return subscribers, args.Error(1)
}

func (m *SubscriptionService) CountAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
