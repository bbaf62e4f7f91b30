package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/quantonganh/dailybrief"
)

type Mailer struct {
	mock.Mock
}

func (m *Mailer) Send(ctx context.Context, msg dailybrief.Message) dailybrief.SendResult {
	args := m.Called(ctx, msg)
	return args.Get(0).(dailybrief.SendResult)
}

type EventService struct {
	mock.Mock
}

func (m *EventService) Record(ctx context.Context, e *dailybrief.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type DispatchLedger struct {
	mock.Mock
}

func (m *DispatchLedger) Acquire(ctx context.Context, publicationDate string) (bool, error) {
	args := m.Called(ctx, publicationDate)
	return args.Bool(0), args.Error(1)
}

func (m *DispatchLedger) Extend(ctx context.Context, publicationDate string) (bool, error) {
	args := m.Called(ctx, publicationDate)
	return args.Bool(0), args.Error(1)
}

func (m *DispatchLedger) Release(ctx context.Context, publicationDate string) error {
	args := m.Called(ctx, publicationDate)
	return args.Error(0)
}

func (m *DispatchLedger) Delivered(ctx context.Context, publicationDate, email string) (bool, error) {
	args := m.Called(ctx, publicationDate, email)
	return args.Bool(0), args.Error(1)
}

func (m *DispatchLedger) MarkDelivered(ctx context.Context, publicationDate, email string) error {
	args := m.Called(ctx, publicationDate, email)
	return args.Error(0)
}
