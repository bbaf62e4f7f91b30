package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/quantonganh/dailybrief"
)

type NewsletterService struct {
	mock.Mock
}

func (m *NewsletterService) SendConfirmationEmail(ctx context.Context, to, confirmURL, unsubscribeURL string) error {
	args := m.Called(ctx, to, confirmURL, unsubscribeURL)
	return args.Error(0)
}

func (m *NewsletterService) SendWelcomeEmail(ctx context.Context, to, unsubscribeURL, referralURL string) error {
	args := m.Called(ctx, to, unsubscribeURL, referralURL)
	return args.Error(0)
}

type IssueService struct {
	mock.Mock
}

func (m *IssueService) Latest(ctx context.Context) (*dailybrief.Issue, error) {
	args := m.Called(ctx)
	issue, _ := args.Get(0).(*dailybrief.Issue)
	return issue, args.Error(1)
}

func (m *IssueService) Save(ctx context.Context, issue *dailybrief.Issue) error {
	args := m.Called(ctx, issue)
	return args.Error(0)
}

type IssueRenderer struct {
	mock.Mock
}

func (m *IssueRenderer) RenderIssue(issue *dailybrief.Issue, unsubscribeURL, referralURL string) (string, error) {
	args := m.Called(issue, unsubscribeURL, referralURL)
	return args.String(0), args.Error(1)
}

type DispatchService struct {
	mock.Mock
}

func (m *DispatchService) Dispatch(ctx context.Context) (*dailybrief.DispatchReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*dailybrief.DispatchReport)
	return report, args.Error(1)
}

func (m *DispatchService) SendTest(ctx context.Context, to string) (*dailybrief.TestSendResult, error) {
	args := m.Called(ctx, to)
	result, _ := args.Get(0).(*dailybrief.TestSendResult)
	return result, args.Error(1)
}
