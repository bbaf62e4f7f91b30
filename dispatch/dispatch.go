// Package dispatch broadcasts the latest issue to every active subscriber.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/metrics"
	"github.com/quantonganh/dailybrief/pkg/token"
)

const (
	testSubjectPrefix  = "[TEST] "
	defaultLockRefresh = time.Minute
)

// Options holds the per-deployment settings of a Dispatcher.
type Options struct {
	From           string
	SiteURL        string
	Product        string
	Secret         string
	UnsubscribeTTL time.Duration
	// Interval is the minimum spacing between two sends. Zero disables pacing.
	Interval time.Duration
	// SendTimeout bounds a single Mailer call. Zero means no timeout.
	SendTimeout time.Duration
	// LockRefresh is how often a long run extends its ledger lock. Defaults to one minute.
	LockRefresh time.Duration
}

// Dispatcher sends an issue to subscribers one at a time.
type Dispatcher struct {
	subscriptions dailybrief.SubscriptionService
	issues        dailybrief.IssueService
	mailer        dailybrief.Mailer
	renderer      dailybrief.IssueRenderer
	ledger        dailybrief.DispatchLedger
	limiter       *rate.Limiter
	opts          Options
	logger        zerolog.Logger
}

var _ dailybrief.DispatchService = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher. ledger may be nil, in which case a re-run resends to everyone.
func NewDispatcher(ss dailybrief.SubscriptionService, is dailybrief.IssueService, mailer dailybrief.Mailer,
	renderer dailybrief.IssueRenderer, ledger dailybrief.DispatchLedger, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.LockRefresh <= 0 {
		opts.LockRefresh = defaultLockRefresh
	}
	return &Dispatcher{
		subscriptions: ss,
		issues:        is,
		mailer:        mailer,
		renderer:      renderer,
		ledger:        ledger,
		limiter:       rate.NewLimiter(rate.Every(opts.Interval), 1),
		opts:          opts,
		logger:        logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch loads the latest issue and sends it to all active subscribers in creation order.
// A failed send is recorded in the report and never stops the loop.
func (d *Dispatcher) Dispatch(ctx context.Context) (*dailybrief.DispatchReport, error) {
	issue, err := d.issues.Latest(ctx)
	if err != nil {
		if errors.Is(err, dailybrief.ErrNoIssueFound) {
			metrics.DispatchRuns.WithLabelValues(metrics.ResultNoIssue).Inc()
		} else {
			metrics.DispatchRuns.WithLabelValues(metrics.ResultError).Inc()
		}
		return nil, err
	}

	date := issue.PublicationDate
	logger := d.logger.With().Str("publication_date", date).Logger()

	if d.ledger != nil {
		acquired, err := d.ledger.Acquire(ctx, date)
		if err != nil {
			metrics.DispatchRuns.WithLabelValues(metrics.ResultError).Inc()
			return nil, err
		}
		if !acquired {
			metrics.DispatchRuns.WithLabelValues(metrics.ResultLocked).Inc()
			return nil, &dailybrief.Error{
				Code:    dailybrief.ErrConflict,
				Op:      "dispatch.Dispatch",
				Message: fmt.Sprintf("dispatch of %s is already running", date),
			}
		}
		defer func() {
			if err := d.ledger.Release(context.WithoutCancel(ctx), date); err != nil {
				logger.Warn().Err(err).Msg("failed to release dispatch lock")
			}
		}()
	}

	subscribers, err := d.subscriptions.ListActive(ctx)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}

	subject := issue.Subject(d.opts.Product)
	report := &dailybrief.DispatchReport{
		OK:              true,
		PublicationDate: date,
		Total:           len(subscribers),
	}

	logger.Info().Int("total", len(subscribers)).Str("subject", subject).Msg("dispatch started")

	lastRefresh := time.Now()
	for _, s := range subscribers {
		if d.ledger != nil && time.Since(lastRefresh) >= d.opts.LockRefresh {
			held, err := d.ledger.Extend(ctx, date)
			switch {
			case err != nil:
				logger.Warn().Err(err).Msg("failed to extend dispatch lock")
			case !held:
				metrics.DispatchRuns.WithLabelValues(metrics.ResultLocked).Inc()
				logger.Error().Int("sent", report.Sent).Int("failed", report.Failed).Msg("dispatch lock lost, stopping")
				return nil, &dailybrief.Error{
					Code:    dailybrief.ErrConflict,
					Op:      "dispatch.Dispatch",
					Message: fmt.Sprintf("lost the dispatch lock of %s after %d sends", date, report.Sent),
				}
			}
			lastRefresh = time.Now()
		}

		outcome, err := d.deliver(ctx, issue, subject, &s)
		metrics.DispatchSends.WithLabelValues(outcome).Inc()

		switch outcome {
		case metrics.OutcomeSent:
			report.Sent++
		case metrics.OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
			report.Errors = append(report.Errors, dailybrief.DispatchError{Email: s.Email, Error: err.Error()})
			logger.Warn().Err(err).Str("email", s.Email).Msg("send failed")
		}
	}

	metrics.DispatchRuns.WithLabelValues(metrics.ResultCompleted).Inc()
	logger.Info().
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("total", report.Total).
		Msg("dispatch finished")

	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, issue *dailybrief.Issue, subject string, s *dailybrief.Subscriber) (string, error) {
	date := issue.PublicationDate

	if d.ledger != nil {
		delivered, err := d.ledger.Delivered(ctx, date, s.Email)
		if err != nil {
			d.logger.Warn().Err(err).Str("email", s.Email).Msg("ledger lookup failed, sending anyway")
		} else if delivered {
			return metrics.OutcomeSkipped, nil
		}
	}

	msg, err := d.newMessage(issue, subject, s.Email, s.ReferralCode)
	if err != nil {
		return metrics.OutcomeFailed, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return metrics.OutcomeFailed, err
	}

	id, err := d.send(ctx, msg)
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	d.logger.Debug().Str("email", s.Email).Str("id", id).Msg("sent")

	if d.ledger != nil {
		if err := d.ledger.MarkDelivered(context.WithoutCancel(ctx), date, s.Email); err != nil {
			d.logger.Warn().Err(err).Str("email", s.Email).Msg("failed to record delivery")
		}
	}

	return metrics.OutcomeSent, nil
}

// SendTest sends the latest issue to a single address with a marked subject. Subscribers are not read.
func (d *Dispatcher) SendTest(ctx context.Context, to string) (*dailybrief.TestSendResult, error) {
	to = dailybrief.NormalizeEmail(to)
	if !dailybrief.ValidEmail(to) {
		return nil, dailybrief.ErrInvalidEmail
	}

	issue, err := d.issues.Latest(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := d.newMessage(issue, testSubjectPrefix+issue.Subject(d.opts.Product), to, "")
	if err != nil {
		return nil, err
	}

	id, err := d.send(ctx, msg)
	if err != nil {
		return nil, &dailybrief.Error{
			Code:    dailybrief.ErrUnavailable,
			Op:      "dispatch.SendTest",
			Message: "failed to send test email",
			Err:     err,
		}
	}

	return &dailybrief.TestSendResult{
		EmailID:         id,
		PublicationDate: issue.PublicationDate,
		NewsCount:       len(issue.Content.News),
	}, nil
}

func (d *Dispatcher) newMessage(issue *dailybrief.Issue, subject, email, referralCode string) (dailybrief.Message, error) {
	tok, err := token.Make(email, token.PurposeUnsubscribe, d.opts.Secret, d.opts.UnsubscribeTTL)
	if err != nil {
		return dailybrief.Message{}, err
	}
	unsubscribeURL := dailybrief.UnsubscribeURL(d.opts.SiteURL, tok)

	html, err := d.renderer.RenderIssue(issue, unsubscribeURL, dailybrief.ReferralURL(d.opts.SiteURL, referralCode))
	if err != nil {
		return dailybrief.Message{}, fmt.Errorf("failed to render issue: %w", err)
	}

	return dailybrief.Message{
		From:    d.opts.From,
		To:      email,
		Subject: subject,
		HTML:    html,
		Headers: map[string]string{
			dailybrief.EntityRefHeader: issue.PublicationDate,
			"List-Unsubscribe":         "<" + unsubscribeURL + ">",
		},
	}, nil
}

func (d *Dispatcher) send(ctx context.Context, msg dailybrief.Message) (string, error) {
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}

	switch r := d.mailer.Send(ctx, msg).(type) {
	case dailybrief.Sent:
		return r.ID, nil
	case dailybrief.Rejected:
		return "", r
	default:
		return "", fmt.Errorf("unexpected send result %T", r)
	}
}
