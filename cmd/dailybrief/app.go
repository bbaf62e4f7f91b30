package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/bolt"
	"github.com/quantonganh/dailybrief/dispatch"
	"github.com/quantonganh/dailybrief/email"
	"github.com/quantonganh/dailybrief/http"
	"github.com/quantonganh/dailybrief/postgres"
	"github.com/quantonganh/dailybrief/redis"
	"github.com/quantonganh/dailybrief/resend"
	"github.com/quantonganh/dailybrief/smtp"
)

type app struct {
	config *dailybrief.Config
	logger zerolog.Logger

	db     dailybrief.Database
	ledger *redis.Ledger

	subscriptions dailybrief.SubscriptionService
	issues        dailybrief.IssueService
	events        dailybrief.EventService
	mailer        dailybrief.Mailer
	newsletter    dailybrief.NewsletterService
	dispatcher    *dispatch.Dispatcher

	httpServer *http.Server
	cron       *cron.Cron
}

func newApp(config *dailybrief.Config, logger zerolog.Logger) *app {
	return &app{
		config: config,
		logger: logger,
	}
}

// Open connects the stores and builds the services. It does not start the HTTP server.
func (a *app) Open(ctx context.Context) error {
	switch a.config.DB.Type {
	case "postgres":
		db := postgres.NewDB(a.config.DB.URL)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		a.subscriptions = postgres.NewSubscriptionService(db)
		a.issues = postgres.NewIssueService(db)
		a.events = postgres.NewEventService(db)
	default:
		db := bolt.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		a.subscriptions = bolt.NewSubscriptionService(db)
		a.issues = bolt.NewIssueService(db)
		a.events = bolt.NewEventService(db)
	}

	var ledger dailybrief.DispatchLedger
	if a.config.Redis.Addr != "" {
		l, err := redis.Dial(ctx, a.config.Redis.Addr, a.config.Redis.Password, a.config.Redis.DB)
		if err != nil {
			return err
		}
		a.ledger = l
		ledger = l
	}

	a.mailer = a.newMailer()
	site := a.config.Site.URL
	product := a.config.Newsletter.Product.Name
	a.newsletter = email.NewNewsletterService(a.mailer, a.config.Mail.From, product, site)

	a.dispatcher = dispatch.NewDispatcher(
		a.subscriptions,
		a.issues,
		a.mailer,
		email.NewIssueRenderer(product, site),
		ledger,
		dispatch.Options{
			From:           a.config.Mail.From,
			SiteURL:        site,
			Product:        product,
			Secret:         a.config.Newsletter.HMAC.Secret,
			UnsubscribeTTL: a.config.Newsletter.UnsubscribeTTL,
			Interval:       a.config.Newsletter.Dispatch.Interval,
			SendTimeout:    a.config.Mail.Timeout,
		},
		a.logger,
	)

	return nil
}

func (a *app) newMailer() dailybrief.Mailer {
	switch a.config.Mail.Provider {
	case "smtp":
		return smtp.NewMailer(a.config.SMTP.Host, a.config.SMTP.Port, a.config.SMTP.Username, a.config.SMTP.Password, a.config.HTTP.Domain)
	case "log":
		return &email.LogMailer{Logger: a.logger}
	default:
		return resend.NewMailer(a.config.Mail.Resend.APIKey, a.config.Mail.Timeout)
	}
}

// Serve starts the HTTP server and, when a cron spec is configured, the in-process dispatch trigger.
func (a *app) Serve(ctx context.Context) error {
	httpServer, err := http.NewServer(a.config, a.logger)
	if err != nil {
		return err
	}
	httpServer.SubscriptionService = a.subscriptions
	httpServer.NewsletterService = a.newsletter
	httpServer.EventService = a.events
	httpServer.DispatchService = a.dispatcher
	a.httpServer = httpServer

	if err := a.httpServer.Open(); err != nil {
		return err
	}
	a.logger.Info().Str("addr", a.config.HTTP.Addr).Str("url", a.httpServer.URL()).Msg("http server listening")

	if spec := a.config.Newsletter.Cron.Spec; spec != "" {
		a.cron = cron.New(cron.WithLocation(time.UTC))
		if _, err := a.cron.AddFunc(spec, func() {
			a.runScheduledDispatch(context.WithoutCancel(ctx))
		}); err != nil {
			return errors.Wrapf(err, "invalid cron spec %q", spec)
		}
		a.cron.Start()
		a.logger.Info().Str("spec", spec).Msg("dispatch scheduled")
	}

	return nil
}

func (a *app) runScheduledDispatch(ctx context.Context) {
	report, err := a.dispatcher.Dispatch(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("scheduled dispatch failed")
		return
	}
	if report.Failed > 0 {
		a.logger.Error().Int("failed", report.Failed).Interface("errors", report.Errors).Msg("scheduled dispatch had failures")
	}
}

func (a *app) Close() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	return nil
}
