package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quantonganh/dailybrief"
)

func newServeCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rt.app.Serve(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			rt.logger.Info().Msg("shutting down")
			return nil
		},
	}
}

func newDispatchCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Send the latest issue to every active subscriber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := rt.app.dispatcher.Dispatch(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.printJSON(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return errors.Errorf("%d of %d sends failed", report.Failed, report.Total)
			}
			return nil
		},
	}
}

func newPublishCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <issue.json>",
		Short: "Store a newsletter issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issue, err := readIssue(args[0])
			if err != nil {
				return err
			}
			if err := rt.app.issues.Save(cmd.Context(), issue); err != nil {
				return err
			}
			rt.logger.Info().Str("publication_date", issue.PublicationDate).Int("news", len(issue.Content.News)).Msg("issue published")
			return rt.printJSON(map[string]interface{}{
				"ok":               true,
				"publication_date": issue.PublicationDate,
				"subject":          issue.Subject(rt.config.Newsletter.Product.Name),
			})
		},
	}
}

func readIssue(path string) (*dailybrief.Issue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open issue")
	}
	defer f.Close()

	var issue dailybrief.Issue
	if err := json.NewDecoder(f).Decode(&issue); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return &issue, nil
}

type statsReport struct {
	Subscribers int    `json:"subscribers"`
	Active      int    `json:"active"`
	LatestIssue string `json:"latest_issue,omitempty"`
}

func newStatsCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print subscriber counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := collectStats(cmd.Context(), rt.app)
			if err != nil {
				return err
			}
			return rt.printJSON(report)
		},
	}
}

func collectStats(ctx context.Context, a *app) (*statsReport, error) {
	total, err := a.subscriptions.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.subscriptions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &statsReport{
		Subscribers: total,
		Active:      len(active),
	}

	issue, err := a.issues.Latest(ctx)
	switch {
	case err == nil:
		report.LatestIssue = issue.PublicationDate
	case dailybrief.ErrorCode(err) != dailybrief.ErrNotFound:
		return nil, err
	}

	return report, nil
}

func newSendTestCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "send-test <email>",
		Short: "Send the latest issue to one address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := rt.app.dispatcher.SendTest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return rt.printJSON(result)
		},
	}
}
