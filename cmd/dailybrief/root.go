package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantonganh/dailybrief"
)

const sentryFlushTimeout = 2 * time.Second

type runtimeState struct {
	configPath string
	debug      bool
	writer     io.Writer

	config *dailybrief.Config
	logger zerolog.Logger
	app    *app
}

// execute runs the command line and releases whatever the command opened, even when it failed.
func execute(w io.Writer, args []string) error {
	rt := &runtimeState{
		configPath: os.Getenv("DAILYBRIEF_CONFIG"),
		writer:     w,
	}

	root := newRootCommand(rt)
	root.SetArgs(args)
	root.SetOut(w)
	err := root.Execute()
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCommand(rt *runtimeState) *cobra.Command {
	root := &cobra.Command{
		Use:           "dailybrief",
		Short:         "Daily newsletter backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}

			level := zerolog.InfoLevel
			if rt.debug {
				level = zerolog.DebugLevel
			}
			rt.logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

			config, err := loadConfig(rt.configPath)
			if err != nil {
				return err
			}
			rt.config = config

			if err := sentry.Init(sentry.ClientOptions{
				Dsn: config.Sentry.DSN,
			}); err != nil {
				return errors.Wrap(err, "sentry.Init")
			}

			rt.app = newApp(config, rt.logger)
			return rt.app.Open(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newServeCommand(rt),
		newDispatchCommand(rt),
		newPublishCommand(rt),
		newStatsCommand(rt),
		newSendTestCommand(rt),
	)

	return root
}

func (rt *runtimeState) printJSON(v interface{}) error {
	enc := json.NewEncoder(rt.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (rt *runtimeState) close() error {
	sentry.Flush(sentryFlushTimeout)
	if rt.app == nil {
		return nil
	}
	a := rt.app
	rt.app = nil
	return a.Close()
}
