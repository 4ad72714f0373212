// Package cli implements the lasttime-auth command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Rajat-Ahuja1997/last-time/internal/config"
	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
)

// Options controls how the root command builds its App.
type Options struct {
	LoadConfig   func() (config.Config, error)
	BuildOptions []BuildOption
	LogOutput    io.Writer
	Out          io.Writer // Command output; stdout when nil
}

type appKey struct{}

// Execute runs the command line with args. Metrics are written and the
// session store closed even when the command fails.
func Execute(ctx context.Context, opts Options, args []string) error {
	var app *App
	root := newRootCommand(opts, &app)
	root.SetArgs(args)
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	err := root.ExecuteContext(ctx)
	if app != nil {
		err = errors.Join(err, app.WriteMetrics(metricsFile(root)), app.Close())
	}
	return err
}

func metricsFile(root *cobra.Command) string {
	path, _ := root.PersistentFlags().GetString("metrics-file")
	return path
}

func newRootCommand(opts Options, built **App) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.New
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	var noBrowser bool

	root := &cobra.Command{
		Use:           "lasttime-auth",
		Short:         "Sign in to Last Time with Google or Apple",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := newLogger(opts.LogOutput, cfg.GetLogLevel())
			opener := browserOpener(logger)
			if noBrowser {
				opener = providers.LogOpener(logger)
			}

			app, err := Build(cfg, opener, logger, opts.BuildOptions...)
			if err != nil {
				return err
			}
			*built = app
			if err := app.Start(cmd.Context()); err != nil {
				// The coordinator publishes the failure; status can still report it
				logger.Warn().Err(err).Msg("Starting from stored session failed")
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
	}

	root.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file when the command ends")
	root.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "print the sign-in URL instead of opening a browser")

	root.AddCommand(newSignInCommand(), newSignOutCommand(), newStatusCommand())
	return root
}

func appFrom(cmd *cobra.Command) *App {
	if cmd.Context() == nil {
		return nil
	}
	app, _ := cmd.Context().Value(appKey{}).(*App)
	return app
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
}

// browserOpener launches the system browser, falling back to logging the URL.
func browserOpener(logger zerolog.Logger) providers.Opener {
	logOpener := providers.LogOpener(logger)
	return func(ctx context.Context, authURL string) error {
		if err := open.Start(authURL); err != nil {
			logger.Warn().Err(err).Msg("Could not open a browser")
			return logOpener(ctx, authURL)
		}
		return nil
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
