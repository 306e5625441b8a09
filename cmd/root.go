// Package cmd defines the CLI commands for the pagestash executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/app"
	"github.com/pagestash/pagestash/internal/config"
	"github.com/pagestash/pagestash/internal/pipeline"
	"github.com/pagestash/pagestash/internal/progress/sinks"
	"github.com/pagestash/pagestash/internal/runner"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands depend on. It is an interface so tests
// can inject a fake container.
type App interface {
	Logger() *zap.Logger
	Store() pipeline.PageStore
	Snapshots() *sinks.SnapshotSink
	Config() config.Config
	Runner() (*runner.Runner, error)
	Close(ctx context.Context)
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. Services are built in
// PersistentPreRunE so every subcommand finds an initialized App in its
// context, and torn down again in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagestash",
		Short: "Crawl web pages, extract structured records, and store them.",
		Long: `pagestash fetches web pages, runs LLM-backed extraction against a
configured record schema, reconciles the raw results into validated records,
and upserts them into a relational store keyed by source URL.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches . and $HOME/.pagestash)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newQueryCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
