package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/api"
	"github.com/pagestash/pagestash/internal/pipeline"
)

// newCrawlCmd creates the 'crawl' subcommand. URLs may be passed as arguments;
// without arguments the configured URL list is crawled.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl a batch of URLs and store the extracted records",
		Long: `Fetches each URL, extracts structured records against the configured
schema, and upserts accepted records into the page store. Rejected records are
reported with their reasons; a failed page never aborts the rest of the batch.`,

		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	urls := args
	if len(urls) == 0 {
		urls = cfg.Crawler.URLs
	}
	if len(urls) == 0 {
		return errors.New("no URLs given, pass them as arguments or set crawler.urls")
	}

	if cfg.Monitor.Enabled {
		stop, serveErr := startMonitor(appInstance)
		if serveErr != nil {
			return serveErr
		}
		defer stop()
	}

	run, err := appInstance.Runner()
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}

	report, err := run.Run(cmd.Context(), urls)
	if err != nil && !errors.Is(err, context.Canceled) {
		if len(report.Accepted) == 0 && len(report.Rejected) == 0 {
			return fmt.Errorf("crawl run: %w", err)
		}
		// Partial persistence failures still produce a usable report.
		logger.Warn("crawl run finished with errors", zap.Error(err))
	}

	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report pipeline.Report) {
	cmd.Printf("crawl finished: %d accepted, %d rejected of %d records\n",
		report.Counts.Accepted, report.Counts.Rejected, report.Counts.Total)
	for _, rec := range report.Accepted {
		cmd.Printf("  accepted %s\n", rec.NaturalKey)
	}
	for _, rej := range report.Rejected {
		cmd.Printf("  rejected %s: %s\n", rej.URL, rej.Reason)
	}
}

// startMonitor serves health, metrics, and run progress over HTTP for the
// duration of the crawl.
func startMonitor(appInstance App) (func(), error) {
	logger := appInstance.Logger()
	addr := net.JoinHostPort("", strconv.Itoa(appInstance.Config().Monitor.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(appInstance.Store(), appInstance.Snapshots(), logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor listen: %w", err)
	}
	logger.Info("monitor server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("monitor server failed", zap.Error(serveErr))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutErr := srv.Shutdown(ctx); shutErr != nil {
			logger.Warn("monitor shutdown failed", zap.Error(shutErr))
		}
	}, nil
}
