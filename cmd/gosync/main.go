package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pydio/gosync/pkg/config"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/metrics"
	"github.com/pydio/gosync/pkg/scheduler"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gosync",
	Short: "gosync - keep local directories in sync with Pydio workspaces",
	Long: `gosync watches local directories, indexes every change in an embedded
database, and reconciles them with remote Pydio workspaces on a schedule.

Jobs are declared in a single YAML file; each job pairs one directory with
one workspace and runs independently.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"gosync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <jobs.yaml>",
	Short: "Run every configured sync job until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}

		initLogging(cmd, cfg)
		metrics.SetVersion(Version)

		sched := scheduler.New(cfg)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := sched.Start(ctx); err != nil {
			sched.Stop()
			return err
		}

		var metricsSrv *http.Server
		if cfg.MetricsAddr != "" {
			metricsSrv = serveMetrics(cfg.MetricsAddr)
		}

		<-ctx.Done()
		log.Info("Shutting down")

		sched.Stop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	},
}

func initLogging(cmd *cobra.Command, cfg *config.Config) {
	level := cfg.LogLevel
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logJSON, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: logJSON || cfg.LogJSON,
		File:       cfg.LogFile,
	})
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics listener failed")
		}
	}()
	log.Logger.Info().Str("addr", addr).Msg("Serving metrics and health endpoints")
	return srv
}
