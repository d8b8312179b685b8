package routes

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/client"
	cfdirectory "github.com/edgewatch/cloudflare-analytics-exporter/internal/cloudflare"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/config"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/handlers"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/metrics"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/scheduler"
)

// RunExporter wires the exporter together and serves metrics until a
// shutdown signal arrives. The registry is created here and torn down with
// the process; scrape requests read it independently of the poll cadence.
func RunExporter(cfg *config.Config) error {
	if err := logging.InitializeLogger(cfg.LogLevel); err != nil {
		return err
	}

	logging.Info("Starting Cloudflare analytics exporter", map[string]interface{}{
		"listen":           cfg.Listen,
		"metrics_path":     cfg.MetricsPath,
		"cmb_region":       string(cfg.Region),
		"interval_seconds": int(cfg.ScrapeInterval.Seconds()),
		"workers":          cfg.MaxWorkers,
	})

	directory, err := cfdirectory.NewDirectory(cfg)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	aggregator := metrics.NewAggregator(registry)
	apiClient := client.New(cfg.GraphQLEndpoint(), cfg.APIToken, client.DefaultRetryPolicy())
	sched := scheduler.New(cfg, directory, apiClient, aggregator)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		// First cycle runs immediately so scrapes don't wait a full interval.
		sched.RunCycle(ctx)
		sched.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.ErrorHandler())

	r.GET(cfg.MetricsPath, metrics.Handler(registry))
	r.GET("/health", handlers.HealthCheck)

	logging.Info("Beginning to serve metrics", map[string]interface{}{
		"listen": cfg.Listen,
		"path":   cfg.MetricsPath,
	})

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- r.Run(cfg.Listen)
	}()

	select {
	case err := <-srvErr:
		stop()
		<-schedDone
		return err
	case <-ctx.Done():
		logging.Info("Shutdown signal received, draining", nil)
		<-schedDone
		return nil
	}
}
