// Package realtime runs the continuous classification pipeline.
package realtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/livesound/internal/analysis"
	"github.com/tphakala/livesound/internal/api"
	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/monitor"
	"github.com/tphakala/livesound/internal/mqtt"
	"github.com/tphakala/livesound/internal/observability"
	"github.com/tphakala/livesound/internal/results"
	"github.com/tphakala/livesound/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Command creates the realtime command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Analyze audio in realtime mode",
		Long:  "Capture audio continuously and publish classification results until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags declares realtime flags and the configuration keys they
// override. The root command binds them before loading settings.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("source", "", "Audio capture device or path to a WAV file")
	flags.String("model", "", "Model to load")
	flags.Float64("overlap", 0, "Overlap between consecutive windows, 0.0 to 1.0")
	flags.Float64("threshold", 0, "Minimum score for a reported category")
	flags.Int("results", 0, "Number of categories per result")
	flags.Int("threads", 0, "Inference threads, 0 picks from CPU topology")
	flags.String("listen", "", "HTTP API listen address")
	flags.Bool("mqtt", false, "Publish results to the configured MQTT broker")

	return conf.AnnotateFlags(flags, map[string]string{
		"source":    "audio.source",
		"model":     "classifier.model",
		"overlap":   "analysis.overlap",
		"threshold": "analysis.threshold",
		"results":   "analysis.resultcount",
		"threads":   "classifier.threads",
		"listen":    "webserver.listen",
		"mqtt":      "mqtt.enabled",
	})
}

// Run starts the pipeline with the HTTP API, MQTT publisher and system
// monitor enabled by settings, and blocks until ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("realtime")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	broadcaster := results.NewBroadcaster(settings.Analysis.ResultBuffer, m.Pipeline)
	defer broadcaster.Close()

	loader := classifier.NewTFLiteLoader(classifier.NewModels(settings.Classifier.Models))
	ctrl := analysis.NewController(settings, loader, analysis.DefaultDevices, broadcaster, m.Pipeline)
	defer ctrl.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	serverOpts := []api.ServerOption{api.WithMetricsHandler(m.Handler())}
	if settings.Monitor.Enabled {
		mon := monitor.NewSystemMonitor(settings, m.System)
		g.Go(func() error { return mon.Run(gctx) })
		serverOpts = append(serverOpts, api.WithSystemStatus(mon))
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		client := mqtt.NewClient(cfg, m.MQTT)
		if err := client.Connect(gctx); err != nil {
			// keep publishing, failures are counted until the broker shows up
			log.Warn("initial MQTT connection failed", logger.Error(err))
		}
		publisher := mqtt.NewPublisher(client, cfg, m.MQTT)
		g.Go(func() error { return publisher.Run(gctx, broadcaster) })
	}

	var server *api.Server
	if settings.WebServer.Enabled {
		server, err = api.New(settings, ctrl, serverOpts...)
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return err
		}
		defer shutdownServer(server, log)
	}

	if err := ctrl.Start(); err != nil {
		if server == nil {
			return err
		}
		// the API can still fix the configuration and restart
		log.Error("pipeline failed to start", logger.Error(err))
	}

	<-ctx.Done()
	log.Info("shutting down")

	ctrl.Stop()
	cancel()
	err = g.Wait()
	telemetry.Flush(2 * time.Second)
	return err
}

func shutdownServer(server *api.Server, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown failed", logger.Error(err))
	}
}
