// Package telemetry wires error reporting to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/privacy"
)

// allowedExtras are the only event extras that leave the process.
var allowedExtras = map[string]bool{
	"error_type": true,
	"component":  true,
	"category":   true,
}

// Init configures Sentry from the telemetry settings and registers the
// reporter used by the errors package. When telemetry is disabled any
// previously registered reporter is removed.
func Init(settings *conf.Settings, release string) error {
	log := GetLogger()

	if !settings.Telemetry.Enabled {
		errors.SetTelemetryReporter(nil)
		log.Debug("telemetry disabled")
		return nil
	}

	environment := settings.Telemetry.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		SampleRate:       1.0,
		Debug:            false,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          release,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("telemetry enabled",
		logger.String("environment", environment),
		logger.String("release", release))
	return nil
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	if errors.GetTelemetryReporter() == nil {
		return true
	}
	return sentry.Flush(timeout)
}

func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	return applyPrivacyFilters(event)
}

// applyPrivacyFilters strips host identity and every extra not explicitly
// allowed, and scrubs URLs and home paths from messages.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}

	for key := range event.Extra {
		if !allowedExtras[key] {
			delete(event.Extra, key)
		}
	}

	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	return event
}

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
