package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/livesound/internal/logger"
)

// Default values shared by Defaults and the viper defaults.
const (
	DefaultSampleRate        = 16000
	DefaultCapturePollPeriod = 20 * time.Millisecond
	DefaultWarmupRuns        = 3
	DefaultPointsInAverage   = 1
	DefaultOverlap           = 0.5
	DefaultThreshold         = 0.3
	DefaultResultCount       = 2
	DefaultResultBuffer      = 32
	DefaultModel             = "yamnet"
	DefaultMQTTTopic         = "livesound/results"
	DefaultListen            = ":8080"
)

// Defaults returns a fresh default Settings value. Callers own the result.
func Defaults() Settings {
	return Settings{
		Audio: AudioSettings{
			Source:            "default",
			SampleRate:        DefaultSampleRate,
			CapturePollPeriod: DefaultCapturePollPeriod,
			RealtimeFile:      true,
		},
		Classifier: ClassifierSettings{
			Model: DefaultModel,
			Models: map[string]ModelSettings{
				"yamnet": {Path: "models/yamnet.tflite", Labels: "models/yamnet_labels.csv"},
				"speech": {Path: "models/speech_commands.tflite", Labels: "models/speech_commands_labels.txt"},
			},
			Backend:    BackendCPU,
			WarmupRuns: DefaultWarmupRuns,
		},
		Analysis: AnalysisSettings{
			PointsInAverage: DefaultPointsInAverage,
			Overlap:         DefaultOverlap,
			Threshold:       DefaultThreshold,
			ResultCount:     DefaultResultCount,
			ResultBuffer:    DefaultResultBuffer,
		},
		WebServer: WebServerSettings{
			Enabled:           true,
			Listen:            DefaultListen,
			RateLimit:         5,
			RateBurst:         10,
			HeartbeatInterval: 15 * time.Second,
		},
		MQTT: MQTTSettings{
			Broker:   "tcp://localhost:1883",
			Topic:    DefaultMQTTTopic,
			ClientID: appName,
		},
		Telemetry: TelemetrySettings{
			Environment: "production",
		},
		Monitor: MonitorSettings{
			Enabled:    true,
			Interval:   30 * time.Second,
			CPUWarning: 90,
		},
		Logging: logger.LoggingConfig{
			DefaultLevel: string(logger.LogLevelInfo),
			Timezone:     "Local",
			Console:      &logger.ConsoleOutput{Enabled: true, Level: string(logger.LogLevelInfo)},
			FileOutput:   &logger.FileOutput{Enabled: false, Path: "logs/livesound.log", Level: string(logger.LogLevelInfo)},
		},
	}
}

// setDefaultConfig registers every default with viper so env overrides and
// partial config files resolve against complete values.
func setDefaultConfig(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("debug", d.Debug)

	v.SetDefault("audio.source", d.Audio.Source)
	v.SetDefault("audio.samplerate", d.Audio.SampleRate)
	v.SetDefault("audio.capturepollperiod", d.Audio.CapturePollPeriod)
	v.SetDefault("audio.blockframes", d.Audio.BlockFrames)
	v.SetDefault("audio.realtimefile", d.Audio.RealtimeFile)

	v.SetDefault("classifier.model", d.Classifier.Model)
	models := make(map[string]any, len(d.Classifier.Models))
	for name, m := range d.Classifier.Models {
		models[name] = map[string]any{"path": m.Path, "labels": m.Labels}
	}
	v.SetDefault("classifier.models", models)
	v.SetDefault("classifier.backend", string(d.Classifier.Backend))
	v.SetDefault("classifier.threads", d.Classifier.Threads)
	v.SetDefault("classifier.warmupruns", d.Classifier.WarmupRuns)

	v.SetDefault("analysis.pointsinaverage", d.Analysis.PointsInAverage)
	v.SetDefault("analysis.overlap", d.Analysis.Overlap)
	v.SetDefault("analysis.threshold", d.Analysis.Threshold)
	v.SetDefault("analysis.resultcount", d.Analysis.ResultCount)
	v.SetDefault("analysis.resultbuffer", d.Analysis.ResultBuffer)

	v.SetDefault("webserver.enabled", d.WebServer.Enabled)
	v.SetDefault("webserver.listen", d.WebServer.Listen)
	v.SetDefault("webserver.ratelimit", d.WebServer.RateLimit)
	v.SetDefault("webserver.rateburst", d.WebServer.RateBurst)
	v.SetDefault("webserver.heartbeatinterval", d.WebServer.HeartbeatInterval)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.clientid", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.passwordfile", d.MQTT.PasswordFile)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.retain", d.MQTT.Retain)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.dsn", d.Telemetry.DSN)
	v.SetDefault("telemetry.dsnfile", d.Telemetry.DSNFile)
	v.SetDefault("telemetry.environment", d.Telemetry.Environment)

	v.SetDefault("monitor.enabled", d.Monitor.Enabled)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.cpuwarning", d.Monitor.CPUWarning)

	v.SetDefault("logging.default_level", d.Logging.DefaultLevel)
	v.SetDefault("logging.timezone", d.Logging.Timezone)
	v.SetDefault("logging.console.enabled", d.Logging.Console.Enabled)
	v.SetDefault("logging.console.level", d.Logging.Console.Level)
	v.SetDefault("logging.file_output.enabled", d.Logging.FileOutput.Enabled)
	v.SetDefault("logging.file_output.path", d.Logging.FileOutput.Path)
	v.SetDefault("logging.file_output.level", d.Logging.FileOutput.Level)
}
