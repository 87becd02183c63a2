// Package conf provides configuration management for livesound.
package conf

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/secrets"
)

const (
	appName   = "livesound"
	envPrefix = "LIVESOUND"
)

// Backend selects the inference backend resolved once at model load time.
type Backend string

const (
	BackendCPU     Backend = "cpu"
	BackendXNNPACK Backend = "xnnpack"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	return b == BackendCPU || b == BackendXNNPACK
}

// Settings contains all configuration options for livesound.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug" json:"debug"`

	Audio      AudioSettings      `yaml:"audio" mapstructure:"audio" json:"audio"`
	Classifier ClassifierSettings `yaml:"classifier" mapstructure:"classifier" json:"classifier"`
	Analysis   AnalysisSettings   `yaml:"analysis" mapstructure:"analysis" json:"analysis"`
	WebServer  WebServerSettings  `yaml:"webserver" mapstructure:"webserver" json:"webserver"`
	MQTT       MQTTSettings       `yaml:"mqtt" mapstructure:"mqtt" json:"mqtt"`
	Telemetry  TelemetrySettings  `yaml:"telemetry" mapstructure:"telemetry" json:"telemetry"`
	Monitor    MonitorSettings    `yaml:"monitor" mapstructure:"monitor" json:"monitor"`

	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging" json:"logging"`
}

// AudioSettings configures the capture side of the pipeline.
type AudioSettings struct {
	Source            string        `yaml:"source" mapstructure:"source" json:"source"`                                  // capture device name, "default" for system default
	SampleRate        int           `yaml:"samplerate" mapstructure:"samplerate" json:"sampleRate"`                      // Hz, mono
	CapturePollPeriod time.Duration `yaml:"capturepollperiod" mapstructure:"capturepollperiod" json:"capturePollPeriod"` // delay between blocking reads
	BlockFrames       int           `yaml:"blockframes" mapstructure:"blockframes" json:"blockFrames"`                   // 0 lets the device pick its period size
	RealtimeFile      bool          `yaml:"realtimefile" mapstructure:"realtimefile" json:"realtimeFile"`                // pace file input at its sample rate
}

// ModelSettings locates a model and its label table on disk.
type ModelSettings struct {
	Path   string `yaml:"path" mapstructure:"path" json:"path"`
	Labels string `yaml:"labels" mapstructure:"labels" json:"labels"`
}

// ClassifierSettings configures the inference engine.
type ClassifierSettings struct {
	Model      string                   `yaml:"model" mapstructure:"model" json:"model"`
	Models     map[string]ModelSettings `yaml:"models" mapstructure:"models" json:"models"`
	Backend    Backend                  `yaml:"backend" mapstructure:"backend" json:"backend"`
	Threads    int                      `yaml:"threads" mapstructure:"threads" json:"threads"` // 0 = auto
	WarmupRuns int                      `yaml:"warmupruns" mapstructure:"warmupruns" json:"warmupRuns"`
}

// AnalysisSettings configures windowing and result post-processing.
type AnalysisSettings struct {
	PointsInAverage int     `yaml:"pointsinaverage" mapstructure:"pointsinaverage" json:"pointsInAverage"`
	Overlap         float64 `yaml:"overlap" mapstructure:"overlap" json:"overlap"`
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold" json:"threshold"`
	ResultCount     int     `yaml:"resultcount" mapstructure:"resultcount" json:"resultCount"`
	ResultBuffer    int     `yaml:"resultbuffer" mapstructure:"resultbuffer" json:"resultBuffer"` // per-subscriber queue length
}

// WebServerSettings configures the HTTP control surface.
type WebServerSettings struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Listen            string        `yaml:"listen" mapstructure:"listen" json:"listen"`
	RateLimit         float64       `yaml:"ratelimit" mapstructure:"ratelimit" json:"rateLimit"` // control requests per second per client
	RateBurst         int           `yaml:"rateburst" mapstructure:"rateburst" json:"rateBurst"`
	HeartbeatInterval time.Duration `yaml:"heartbeatinterval" mapstructure:"heartbeatinterval" json:"heartbeatInterval"`
}

// MQTTSettings configures result publishing to an MQTT broker.
type MQTTSettings struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Broker       string `yaml:"broker" mapstructure:"broker" json:"broker"`
	Topic        string `yaml:"topic" mapstructure:"topic" json:"topic"`
	ClientID     string `yaml:"clientid" mapstructure:"clientid" json:"clientId"`
	Username     string `yaml:"username" mapstructure:"username" json:"username"`
	Password     string `yaml:"password" mapstructure:"password" json:"-"`                    // may reference ${ENV_VAR}
	PasswordFile string `yaml:"passwordfile" mapstructure:"passwordfile" json:"passwordFile"` // overrides Password
	QoS          byte   `yaml:"qos" mapstructure:"qos" json:"qos"`
	Retain       bool   `yaml:"retain" mapstructure:"retain" json:"retain"`
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn" json:"-"`
	DSNFile     string `yaml:"dsnfile" mapstructure:"dsnfile" json:"dsnFile"`
	Environment string `yaml:"environment" mapstructure:"environment" json:"environment"`
}

// MonitorSettings configures host resource sampling.
type MonitorSettings struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`
	CPUWarning float64       `yaml:"cpuwarning" mapstructure:"cpuwarning" json:"cpuWarning"` // percent, 0 disables the warning
}

// Clone returns a deep copy of the settings. Sessions keep their own copy so
// later mutations never reach a running pipeline.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}

	c := *s
	c.Classifier.Models = maps.Clone(s.Classifier.Models)

	if s.Logging.Console != nil {
		console := *s.Logging.Console
		c.Logging.Console = &console
	}
	if s.Logging.FileOutput != nil {
		file := *s.Logging.FileOutput
		c.Logging.FileOutput = &file
	}
	c.Logging.ModuleLevels = maps.Clone(s.Logging.ModuleLevels)

	return &c
}

// ActiveModel returns the configured paths of the selected model.
func (s *Settings) ActiveModel() (ModelSettings, bool) {
	m, ok := s.Classifier.Models[s.Classifier.Model]
	return m, ok
}

// NewViper returns a viper instance with defaults, env overrides and config search paths applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range DefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration file and environment variables into Settings.
// configFile overrides the search path when set. A missing config file is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = NewViper()
	}

	loadDotEnv()

	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		GetLogger().Info("no config file found, using defaults")
	} else {
		GetLogger().Info("loaded config file", logger.String("path", v.ConfigFileUsed()))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	for name, m := range settings.Classifier.Models {
		m.Path = ExpandPath(m.Path)
		m.Labels = ExpandPath(m.Labels)
		settings.Classifier.Models[name] = m
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// resolveSecrets replaces credential fields with the contents of their
// secret files or their expanded ${VAR} references.
func resolveSecrets(settings *Settings) error {
	password, err := secrets.Resolve(ExpandPath(settings.MQTT.PasswordFile), settings.MQTT.Password)
	if err != nil {
		return fmt.Errorf("error resolving mqtt password: %w", err)
	}
	settings.MQTT.Password = password

	dsn, err := secrets.Resolve(ExpandPath(settings.Telemetry.DSNFile), settings.Telemetry.DSN)
	if err != nil {
		return fmt.Errorf("error resolving telemetry dsn: %w", err)
	}
	settings.Telemetry.DSN = dsn
	return nil
}

// loadDotEnv loads a .env file from the working directory if present.
// Variables already set in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		GetLogger().Warn("failed to load .env file", logger.Error(err))
	}
}

// DefaultConfigPaths returns config search paths in priority order.
func DefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", appName))
		default:
			paths = append(paths, filepath.Join(homeDir, ".config", appName))
		}
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, filepath.Join("/etc", appName))
	}

	return paths
}

// ExpandPath expands environment variables and a leading ~/ in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
