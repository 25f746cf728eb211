package config

import (
	"dbpoll/internal/domain"
	"dbpoll/internal/logging"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Sink    SinkConfig    `yaml:"sink"`
	Sources []SourceEntry `yaml:"sources"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the HTTP endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

const (
	SinkStdout = "stdout"
	SinkSQLite = "sqlite"
)

type SinkConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// SourceEntry is one polling source as written in the file.
type SourceEntry struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	Statement        string `yaml:"statement"`
	Schedule         string `yaml:"schedule"`
	ScheduleTimezone string `yaml:"schedule_timezone"`

	TimeEncoding        string `yaml:"time_encoding"`
	OnError             string `yaml:"on_error"`
	CircuitTripFailures int    `yaml:"circuit_trip_failures"`
}

const (
	DefaultSinkPath = "records.db"
	DefaultTimezone = "UTC"
)

// ApplyDefaults fills every optional field that was left empty.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = logging.FormatConsole
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkStdout
	}
	if c.Sink.Type == SinkSQLite && c.Sink.Path == "" {
		c.Sink.Path = DefaultSinkPath
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Type == "" {
			s.Type = string(domain.DatabaseDriverMySQL)
		}
		if s.Host == "" {
			s.Host = domain.DefaultHost
		}
		if s.Port == 0 {
			s.Port = domain.DefaultMySQLPort
		}
		if s.ScheduleTimezone == "" {
			s.ScheduleTimezone = DefaultTimezone
		}
		if s.TimeEncoding == "" {
			s.TimeEncoding = string(domain.TimeEncodingObject)
		}
		if s.OnError == "" {
			s.OnError = string(domain.ErrorPolicyFail)
		}
	}
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// SourceConfig converts the entry into the immutable domain form.
func (s SourceEntry) SourceConfig() domain.SourceConfig {
	return domain.SourceConfig{
		Name: s.Name,
		Connection: domain.ConnectionConfig{
			Driver:   domain.DatabaseDriver(s.Type),
			Host:     s.Host,
			Port:     s.Port,
			Database: domain.OptionalString(s.Database),
			User:     domain.OptionalString(s.User),
			Password: domain.OptionalString(s.Password),
		}.WithDefaults(),
		Statement: s.Statement,
		Schedule: domain.ScheduleSpec{
			Expression: domain.OptionalString(s.Schedule),
			Timezone:   domain.OptionalString(s.ScheduleTimezone),
		},
		TimeEncoding:        domain.TimeEncoding(s.TimeEncoding),
		OnError:             domain.ErrorPolicy(s.OnError),
		CircuitTripFailures: s.CircuitTripFailures,
	}
}

// SourceConfigs converts every entry, preserving file order.
func (c *Config) SourceConfigs() []domain.SourceConfig {
	out := make([]domain.SourceConfig, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = s.SourceConfig()
	}
	return out
}
