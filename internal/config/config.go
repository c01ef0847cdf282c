package config

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
	"regexp"
	"time"
)

// EnvPrefix is prepended to every environment override, e.g. F2B_LOG_PATH.
const EnvPrefix = "F2B"

const (
	DefaultLogPath      = "/var/log/fail2ban.log"
	DefaultListenAddr   = "0.0.0.0:9191"
	DefaultTailLines    = 10000
	DefaultMaxLineBytes = 1 << 20
	DefaultRetention    = 24 * time.Hour
	DefaultReadTimeout  = 5 * time.Second
)

// Patterns overrides the log line format. Empty fields keep the built-in fail2ban format.
type Patterns struct {
	BanMarker   string `yaml:"ban_marker" envconfig:"BAN_MARKER"`
	UnbanMarker string `yaml:"unban_marker" envconfig:"UNBAN_MARKER"`
	JailMarker  string `yaml:"jail_marker" envconfig:"JAIL_MARKER"`
	Ban         string `yaml:"ban" envconfig:"BAN"`
	Unban       string `yaml:"unban" envconfig:"UNBAN"`
	TimeLayout  string `yaml:"time_layout" envconfig:"TIME_LAYOUT"`
}

type Firewall struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	Table       string `yaml:"table" envconfig:"TABLE"`
	ChainPrefix string `yaml:"chain_prefix" envconfig:"CHAIN_PREFIX"`
}

type Tracing struct {
	Enabled      bool    `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName  string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" envconfig:"OTLP_ENDPOINT"`
	SampleRatio  float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

type Config struct {
	LogPath      string        `yaml:"log_path" envconfig:"LOG_PATH"`
	ListenAddr   string        `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	TailLines    int           `yaml:"tail_lines" envconfig:"TAIL_LINES"`
	MaxLineBytes int           `yaml:"max_line_bytes" envconfig:"MAX_LINE_BYTES"`
	Retention    time.Duration `yaml:"retention" envconfig:"RETENTION"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	LogLevel     string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	CORSOrigins  []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`

	Patterns Patterns `yaml:"patterns" envconfig:"PATTERNS"`
	Firewall Firewall `yaml:"firewall" envconfig:"FIREWALL"`
	Tracing  Tracing  `yaml:"tracing" envconfig:"TRACING"`
}

// Default returns the configuration the exporter runs with when nothing is overridden.
func Default() Config {
	return Config{
		LogPath:      DefaultLogPath,
		ListenAddr:   DefaultListenAddr,
		TailLines:    DefaultTailLines,
		MaxLineBytes: DefaultMaxLineBytes,
		Retention:    DefaultRetention,
		ReadTimeout:  DefaultReadTimeout,
		LogLevel:     "info",
		Firewall: Firewall{
			Table:       "filter",
			ChainPrefix: "f2b-",
		},
		Tracing: Tracing{
			ServiceName:  "fail2ban-exporter",
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1.0,
		},
	}
}

// Load layers the optional YAML file at path and then F2B_* environment variables over Default.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrap(err, "failed to decode config file")
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, errors.Wrap(err, "failed to process environment")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.LogPath == "" {
		return errors.New("log_path is required")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.TailLines <= 0 {
		return errors.Errorf("tail_lines must be positive, got %d", c.TailLines)
	}
	if c.MaxLineBytes <= 0 {
		return errors.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes)
	}
	if c.Retention <= 0 {
		return errors.Errorf("retention must be positive, got %v", c.Retention)
	}
	if c.ReadTimeout < 0 {
		return errors.Errorf("read_timeout must not be negative, got %v", c.ReadTimeout)
	}
	for name, expr := range map[string]string{"ban": c.Patterns.Ban, "unban": c.Patterns.Unban} {
		if expr == "" {
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			return errors.Wrapf(err, "patterns: invalid %s pattern", name)
		}
	}
	if c.Firewall.Enabled && c.Firewall.ChainPrefix == "" {
		return errors.New("firewall: chain_prefix is required when enabled")
	}
	return nil
}
