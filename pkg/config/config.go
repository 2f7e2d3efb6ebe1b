package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pydio/gosync/pkg/filter"
	"github.com/pydio/gosync/pkg/pydio"
	"github.com/pydio/gosync/pkg/types"
)

// DefaultFrequency is the trigger period applied when a job configures none.
const DefaultFrequency = 10 * time.Second

// Config is the daemon configuration: global options plus one entry per
// sync job, keyed by job name.
type Config struct {
	// DataDir holds one subdirectory per job (index, cursors, lock).
	// Defaults to ~/.gosync.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	LogFile  string `yaml:"log_file"`

	// MetricsAddr enables the Prometheus/health listener when non-empty,
	// e.g. ":9611".
	MetricsAddr string `yaml:"metrics_addr"`

	Jobs map[string]*Job `yaml:"jobs"`
}

// Job configures one local-directory/remote-workspace pair.
type Job struct {
	Directory string `yaml:"directory"`
	Server    string `yaml:"server"`
	Workspace string `yaml:"workspace"`

	RemoteFolder string   `yaml:"remote_folder"`
	UserID       string   `yaml:"user_id"`
	DeviceID     string   `yaml:"device_id"`
	Proxies      []string `yaml:"proxies"`

	Frequency Frequency `yaml:"frequency"`
	Direction string    `yaml:"direction"`
	Solve     string    `yaml:"solve"`

	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`

	TrustSSL bool `yaml:"trust_ssl"`
	// Timeout is the per-request bound for the remote SDK, in seconds.
	Timeout int `yaml:"timeout"`

	// Active defaults to true; an inactive job is loaded but not started.
	Active *bool `yaml:"active"`
}

// Frequency is either a periodic interval (a number of seconds) or a daily
// clock time in HH:MM form.
type Frequency struct {
	Every time.Duration
	At    *ClockTime
}

// ClockTime is a daily schedule position on a 24h clock.
type ClockTime struct {
	Hour   int
	Minute int
}

// UnmarshalYAML accepts `frequency: 30`, `frequency: 2.5` and
// `frequency: "14:30"`.
func (f *Frequency) UnmarshalYAML(value *yaml.Node) error {
	var seconds float64
	if err := value.Decode(&seconds); err == nil {
		if seconds <= 0 {
			return fmt.Errorf("frequency must be positive, got %v", seconds)
		}
		f.Every = time.Duration(seconds * float64(time.Second))
		return nil
	}

	var clock string
	if err := value.Decode(&clock); err != nil {
		return fmt.Errorf("frequency must be a number of seconds or a HH:MM time")
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return fmt.Errorf("invalid frequency time %q: %w", clock, err)
	}
	f.At = &ClockTime{Hour: t.Hour(), Minute: t.Minute()}
	return nil
}

// Load reads, defaults and validates a daemon configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = home + "/.gosync"
		} else {
			c.DataDir = ".gosync"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for _, job := range c.Jobs {
		if job == nil {
			continue
		}
		if job.Frequency.Every == 0 && job.Frequency.At == nil {
			job.Frequency.Every = DefaultFrequency
		}
		if job.Timeout == 0 {
			job.Timeout = int(pydio.DefaultTimeout / time.Second)
		}
		if job.Active == nil {
			active := true
			job.Active = &active
		}
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("no jobs configured")
	}
	for name, job := range c.Jobs {
		if job == nil {
			return fmt.Errorf("job %q: empty configuration", name)
		}
		if err := job.validate(); err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
	}
	return nil
}

func (j *Job) validate() error {
	if j.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if j.Server == "" {
		return fmt.Errorf("server is required")
	}
	if j.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	if _, err := types.ParseDirection(j.Direction); err != nil {
		return err
	}
	if _, err := types.ParseSolve(j.Solve); err != nil {
		return err
	}
	if j.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	// surface bad globs at startup, not on the first event
	if _, err := filter.New(j.Includes, j.Excludes); err != nil {
		return err
	}
	return nil
}

// ParsedDirection returns the validated sync direction.
func (j *Job) ParsedDirection() types.Direction {
	d, _ := types.ParseDirection(j.Direction)
	return d
}

// ParsedSolve returns the validated conflict policy.
func (j *Job) ParsedSolve() types.Solve {
	s, _ := types.ParseSolve(j.Solve)
	return s
}

// IsActive reports whether the job should be started.
func (j *Job) IsActive() bool {
	return j.Active == nil || *j.Active
}

// RequestTimeout returns the remote SDK timeout as a duration.
func (j *Job) RequestTimeout() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}
