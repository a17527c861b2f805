// Package config handles YAML config file loading for pageturn.
package config

import (
	"fmt"
	"time"
)

// Config represents a pageturn.yaml configuration file.
// All values are optional and act as defaults for pageturn run flags.
// CLI flags always override config values.
//
// Secrets (the captured request, notification tokens) should enter via
// ${VAR} env expansion rather than being written into the file.
type Config struct {
	// Capture is the captured curl command, inline.
	Capture string `yaml:"capture"`
	// CaptureFile is a path to a file holding the captured curl command.
	CaptureFile string `yaml:"capture_file"`
	// SessionCookie overrides the credential cookie name.
	SessionCookie string `yaml:"session_cookie"`

	// Run parameters are pointers so an explicit zero in the file (a
	// no-op run, no pacing) stays distinguishable from unset.
	ReadCount      *int      `yaml:"read_count"`
	MinDelay       *Duration `yaml:"min_delay"`
	MaxDelay       *Duration `yaml:"max_delay"`
	MaxRetries     *int      `yaml:"max_retries"`
	RetryBackoff   *Duration `yaml:"retry_backoff"`
	MaxRunDuration *Duration `yaml:"max_run_duration"`

	// FailureTolerance is the number of failed calls a completed run may
	// carry and still exit successfully. Nil means zero tolerance.
	FailureTolerance *int `yaml:"failure_tolerance"`

	// ResultsPath enables the per-call result sink.
	ResultsPath string `yaml:"results_path"`

	// Books and Chapters override the payload rotation pools.
	Books    []string `yaml:"books"`
	Chapters []string `yaml:"chapters"`

	Endpoints EndpointsConfig `yaml:"endpoints"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// EndpointsConfig overrides the platform endpoints (tests, mirrors).
type EndpointsConfig struct {
	// Renewal is the credential-renewal endpoint for the preflight.
	Renewal string `yaml:"renewal"`
	// Synckey is the synckey-repair endpoint.
	Synckey string `yaml:"synckey"`
}

// NotifyConfig selects and configures the notification channel.
type NotifyConfig struct {
	// Type is the channel type: "webhook", "redis", or "" (disabled).
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "30s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "30s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
