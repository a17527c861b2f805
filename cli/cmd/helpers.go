package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pageturn-io/pageturn/cli/config"
	"github.com/pageturn-io/pageturn/notify"
	"github.com/pageturn-io/pageturn/notify/redis"
	"github.com/pageturn-io/pageturn/notify/webhook"
)

// Exit codes consumed by the external scheduler.
const (
	exitSuccess       = 0 // Completed within the failure tolerance
	exitOverTolerance = 1 // Completed, but too many failed calls
	exitAborted       = 2 // run aborted (session/structural fault, deadline)
	exitInvalidInput  = 3 // invalid arguments, config, or capture
)

// loadFileConfig loads the YAML config if --config was given.
// A missing flag is not an error; flags alone can drive a run.
func loadFileConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// resolveCapture returns the captured curl command from, in order of
// precedence: --capture, --capture-file, config capture, config
// capture_file.
func resolveCapture(c *cli.Context, fileCfg *config.Config) (string, error) {
	if v := c.String("capture"); v != "" {
		return v, nil
	}
	if path := c.String("capture-file"); path != "" {
		return readCaptureFile(path)
	}
	if fileCfg.Capture != "" {
		return fileCfg.Capture, nil
	}
	if fileCfg.CaptureFile != "" {
		return readCaptureFile(fileCfg.CaptureFile)
	}
	return "", fmt.Errorf("no captured request: provide --capture, --capture-file, or a capture entry in the config file")
}

func readCaptureFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read capture file %q: %w", path, err)
	}
	return string(data), nil
}

// resolveNotify merges notification settings; flags override the file.
func resolveNotify(c *cli.Context, fileCfg *config.Config) config.NotifyConfig {
	nc := fileCfg.Notify
	if v := c.String("notify-type"); v != "" {
		nc.Type = v
	}
	if v := c.String("notify-url"); v != "" {
		nc.URL = v
	}
	if v := c.String("notify-channel"); v != "" {
		nc.Channel = v
	}
	return nc
}

// buildNotifier constructs the configured channel. A nil notifier with
// nil error means notification is disabled.
func buildNotifier(nc config.NotifyConfig) (notify.Notifier, error) {
	retries := webhook.DefaultRetries
	if nc.Retries != nil {
		retries = *nc.Retries
	}

	switch nc.Type {
	case "":
		return nil, nil

	case "webhook":
		return webhook.New(webhook.Config{
			URL:     nc.URL,
			Headers: nc.Headers,
			Timeout: nc.Timeout.Duration,
			Retries: retries,
		})

	case "redis":
		return redis.New(redis.Config{
			URL:     nc.URL,
			Channel: nc.Channel,
			Timeout: nc.Timeout.Duration,
			Retries: retries,
		})

	default:
		return nil, fmt.Errorf("unknown notify type %q (must be webhook or redis)", nc.Type)
	}
}

// stringSetting resolves a string: flag wins when set, then file value,
// then the flag's default.
func stringSetting(c *cli.Context, name, fileVal string) string {
	if c.IsSet(name) || fileVal == "" {
		return c.String(name)
	}
	return fileVal
}

// intSetting resolves an int the same way. The file value is a pointer
// so an explicit zero in the file is honored rather than replaced by
// the flag default.
func intSetting(c *cli.Context, name string, fileVal *int) int {
	if c.IsSet(name) || fileVal == nil {
		return c.Int(name)
	}
	return *fileVal
}

// durationSetting resolves a duration the same way.
func durationSetting(c *cli.Context, name string, fileVal *config.Duration) time.Duration {
	if c.IsSet(name) || fileVal == nil {
		return c.Duration(name)
	}
	return fileVal.Duration
}
