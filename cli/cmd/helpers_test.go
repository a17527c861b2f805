package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pageturn-io/pageturn/cli/config"
)

// withContext runs fn inside a minimal app so flag parsing and IsSet
// behave exactly as they do in a real invocation.
func withContext(t *testing.T, flags []cli.Flag, args []string, fn func(c *cli.Context)) {
	t.Helper()
	app := &cli.App{
		Flags: flags,
		Action: func(c *cli.Context) error {
			fn(c)
			return nil
		},
	}
	if err := app.Run(append([]string{"pageturn"}, args...)); err != nil {
		t.Fatalf("app run: %v", err)
	}
}

func captureFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "capture"},
		&cli.StringFlag{Name: "capture-file"},
	}
}

func TestResolveCapture_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, []byte("curl from file"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		fileCfg config.Config
		want    string
	}{
		{"flag wins", []string{"--capture", "curl from flag"}, config.Config{Capture: "curl from config"}, "curl from flag"},
		{"flag file", []string{"--capture-file", path}, config.Config{Capture: "curl from config"}, "curl from file"},
		{"config inline", nil, config.Config{Capture: "curl from config"}, "curl from config"},
		{"config file", nil, config.Config{CaptureFile: path}, "curl from file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withContext(t, captureFlags(), tt.args, func(c *cli.Context) {
				got, err := resolveCapture(c, &tt.fileCfg)
				if err != nil {
					t.Fatalf("resolve: %v", err)
				}
				if got != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			})
		})
	}
}

func TestResolveCapture_Missing(t *testing.T) {
	withContext(t, captureFlags(), nil, func(c *cli.Context) {
		_, err := resolveCapture(c, &config.Config{})
		if err == nil || !strings.Contains(err.Error(), "no captured request") {
			t.Errorf("expected missing-capture error, got %v", err)
		}
	})
}

func TestBuildNotifier(t *testing.T) {
	n, err := buildNotifier(config.NotifyConfig{})
	if err != nil || n != nil {
		t.Errorf("disabled channel: got %v, %v", n, err)
	}

	n, err = buildNotifier(config.NotifyConfig{Type: "webhook", URL: "https://hooks.example/x"})
	if err != nil || n == nil {
		t.Errorf("webhook channel: got %v, %v", n, err)
	}

	n, err = buildNotifier(config.NotifyConfig{Type: "redis", URL: "redis://localhost:6379"})
	if err != nil || n == nil {
		t.Errorf("redis channel: got %v, %v", n, err)
	}
	if n != nil {
		_ = n.Close()
	}

	if _, err := buildNotifier(config.NotifyConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("unknown channel type accepted")
	}
	if _, err := buildNotifier(config.NotifyConfig{Type: "webhook"}); err == nil {
		t.Error("webhook without URL accepted")
	}
}

func TestSettingPrecedence(t *testing.T) {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "reads", Value: 40},
		&cli.DurationFlag{Name: "min-delay", Value: 25 * time.Second},
	}
	sixty := 60

	// No flag, file value set: file wins over the flag default.
	withContext(t, flags, nil, func(c *cli.Context) {
		if got := intSetting(c, "reads", &sixty); got != 60 {
			t.Errorf("file value lost: %d", got)
		}
		if got := durationSetting(c, "min-delay", &config.Duration{Duration: 20 * time.Second}); got != 20*time.Second {
			t.Errorf("file value lost: %s", got)
		}
	})

	// No flag, no file value: the flag default applies.
	withContext(t, flags, nil, func(c *cli.Context) {
		if got := intSetting(c, "reads", nil); got != 40 {
			t.Errorf("default lost: %d", got)
		}
		if got := durationSetting(c, "min-delay", nil); got != 25*time.Second {
			t.Errorf("default lost: %s", got)
		}
	})

	// Explicit flag beats the file value, even at the default.
	withContext(t, flags, []string{"--reads", "40"}, func(c *cli.Context) {
		if got := intSetting(c, "reads", &sixty); got != 40 {
			t.Errorf("explicit flag lost: %d", got)
		}
	})
}

func TestSettingPrecedence_ExplicitZero(t *testing.T) {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "reads", Value: 40},
		&cli.DurationFlag{Name: "min-delay", Value: 25 * time.Second},
	}
	zero := 0

	// An explicit zero in the file is a real setting (no-op run, no
	// pacing), not an absent one.
	withContext(t, flags, nil, func(c *cli.Context) {
		if got := intSetting(c, "reads", &zero); got != 0 {
			t.Errorf("explicit zero reads lost: %d", got)
		}
		if got := durationSetting(c, "min-delay", &config.Duration{}); got != 0 {
			t.Errorf("explicit zero delay lost: %s", got)
		}
	})
}

func TestResolveNotify_FlagsOverrideFile(t *testing.T) {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "notify-type"},
		&cli.StringFlag{Name: "notify-url"},
		&cli.StringFlag{Name: "notify-channel"},
	}
	fileCfg := &config.Config{Notify: config.NotifyConfig{
		Type: "webhook",
		URL:  "https://hooks.example/file",
	}}

	withContext(t, flags, []string{"--notify-url", "https://hooks.example/flag"}, func(c *cli.Context) {
		nc := resolveNotify(c, fileCfg)
		if nc.Type != "webhook" {
			t.Errorf("file type lost: %q", nc.Type)
		}
		if nc.URL != "https://hooks.example/flag" {
			t.Errorf("flag url lost: %q", nc.URL)
		}
	})
}
