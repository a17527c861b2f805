package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pageturn-io/pageturn/cli/config"
	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/notify"
	"github.com/pageturn-io/pageturn/session"
	"github.com/pageturn-io/pageturn/template"
	"github.com/pageturn-io/pageturn/types"
)

// CheckCommand returns the check command: parse the capture and
// validate the credential without spending any read calls. Exit codes
// mirror the preflight outcome so the command works in cron guards.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate the captured credential without running",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to pageturn.yaml (optional, flags override it)",
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Captured curl command",
			},
			&cli.StringFlag{
				Name:  "capture-file",
				Usage: "Path to a file holding the captured curl command",
			},
			&cli.StringFlag{
				Name:  "session-cookie",
				Usage: "Name of the credential cookie in the capture",
				Value: types.DefaultSessionCookie,
			},
			&cli.BoolFlag{
				Name:  "test-notify",
				Usage: "Also deliver a test notification to the configured channel",
			},
		},
		Action: checkAction,
	}
}

func checkAction(c *cli.Context) error {
	fileCfg, err := loadFileConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitInvalidInput)
	}

	runID := uuid.NewString()
	logger := log.New(runID)

	capture, err := resolveCapture(c, fileCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	sessionCookie := stringSetting(c, "session-cookie", fileCfg.SessionCookie)
	tpl, err := template.ParseWithCredential(capture, sessionCookie)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid capture: %v", err), exitInvalidInput)
	}

	fmt.Fprintf(os.Stdout, "capture: %s %s, %d headers, %d cookies\n",
		tpl.Method, tpl.URL, len(tpl.Headers()), len(tpl.Cookies()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var opts []session.Option
	if fileCfg.Endpoints.Renewal != "" {
		opts = append(opts, session.WithRenewalURL(fileCfg.Endpoints.Renewal))
	}
	if sessionCookie != types.DefaultSessionCookie {
		opts = append(opts, session.WithSessionCookie(sessionCookie))
	}
	result := session.NewValidator(logger, opts...).Validate(ctx, tpl)
	fmt.Fprintf(os.Stdout, "session: %s\n", result.Outcome)

	if c.Bool("test-notify") {
		if err := testNotify(ctx, c, fileCfg, logger, runID); err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
	}

	switch result.Outcome {
	case session.Valid:
		return cli.Exit("", exitSuccess)
	case session.Unreachable:
		return cli.Exit(result.Detail, exitOverTolerance)
	default:
		return cli.Exit(result.Detail, exitAborted)
	}
}

func testNotify(ctx context.Context, c *cli.Context, fileCfg *config.Config, logger *log.Logger, runID string) error {
	notifier, err := buildNotifier(resolveNotify(c, fileCfg))
	if err != nil {
		return fmt.Errorf("invalid notify config: %w", err)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}
	now := time.Now()
	status := notify.NewDispatcher(notifier, logger).Dispatch(ctx, runID, types.StateCompleted, types.RunSummary{
		StartedAt:  now,
		FinishedAt: now,
	})
	fmt.Fprintf(os.Stdout, "notify: %s\n", status)
	return nil
}
