package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pageturn-io/pageturn/engine"
	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/notify"
	"github.com/pageturn-io/pageturn/payload"
	"github.com/pageturn-io/pageturn/report"
	"github.com/pageturn-io/pageturn/session"
	"github.com/pageturn-io/pageturn/sink"
	"github.com/pageturn-io/pageturn/template"
	"github.com/pageturn-io/pageturn/types"
)

// RunCommand returns the run command, the only command that executes
// work: one full parse → preflight → engine → aggregate → notify
// pipeline per invocation.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute one read-simulation run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to pageturn.yaml (optional, flags override it)",
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Captured curl command (prefer env expansion in the config file)",
			},
			&cli.StringFlag{
				Name:  "capture-file",
				Usage: "Path to a file holding the captured curl command",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (generated when omitted)",
			},
			&cli.IntFlag{
				Name:  "reads",
				Usage: "Number of read calls to simulate",
				Value: 40,
			},
			&cli.DurationFlag{
				Name:  "min-delay",
				Usage: "Lower bound of the randomized inter-call delay",
				Value: 25 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "max-delay",
				Usage: "Upper bound of the randomized inter-call delay",
				Value: 40 * time.Second,
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Retry budget per call, on top of the first attempt",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "backoff",
				Usage: "Retry backoff base (doubled per retry)",
				Value: time.Second,
			},
			&cli.DurationFlag{
				Name:  "max-duration",
				Usage: "Wall-clock bound for the whole run (0 = unbounded)",
			},
			&cli.IntFlag{
				Name:  "tolerance",
				Usage: "Failed calls a completed run may carry and still exit 0",
			},
			&cli.StringFlag{
				Name:  "results",
				Usage: "Path for the per-call result sink (msgpack frames)",
			},
			&cli.StringFlag{
				Name:  "session-cookie",
				Usage: "Name of the credential cookie in the capture",
				Value: types.DefaultSessionCookie,
			},
			// Notification flags
			&cli.StringFlag{
				Name:  "notify-type",
				Usage: "Notification channel: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "notify-url",
				Usage: "Channel endpoint (webhook URL or redis:// URL)",
			},
			&cli.StringFlag{
				Name:  "notify-channel",
				Usage: "Redis pub/sub channel name",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the result report",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	fileCfg, err := loadFileConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitInvalidInput)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
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

	runCfg := types.RunConfig{
		ReadCount:         intSetting(c, "reads", fileCfg.ReadCount),
		MinDelay:          durationSetting(c, "min-delay", fileCfg.MinDelay),
		MaxDelay:          durationSetting(c, "max-delay", fileCfg.MaxDelay),
		MaxRetriesPerCall: intSetting(c, "retries", fileCfg.MaxRetries),
		RetryBackoffBase:  durationSetting(c, "backoff", fileCfg.RetryBackoff),
		MaxRunDuration:    durationSetting(c, "max-duration", fileCfg.MaxRunDuration),
	}
	if err := runCfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid run config: %v", err), exitInvalidInput)
	}

	tolerance := c.Int("tolerance")
	if !c.IsSet("tolerance") && fileCfg.FailureTolerance != nil {
		tolerance = *fileCfg.FailureTolerance
	}

	notifier, err := buildNotifier(resolveNotify(c, fileCfg))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid notify config: %v", err), exitInvalidInput)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}
	dispatcher := notify.NewDispatcher(notifier, logger)

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	startedAt := time.Now()

	// Preflight: fail fast on a dead credential, spend nothing on it.
	var validatorOpts []session.Option
	if fileCfg.Endpoints.Renewal != "" {
		validatorOpts = append(validatorOpts, session.WithRenewalURL(fileCfg.Endpoints.Renewal))
	}
	if sessionCookie != types.DefaultSessionCookie {
		validatorOpts = append(validatorOpts, session.WithSessionCookie(sessionCookie))
	}
	validator := session.NewValidator(logger, validatorOpts...)

	switch preflight := validator.Validate(ctx, tpl); preflight.Outcome {
	case session.Expired:
		logger.Error("session expired before run", map[string]any{"detail": preflight.Detail})
		summary := report.Aggregate(nil, startedAt, time.Now())
		report.MarkAborted(&summary, types.ErrKindSessionExpired, preflight.Detail)
		dispatch(ctx, dispatcher, runID, types.StateAborted, summary)
		if !c.Bool("quiet") {
			report.WriteText(os.Stdout, runID, types.StateAborted, summary)
		}
		return cli.Exit("", exitAborted)

	case session.Valid:
		tpl = preflight.Template

	case session.Unreachable:
		// Transient by definition; the engine's retry policy covers it.
		logger.Warn("preflight unreachable, proceeding", map[string]any{"detail": preflight.Detail})
	}

	engCfg := engine.Config{
		Template:         tpl,
		Run:              runCfg,
		Logger:           logger,
		SynckeyRepairURL: fileCfg.Endpoints.Synckey,
	}

	// A JSON capture body gets per-call rewriting (fresh timestamps,
	// nonce, signature); anything else is replayed verbatim.
	if len(tpl.Body) > 0 {
		builder, err := payload.NewBuilder(tpl.Body, payload.Config{
			Books:    fileCfg.Books,
			Chapters: fileCfg.Chapters,
		})
		if err != nil {
			logger.Warn("captured body is not a read payload, replaying verbatim", map[string]any{
				"error": err.Error(),
			})
		} else {
			engCfg.Body = builder
		}
	}

	if path := stringSetting(c, "results", fileCfg.ResultsPath); path != "" {
		writer, err := sink.Create(path)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		defer func() { _ = writer.Close() }()
		engCfg.Observer = func(res types.CallResult) {
			if err := writer.Write(res); err != nil {
				logger.Warn("result sink write failed", map[string]any{"error": err.Error()})
			}
		}
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid engine config: %v", err), exitInvalidInput)
	}

	logger.Info("starting run", map[string]any{
		"reads":     runCfg.ReadCount,
		"min_delay": runCfg.MinDelay.String(),
		"max_delay": runCfg.MaxDelay.String(),
	})

	results := eng.Run(ctx)
	summary := report.Aggregate(results, startedAt, time.Now())
	state := eng.State()

	dispatch(ctx, dispatcher, runID, state, summary)

	if !c.Bool("quiet") {
		report.WriteText(os.Stdout, runID, state, summary)
	}

	if state == types.StateAborted {
		return cli.Exit("", exitAborted)
	}
	if summary.TotalFailed > tolerance {
		return cli.Exit(
			fmt.Sprintf("completed with %d failed calls (tolerance %d)", summary.TotalFailed, tolerance),
			exitOverTolerance,
		)
	}
	return cli.Exit("", exitSuccess)
}

// dispatch delivers the summary even when the run context was canceled:
// the abort is exactly what the notification should report.
func dispatch(ctx context.Context, d *notify.Dispatcher, runID string, state types.RunState, summary types.RunSummary) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	d.Dispatch(notifyCtx, runID, state, summary)
}
