package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pingwatch/pkg/config"
	"pingwatch/pkg/monitor"
	"pingwatch/pkg/watchdog"

	"github.com/urfave/cli/v2"
)

// Exit codes
const (
	exitOK         = 0
	exitConfig     = 1
	exitUsageError = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping monitor...")
		cancel()
	}()

	os.Exit(run(ctx, os.Args, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return exitOK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	_, _ = fmt.Fprintln(stderr, err)
	return exitConfig
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:            "pingwatch",
		Usage:           "server status change notification",
		UsageText:       "pingwatch -s example.com -n https://ntfy.example.com/subscription -t secret_token",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "required - server to check ping",
			},
			&cli.StringFlag{
				Name:    "ntfy",
				Aliases: []string{"n"},
				Usage:   "required - ntfy server to send message to",
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "required - token for ntfy server",
			},
			&cli.IntFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   config.DefaultIntervalMinutes,
				Usage:   "check frequency in minutes",
			},
			&cli.StringFlag{
				Name:    "probe",
				Aliases: []string{"p"},
				Value:   monitor.ProbeTypeExec,
				Usage:   "probe mechanism: exec (system ping) or icmp (native echo)",
			},
			&cli.BoolFlag{
				Name:  "privileged",
				Usage: "use a raw socket for the icmp probe",
			},
			&cli.StringFlag{
				Name:  "probe-timeout",
				Value: "30s",
				Usage: "upper bound for one probe (s, m, h, d suffixes)",
			},
			&cli.StringFlag{
				Name:  "on-probe-error",
				Value: "skip",
				Usage: "when the probe cannot run: skip the tick or treat the host as down",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address (disabled when empty)",
			},
		},
		OnUsageError: func(cCtx *cli.Context, err error, isSubcommand bool) error {
			_, _ = fmt.Fprintf(cCtx.App.ErrWriter, "Incorrect usage: %v\n", err)
			_ = cli.ShowAppHelp(cCtx)
			return cli.Exit("", exitUsageError)
		},
		// Exit codes are turned into the process status by run.
		ExitErrHandler: func(cCtx *cli.Context, err error) {},
		Action:         action,
	}
}

func action(cCtx *cli.Context) error {
	opts, err := optionsFrom(cCtx)
	if err == nil {
		err = opts.Validate()
	}
	if err != nil {
		if errors.Is(err, config.ErrMissingRequired) {
			_, _ = fmt.Fprintln(cCtx.App.ErrWriter, "Missing required arg")
		}
		_, _ = fmt.Fprintf(cCtx.App.ErrWriter, "Error: %v\n", err)
		_ = cli.ShowAppHelp(cCtx)
		return cli.Exit("", exitConfig)
	}

	wd, err := watchdog.NewWatchdog(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create monitor: %v", err), exitConfig)
	}

	ctx := cCtx.Context
	wd.Start(ctx)
	<-ctx.Done()
	wd.Stop()

	log.Println("Monitor stopped.")
	return nil
}

func optionsFrom(cCtx *cli.Context) (config.Options, error) {
	timeout, err := config.ParseDuration(cCtx.String("probe-timeout"))
	if err != nil {
		return config.Options{}, fmt.Errorf("invalid probe-timeout: %w", err)
	}
	interval, err := config.IntervalFromMinutes(cCtx.Int("interval"))
	if err != nil {
		return config.Options{}, err
	}

	return config.Options{
		Server:       cCtx.String("server"),
		NtfyURL:      cCtx.String("ntfy"),
		Token:        cCtx.String("token"),
		Interval:     interval,
		Probe:        cCtx.String("probe"),
		Privileged:   cCtx.Bool("privileged"),
		ProbeTimeout: timeout,
		OnProbeError: cCtx.String("on-probe-error"),
		MetricsAddr:  cCtx.String("metrics-addr"),
	}, nil
}
