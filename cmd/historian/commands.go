package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bvolkov/historian/internal/config"
	"github.com/bvolkov/historian/internal/export"
	"github.com/bvolkov/historian/internal/fetch"
	"github.com/bvolkov/historian/internal/rocketchat"
	"github.com/bvolkov/historian/internal/runner"
	"github.com/bvolkov/historian/internal/schedule"
)

var rootCmd = &cobra.Command{
	Use:   "historian",
	Short: "Incrementally export chat history to per-day JSON files",
	Long: `historian exports message history from a Rocket.Chat server into one
JSON file per room per day, remembering per-room progress so repeated
runs only fetch new data.

Examples:
  historian
  historian -s 2023-01-01 -e 2023-01-31
  historian -r --verbose`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runExport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the historian version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("historian version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath(), "config file path")
	rootCmd.Flags().StringP("start", "s", "", "export from this date (YYYY-MM-DD), overriding saved progress")
	rootCmd.Flags().StringP("end", "e", "", "export through this date inclusive (YYYY-MM-DD, default: yesterday)")
	rootCmd.Flags().BoolP("read-only", "r", false, "do not update the state file or ledger")
	rootCmd.Flags().Bool("verbose", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	readOnly, _ := cmd.Flags().GetBool("read-only")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	globalStart, err := parseStartFlag(startStr)
	if err != nil {
		return err
	}
	globalEnd, err := parseEndFlag(endStr, time.Now())
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("historian starting", "version", version, "end", globalEnd, "readOnly", readOnly)

	client := rocketchat.New(cfg.Server.URL)
	if err := client.Login(ctx, cfg.Server.User, cfg.Server.Password); err != nil {
		return err
	}

	writer, err := export.NewWriter(cfg.Export.OutputDir)
	if err != nil {
		return err
	}
	ledger, err := export.OpenLedger(cfg.Export.DataDir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	pacer := fetch.NewPacer(time.Duration(cfg.Export.PauseSeconds) * time.Second)
	fetcher := fetch.New(client, pacer, cfg.Export.CountMax, logger)

	r := runner.New(runner.Options{
		Provider:  client,
		Fetcher:   fetcher,
		Writer:    writer,
		Ledger:    ledger,
		Pacer:     pacer,
		Logger:    logger,
		StatePath: cfg.Export.StateFile,
		ReadOnly:  readOnly,
	})
	return r.Run(ctx, globalStart, globalEnd)
}

// parseStartFlag maps -s YYYY-MM-DD to midnight UTC of that day; empty means
// resume from each room's own watermark.
func parseStartFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q (want YYYY-MM-DD): %w", s, err)
	}
	return &t, nil
}

// parseEndFlag maps -e YYYY-MM-DD to the last microsecond of that day; empty
// defaults to yesterday end-of-day UTC, so the current (incomplete) day is
// never exported.
func parseEndFlag(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return schedule.EndOfDay(now.UTC().AddDate(0, 0, -1)), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid end date %q (want YYYY-MM-DD): %w", s, err)
	}
	return schedule.EndOfDay(t), nil
}

// newLogger builds the run logger: text handler on stderr, optionally tee'd
// to the configured log file.
func newLogger(cfg config.LogConfig, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose || cfg.Level == "debug" {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeLog := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeLog = func() { f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeLog, nil
}
