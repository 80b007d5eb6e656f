package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinicioflores/GreenCarrot/internal/config"
)

// RootOptions holds flags shared by every command. Flags that were set
// override the file and environment.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	FetchMode    string
	PollInterval time.Duration
	Concurrent   bool
	HTTPAddr     string

	cfg config.Config
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{}, runRelay)
}

func newRootCommand(opts *RootOptions, run func(ctx context.Context, cfg config.Config) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay new orders and checkouts into delivery plans and inventory",
		Long: `relay polls the event log for new order and checkout facts.

New orders are joined with route and truck references and written as
delivery plans to the document store. New checkouts decrement the truck's
existence counter, empty the slot at zero and book the checkout in the
ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts.cfg)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", "", "YAML config file (also RELAY_CONFIG)")
	f.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.FetchMode, "fetch-mode", "", "latest or backlog")
	f.DurationVar(&opts.PollInterval, "poll-interval", 0, "time between poll cycles")
	f.BoolVar(&opts.Concurrent, "concurrent", false, "poll orders and checkouts as two tasks")
	f.StringVar(&opts.HTTPAddr, "http-addr", "", "stats endpoint address, empty to disable")

	root.AddCommand(NewRunCommand(opts, run), NewCheckCommand(opts))
	return root
}

func NewRunCommand(opts *RootOptions, run func(ctx context.Context, cfg config.Config) error) *cobra.Command {
	return &cobra.Command{
		Use:           "run",
		Short:         "Run the poll loop until interrupted (default)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts.cfg)
		},
	}
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.ConfigPath != "" {
		os.Setenv("RELAY_CONFIG", o.ConfigPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("fetch-mode") {
		cfg.FetchMode = o.FetchMode
	}
	if flags.Changed("poll-interval") {
		cfg.PollIntervalMS = int(o.PollInterval / time.Millisecond)
	}
	if flags.Changed("concurrent") {
		cfg.ConcurrentStreams = o.Concurrent
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = o.HTTPAddr
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	o.cfg = cfg
	return nil
}
