package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinicioflores/GreenCarrot/internal/config"
	"github.com/vinicioflores/GreenCarrot/internal/repository/postgres"
	"github.com/vinicioflores/GreenCarrot/internal/repository/redis"
	"github.com/vinicioflores/GreenCarrot/internal/repository/surreal"
)

// probe is one reachability check.
type probe struct {
	name     string
	endpoint string
	required bool
	// eventLog probes pass as a group: one reachable endpoint is enough.
	eventLog bool
	run      func(ctx context.Context) error
}

func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every configured endpoint once",
		Long: `check connects to each configured endpoint once and prints whether it
answered. It exits non-zero when no event log endpoint or the primary
document store is reachable.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecks(cmd.Context(), cmd.OutOrStdout(), probes(opts.cfg), opts.cfg.CallTimeout())
		},
	}
}

func probes(cfg config.Config) []probe {
	var ps []probe

	for i, dsn := range cfg.EventLogURLs {
		ps = append(ps, probe{
			name:     fmt.Sprintf("event log #%d", i+1),
			endpoint: postgres.Redact(dsn),
			eventLog: true,
			run: func(ctx context.Context) error {
				db, err := postgres.OpenDB(ctx, dsn)
				if err != nil {
					return err
				}
				return db.Close()
			},
		})
	}

	for _, ds := range []struct {
		name     string
		url      string
		required bool
	}{
		{"document store primary", cfg.DocStorePrimaryURL, true},
		{"document store secondary", cfg.DocStoreSecondaryURL, false},
	} {
		if ds.url == "" {
			continue
		}
		store := surreal.NewStore(docStoreConfig(cfg, ds.url))
		ps = append(ps, probe{
			name:     ds.name,
			endpoint: ds.url,
			required: ds.required,
			run: func(ctx context.Context) error {
				defer store.Close(context.WithoutCancel(ctx))
				return store.Ping(ctx)
			},
		})
	}

	if cfg.LedgerDSN != "" {
		ps = append(ps, probe{
			name:     "ledger",
			endpoint: postgres.Redact(cfg.LedgerDSN),
			run: func(ctx context.Context) error {
				l, err := postgres.NewLedger(cfg.LedgerDSN, cfg.LedgerProcedure, postgres.LedgerOptions{})
				if err != nil {
					return err
				}
				defer l.Close()
				return l.Ping(ctx)
			},
		})
	}

	if cfg.CursorRedisAddr != "" {
		ps = append(ps, probe{
			name:     "cursor store",
			endpoint: cfg.CursorRedisAddr,
			run: func(ctx context.Context) error {
				client, err := redis.Dial(ctx, cfg.CursorRedisAddr)
				if err != nil {
					return err
				}
				return client.Close()
			},
		})
	}

	return ps
}

// runChecks prints one line per probe. It fails when a required probe
// failed or when every event log endpoint is down.
func runChecks(ctx context.Context, out io.Writer, ps []probe, timeout time.Duration) error {
	var failedRequired []string
	eventLogs, eventLogsUp := 0, 0

	for _, p := range ps {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.run(pctx)
		cancel()

		if p.eventLog {
			eventLogs++
		}

		if err != nil {
			fmt.Fprintf(out, "FAIL  %-26s %s: %v\n", p.name, p.endpoint, err)
			if p.required {
				failedRequired = append(failedRequired, p.name)
			}
			continue
		}
		if p.eventLog {
			eventLogsUp++
		}
		fmt.Fprintf(out, "OK    %-26s %s\n", p.name, p.endpoint)
	}

	if eventLogs > 0 && eventLogsUp == 0 {
		failedRequired = append(failedRequired, "event log")
	}
	if len(failedRequired) > 0 {
		return fmt.Errorf("unreachable: %v", failedRequired)
	}
	return nil
}
