package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dbpoll/internal/app"
	"dbpoll/internal/config"
	"dbpoll/internal/dbclient"
	"dbpoll/internal/etl"
	"dbpoll/internal/schedule"
	"dbpoll/internal/storage"
)

// Set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dbpoll:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbpoll",
		Short:         "Run SQL statements on a cron schedule and emit the rows as records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "dbpoll.yaml", "path to the configuration file")
	root.AddCommand(runCmd(), checkCmd(), nextCmd(), recordsCmd(), versionCmd())
	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll every configured source until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			watch, _ := cmd.Flags().GetBool("watch")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &app.Runner{ConfigPath: cfgPath, Watch: watch}
			return r.Run(ctx)
		},
	}
	cmd.Flags().Bool("watch", false, "restart sources when the configuration file changes")
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show each source's first fire time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			ping, _ := cmd.Flags().GetBool("ping")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := writeUpcoming(out, cfg, time.Now(), 1); err != nil {
				return err
			}
			if !ping {
				return nil
			}
			return pingSources(cmd.Context(), out, cfg)
		},
	}
	cmd.Flags().Bool("ping", false, "also connect to every source's database")
	return cmd
}

// pingSources acquires one connection per source within the usual
// acquisition timeout and reports every unreachable source.
func pingSources(ctx context.Context, w io.Writer, cfg *config.Config) error {
	var errs []error
	for _, src := range cfg.SourceConfigs() {
		pool, err := dbclient.NewPool(src.Connection)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", src.Name, err))
			continue
		}
		err = pool.Ping(ctx)
		pool.Close()
		if err != nil {
			fmt.Fprintf(w, "%s\tunreachable: %v\n", src.Name, err)
			errs = append(errs, fmt.Errorf("source %q: %w", src.Name, err))
			continue
		}
		fmt.Fprintf(w, "%s\treachable\n", src.Name)
	}
	return errors.Join(errs...)
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print records kept by the sqlite sink, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			source, _ := cmd.Flags().GetString("source")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Sink.Type != config.SinkSQLite {
				return fmt.Errorf("sink is %q; only the %q sink keeps records", cfg.Sink.Type, config.SinkSQLite)
			}
			return writeRecords(cmd.OutOrStdout(), cfg.Sink.Path, source, limit)
		},
	}
	cmd.Flags().StringP("source", "s", "", "source name")
	cmd.Flags().IntP("limit", "n", 10, "number of records; 0 prints all")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func writeRecords(w io.Writer, path, source string, limit int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("records database: %w", err)
	}
	db, err := storage.New(path)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := storage.NewRecordStore(db).ListRecords(source, limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Fprintln(w, r.PayloadJSON)
	}
	return nil
}

func nextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print upcoming fire times per source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, _ := cmd.Flags().GetInt("count")
			if n < 1 {
				return fmt.Errorf("--count must be positive, got %d", n)
			}
			return printUpcoming(cmd, n)
		},
	}
	cmd.Flags().IntP("count", "n", 5, "number of fire times per source")
	return cmd
}

func printUpcoming(cmd *cobra.Command, n int) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	return writeUpcoming(cmd.OutOrStdout(), cfg, time.Now(), n)
}

func writeUpcoming(w io.Writer, cfg *config.Config, now time.Time, n int) error {
	for _, src := range cfg.SourceConfigs() {
		sched, err := schedule.New(src.Schedule, zerolog.Nop())
		if err != nil {
			return fmt.Errorf("source %q: %w", src.Name, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", src.Name, src.Connection.Driver, sched)
		if sched.Once() {
			fmt.Fprintln(w, "  runs once at startup")
			continue
		}
		times, err := sched.Upcoming(now, n)
		if err != nil {
			fmt.Fprintf(w, "  %v\n", err)
			continue
		}
		for _, t := range times {
			fmt.Fprintf(w, "  %s\n", t.Format(time.RFC3339))
		}
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and registered source types",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dbpoll %s (commit: %s)\n", version, commit)
			for _, spec := range etl.ListSources() {
				fmt.Fprintf(out, "  %s\t%s\n", spec.Type, spec.Label)
			}
		},
	}
}
