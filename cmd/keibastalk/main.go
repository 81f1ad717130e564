package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/keibastalk/internal/archive"
	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/discovery"
	"github.com/IshaanNene/keibastalk/internal/engine"
	"github.com/IshaanNene/keibastalk/internal/extract"
)

var (
	cfgFile  string
	verbose  bool
	fromDate string
	toDate   string
	refresh  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keibastalk",
		Short: "keibastalk: netkeiba race and horse data collector",
		Long: `keibastalk collects horse racing data from netkeiba.

Stages:
  • Meeting dates from the monthly calendar
  • Race ids from the (script-rendered) race listings
  • Raw race and horse page archive, fetched once per id
  • Results, race info, payout and horse history tables
  • Normalized TSV tables, optionally mirrored to MongoDB

Every stage caches its output; re-running resumes where it stopped.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(datesCmd())
	rootCmd.AddCommand(racesCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(idsCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&fromDate, "from", "", "first month or day (2006-01 or 2006-01-02)")
	cmd.Flags().StringVar(&toDate, "to", "", "last month or day (2006-01 or 2006-01-02)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
}

// datesCmd creates the "dates" subcommand.
func datesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dates",
		Short: "Discover meeting dates from the race calendar",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			r, err := discovery.ParseRange(fromDate, toDate)
			if err != nil {
				return err
			}
			dates, s, err := eng.Dates(ctx, r)
			if err != nil {
				return err
			}
			renderStages(s)
			fmt.Println(strings.Join(dates, "\n"))
			return nil
		}),
	}
	addRangeFlags(cmd)
	return cmd
}

// racesCmd creates the "races" subcommand.
func racesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "races",
		Short: "Discover race ids from the race listings",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			r, err := discovery.ParseRange(fromDate, toDate)
			if err != nil {
				return err
			}
			_, s, err := eng.Races(ctx, r)
			if err != nil {
				return err
			}
			renderStages(s)
			return nil
		}),
	}
	addRangeFlags(cmd)
	return cmd
}

// archiveCmd creates the "archive" subcommand.
func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive race|horse",
		Short: "Fetch and store race or horse pages not yet archived",
		Long: `Archive race pages for the race ids of --from/--to, or horse pages for
the horse ids mined from the archived race results.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(archive.Race), string(archive.Horse)},
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := archive.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine) error {
				eng.Archiver().Refresh = refresh

				var ids []string
				if category == archive.Race {
					r, err := discovery.ParseRange(fromDate, toDate)
					if err != nil {
						return err
					}
					if ids, _, err = eng.Races(ctx, r); err != nil {
						return err
					}
				} else if ids, err = eng.HorseIDs(ctx); err != nil {
					return err
				}

				s, err := eng.Archive(ctx, category, ids)
				renderStages(s)
				return err
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&fromDate, "from", "", "first month or day, for race pages")
	cmd.Flags().StringVar(&toDate, "to", "", "last month or day, for race pages")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch pages that are already archived")
	return cmd
}

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [raw_race|raw_race_info|raw_race_return|raw_horse...]",
		Short: "Rebuild combined raw tables from the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(args)
			if err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine) error {
				var stages []engine.StageSummary
				for _, k := range kinds {
					s, err := eng.Extract(ctx, k)
					stages = append(stages, s)
					if err != nil {
						renderStages(stages...)
						return err
					}
				}
				renderStages(stages...)
				return nil
			})(cmd, args)
		},
	}
}

// idsCmd creates the "ids" subcommand.
func idsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "Mine horse, jockey and trainer ids from the race results",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			ents, s, err := eng.Entities(ctx)
			if err != nil {
				return err
			}
			renderStages(s)
			for _, e := range discovery.Entities {
				fmt.Printf("%-8s %d\n", e, len(ents[e]))
			}
			return nil
		}),
	}
}

// normalizeCmd creates the "normalize" subcommand.
func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [raw_race|raw_race_info|raw_race_return|raw_horse...]",
		Short: "Write normalized tables from the combined raw tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(args)
			if err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, eng *engine.Engine) error {
				var stages []engine.StageSummary
				for _, k := range kinds {
					s, err := eng.Normalize(ctx, k)
					stages = append(stages, s)
					if err != nil {
						renderStages(stages...)
						return err
					}
				}
				renderStages(stages...)
				return nil
			})(cmd, args)
		},
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage for a date range",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			r, err := discovery.ParseRange(fromDate, toDate)
			if err != nil {
				return err
			}
			sum, err := eng.Run(ctx, r)
			if sum != nil {
				renderSummary(sum)
			}
			return err
		}),
	}
	addRangeFlags(cmd)
	return cmd
}

// statusCmd creates the "status" subcommand.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count the stored artifacts of every stage",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			counts, err := eng.Status(ctx)
			if err != nil {
				return err
			}
			renderStatus(counts)
			return nil
		}),
	}
}

// cleanCmd creates the "clean" subcommand.
func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove cached combined raw tables",
		RunE: withEngine(func(ctx context.Context, eng *engine.Engine) error {
			n, err := eng.Clean(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d cached tables\n", n)
			return nil
		}),
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keibastalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			renderConfig(cfg)
			return nil
		},
	}
}

func parseKinds(args []string) ([]extract.Kind, error) {
	if len(args) == 0 {
		return extract.Kinds, nil
	}
	kinds := make([]extract.Kind, 0, len(args))
	for _, a := range args {
		k, ok := extract.ParseKind(a)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", a)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// withEngine loads the config, builds the engine and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withEngine(fn func(ctx context.Context, eng *engine.Engine) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger := setupLogger(cfg)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				logger.Info("received signal, stopping after the current item", "signal", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		eng, err := engine.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := eng.Close(); err != nil {
				logger.Error("close error", "error", err)
			}
		}()

		if cfg.Metrics.Enabled {
			if err := eng.Metrics().StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Warn("failed to start metrics server", "error", err)
			}
		}

		return fn(ctx, eng)
	}
}

// setupLogger creates a structured logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
