package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"searchsync/internal/cache"
	"searchsync/internal/catalog"
	"searchsync/internal/settings"

	"github.com/spf13/cobra"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger) // Set global logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		slog.Error("Application terminated with error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "searchsync",
		Short:         "Keep remote search indices in sync with the site database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "path to the catalog file")

	// withApp opens the application for one command and closes it afterwards.
	withApp := func(cmd *cobra.Command, withQueue bool, fn func(ctx context.Context, app *application) error) error {
		ctx := cmd.Context()
		app, err := open(ctx, cfg, logger, withQueue)
		if err != nil {
			return err
		}
		defer app.close(context.Background())
		return fn(ctx, app)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "worker",
			Short: "Consume export and delete jobs from the event bus",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				logger.Info("Starting searchsync worker", "env", cfg.Env)
				return withApp(cmd, true, func(ctx context.Context, app *application) error {
					return app.runWorker(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "api",
			Short: "Serve the admin API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				logger.Info("Starting searchsync admin API", "env", cfg.Env)
				return withApp(cmd, true, func(ctx context.Context, app *application) error {
					return app.runAPI(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "indices",
			Short: "List the indices of the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cat, err := catalog.Load(cfg.CatalogFile)
				if err != nil {
					return err
				}
				for _, idx := range cat.Indices {
					kind := idx.Class
					if idx.CrawlBased {
						kind = "crawl based"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", idx.Name, kind)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create-index <index>",
			Short: "Provision the engine of an index and recreate its document type",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, false, func(ctx context.Context, app *application) error {
					engine, docType, err := app.service.CreateIndex(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "engine %s (%s), document type %s (%s)\n", engine.Name, engine.ID, docType.Name, docType.ID)
					return nil
				})
			},
		},
		newReindexCmd(withApp),
		newRecordCmd("export", "Export one record", withApp, func(ctx context.Context, app *application, index, class string, id int64) (string, error) {
			queued, err := app.service.ScheduleExport(ctx, index, class, id)
			if err != nil {
				return "", err
			}
			if !queued {
				return "record is not published, nothing to export", nil
			}
			return "export scheduled", nil
		}),
		newRecordCmd("delete", "Remove one record from the index", withApp, func(ctx context.Context, app *application, index, class string, id int64) (string, error) {
			return "delete scheduled", app.service.ScheduleDelete(ctx, index, class, id)
		}),
		newSettingsCmd(cfg, logger),
	)
	return root
}

type appRunner func(cmd *cobra.Command, withQueue bool, fn func(ctx context.Context, app *application) error) error

func newReindexCmd(withApp appRunner) *cobra.Command {
	var (
		class  string
		inline bool
	)
	cmd := &cobra.Command{
		Use:   "reindex <index>",
		Short: "Schedule a bulk export of every visible record of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, !inline, func(ctx context.Context, app *application) error {
				jobs, err := app.service.ScheduleBulkExport(ctx, args[0], class)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d batches scheduled\n", jobs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "class to export, defaults to the index's class")
	cmd.Flags().BoolVar(&inline, "inline", false, "run the batches in this process instead of publishing them")
	return cmd
}

func newRecordCmd(name, short string, withApp appRunner, fn func(ctx context.Context, app *application, index, class string, id int64) (string, error)) *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   name + " <index> <class> <id>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("record id %q must be a positive integer", args[2])
			}
			return withApp(cmd, !inline, func(ctx context.Context, app *application) error {
				msg, err := fn(ctx, app, args[0], args[1], id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "run the job in this process instead of publishing it")
	return cmd
}

func newSettingsCmd(cfg Config, logger *slog.Logger) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the search service settings stored in Redis",
	}

	withStore := func(ctx context.Context, fn func(store *settings.Redis) error) error {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is not set")
		}
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		return fn(settings.NewRedis(rdb, cfg.SettingsKey))
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(store *settings.Redis) error {
				v, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "api_key\t%s\nengine_name\t%s\n", mask(v.APIKey), v.EngineName)
				return nil
			})
		},
	}

	var values settings.Values
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the API key and engine name; empty flags clear the stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(store *settings.Redis) error {
				if err := store.Save(cmd.Context(), values); err != nil {
					return err
				}
				logger.Info("Settings saved", "key", cfg.SettingsKey, "engine_name", values.EngineName)
				return nil
			})
		},
	}
	set.Flags().StringVar(&values.APIKey, "api-key", "", "search service API key")
	set.Flags().StringVar(&values.EngineName, "engine-name", "", "engine name overriding the index name")

	settingsCmd.AddCommand(show, set)
	return settingsCmd
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
