package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartsched/slotfinder/internal/config"
	"github.com/smartsched/slotfinder/internal/platform/db"
	"github.com/smartsched/slotfinder/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "slotfinder",
		Short:        "SMART Scheduling Links aggregator",
		SilenceUsage: true,
		Version:      version,
	}
	root.AddCommand(serveCmd(), syncCmd(), migrateCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", ":"+cfg.Port)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				ln.Close()
				return err
			}
			defer a.close(context.Background())

			logger.Info().
				Str("addr", ln.Addr().String()).
				Str("storage", cfg.Storage).
				Strs("publishers", a.engine.Publishers()).
				Dur("sync_interval", cfg.SyncInterval).
				Msg("starting server")
			err = a.serve(ctx, ln)
			logger.Info().Msg("server stopped")
			return err
		},
	}
}

// syncCmd runs one cycle and prints the result. When the built-in sandbox is
// the publisher it is served on an ephemeral loopback port for the run.
func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var ln net.Listener
			if cfg.SandboxEnabled() {
				ln, err = net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					return fmt.Errorf("listen: %w", err)
				}
				cfg.Port = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				if ln != nil {
					ln.Close()
				}
				return err
			}
			defer a.close(context.Background())

			if ln != nil {
				srv := &http.Server{Handler: a.echo}
				go func() { _ = srv.Serve(ln) }()
				defer srv.Close()
			}

			res := a.engine.Sync(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
				for _, s := range statuses {
					status, at := "pending", ""
					if s.Applied {
						status = "applied"
						at = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, at)
				}
				return w.Flush()
			})
		},
	})

	return cmd
}
