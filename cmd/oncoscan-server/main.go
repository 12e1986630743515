package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oncoscan/oncoscan/internal/config"
	"github.com/oncoscan/oncoscan/internal/platform/blobstore"
	"github.com/oncoscan/oncoscan/internal/platform/db"
	"github.com/oncoscan/oncoscan/internal/platform/events"
	"github.com/oncoscan/oncoscan/internal/platform/prediction"
	"github.com/oncoscan/oncoscan/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "oncoscan-server",
		Short: "Clinical records and diagnostic imaging API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(os.Stdout, statuses)
				return nil
			})
		},
	}
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is not supported by the built-in runner.")
			fmt.Println("Write a new forward migration that reverts the change instead.")
			return nil
		},
	})

	cmd.PersistentFlags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsesPostgres() {
		return fmt.Errorf("migrations need STORE_DRIVER=postgres")
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir, newLogger(cfg)))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func blobOptions(cfg *config.Config) blobstore.Options {
	return blobstore.Options{
		Backend:        cfg.BlobBackend,
		Dir:            cfg.BlobDir,
		MinIOEndpoint:  cfg.MinIOEndpoint,
		MinIOAccessKey: cfg.MinIOAccessKey,
		MinIOSecretKey: cfg.MinIOSecretKey,
		MinIOBucket:    cfg.MinIOBucket,
		MinIOUseSSL:    cfg.MinIOUseSSL,
		GCSBucket:      cfg.GCSBucket,
	}
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	ctx := context.Background()

	// Entity store
	var (
		stores server.Stores
		pinger db.Pinger
	)
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		if migrate || cfg.AutoMigrate {
			count, err := db.NewMigrator(pool, cfg.MigrationsDir, logger).Up(ctx)
			if err != nil {
				logger.Fatal().Err(err).Msg("migration failed")
			}
			logger.Info().Int("applied", count).Msg("migrations up to date")
		}
		stores = server.PostgresStores(pool)
		pinger = pool
	} else {
		logger.Warn().Msg("using in-memory entity store; records are lost on restart")
		stores = server.MemoryStores()
	}

	// Content area
	blobs, err := blobstore.Open(ctx, blobOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.BlobBackend).Msg("failed to open blob store")
	}
	if c, ok := blobs.(io.Closer); ok {
		defer c.Close()
	}
	logger.Info().Str("backend", cfg.BlobBackend).Msg("blob store ready")

	// Prediction cache
	var cache prediction.Cache
	if cfg.RedisURL != "" {
		rc, err := prediction.NewRedisCache(ctx, cfg.RedisURL, cfg.PredictionTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("prediction cache disabled")
		} else {
			defer rc.Close()
			cache = rc
			logger.Info().Dur("ttl", cfg.PredictionTTL).Msg("prediction cache enabled")
		}
	}

	// Workflow events
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kp.Close()
		publisher = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("event publishing enabled")
	}

	e := server.New(server.Deps{
		Config:    cfg,
		Logger:    logger,
		Stores:    stores,
		Blobs:     blobs,
		Predictor: prediction.NewHTTPClient(cfg.PredictionURL),
		Cache:     cache,
		Events:    publisher,
		DB:        pinger,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("prediction_url", cfg.PredictionURL).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
