package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/emr/internal/config"
	"github.com/ehr/emr/internal/domain/identity"
	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/portal"
	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/internal/platform/auth"
	"github.com/ehr/emr/internal/platform/db"
	"github.com/ehr/emr/internal/platform/hipaa"
	"github.com/ehr/emr/internal/platform/middleware"
	"github.com/ehr/emr/internal/platform/notification"
	"github.com/ehr/emr/internal/platform/seed"
)

const (
	tokenIssuer          = "emr"
	revocationSweepEvery = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
	maxRequestBody       = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "emr-server",
		Short:        "EMR and patient portal API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the EMR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				for _, name := range applied {
					fmt.Printf("applied %s\n", name)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", len(applied))
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
		c.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
		cmd.AddCommand(c)
	}
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir, schema))
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the medication catalog and fixture patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			fakes, _ := cmd.Flags().GetInt("fake-patients")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			f, err := seed.Load(path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fake-patients") {
				if fakes < 0 {
					return errors.New("--fake-patients must not be negative")
				}
				f.FakePatients = fakes
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			monthly, err := scheduling.ParseMonthlyMode(cfg.MonthlyMode)
			if err != nil {
				return err
			}
			identitySvc := identity.NewService(identity.NewPatientRepoPG(pool))
			schedSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), scheduling.NewExpander(monthly, &logger))
			medSvc := medication.NewService(medication.NewPrescriptionRepoPG(pool), medication.NewCatalogRepoPG(pool))

			res, err := seed.NewSeeder(identitySvc, schedSvc, medSvc, logger).Run(ctx, f)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Printf("catalog entries: %d, patients: %d (skipped %d), appointments: %d, prescriptions: %d\n",
				res.Catalog, res.Patients, res.SkippedPatients, res.Appointments, res.Prescriptions)
			return nil
		},
	}
	cmd.Flags().String("file", "seed.yaml", "Path to the seed fixture file")
	cmd.Flags().Int("fake-patients", 0, "Generate this many extra patients (overrides fake_patients)")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.Level(parseLevel(cfg.LogLevel))
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	monthly, err := scheduling.ParseMonthlyMode(cfg.MonthlyMode)
	if err != nil {
		return err
	}

	// Domain services
	identitySvc := identity.NewService(identity.NewPatientRepoPG(pool))
	schedSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), scheduling.NewExpander(monthly, &logger))
	medSvc := medication.NewService(medication.NewPrescriptionRepoPG(pool), medication.NewCatalogRepoPG(pool))
	portalSvc := portal.NewService(identitySvc, schedSvc, medSvc, portal.Horizons{
		DashboardDays: cfg.DashboardDays,
		ListMonths:    cfg.ListMonths,
	})

	// Auth
	tokens := auth.NewTokenIssuer(cfg.Secret(), tokenIssuer, cfg.TokenTTL)
	revoked := auth.NewRevocationStore(revocationSweepEvery)
	defer revoked.Close()
	authn := auth.NewAuthenticator(identitySvc, auth.AdminCredentials{
		Email:        cfg.AdminEmail,
		PasswordHash: cfg.AdminPasswordHash,
	}, tokens)
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token run as admin")
	}

	// Reminders
	reminders := notification.NewStore()
	sweeper := notification.NewSweeper(reminders, notification.NewTemplateEngine(), schedSvc, medSvc, cfg.DashboardDays, logger)
	scheduler, err := notification.NewScheduler(sweeper, cfg.ReminderCron)
	if err != nil {
		return err
	}

	accessLog := hipaa.NewRecorder(hipaa.NewRepoPG(pool))

	e := newServer(cfg, logger, tokens, revoked, accessLog)

	e.GET("/health", db.LivenessHandler)
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	auth.NewHandler(authn, revoked).RegisterRoutes(apiV1, middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.LoginRateLimitRPS,
		BurstSize:         cfg.LoginRateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)
	medication.NewHandler(medSvc).RegisterRoutes(apiV1)
	portal.NewHandler(portalSvc).RegisterRoutes(apiV1)
	notification.NewHandler(reminders, sweeper).RegisterRoutes(apiV1)
	hipaa.NewHandler(accessLog).RegisterRoutes(apiV1)

	scheduler.Start()
	logger.Info().Str("schedule", cfg.ReminderCron).Msg("reminder sweep scheduled")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the global middleware chain.
func newServer(cfg *config.Config, logger zerolog.Logger, tokens *auth.TokenIssuer, revoked *auth.RevocationStore, audit middleware.AuditRecorder) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(maxRequestBody))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	e.Use(auth.SessionMiddleware(auth.MiddlewareConfig{
		Tokens:  tokens,
		Revoked: revoked,
		Skipper: auth.AuthSkipper,
		Dev:     cfg.IsDev(),
	}))
	e.Use(middleware.Audit(logger, audit))
	return e
}
