package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/config"
	"github.com/medconsult/medconsult/internal/domain/consent"
	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/domain/patient"
	"github.com/medconsult/medconsult/internal/domain/report"
	"github.com/medconsult/medconsult/internal/domain/scheduling"
	"github.com/medconsult/medconsult/internal/platform/audit"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
	"github.com/medconsult/medconsult/internal/platform/cache"
	"github.com/medconsult/medconsult/internal/platform/db"
	"github.com/medconsult/medconsult/internal/platform/httperr"
	"github.com/medconsult/medconsult/internal/platform/middleware"
	"github.com/medconsult/medconsult/internal/platform/notification"
	"github.com/medconsult/medconsult/internal/platform/phi"
	"github.com/medconsult/medconsult/internal/platform/reporting"
	"github.com/medconsult/medconsult/internal/platform/websocket"
	"github.com/medconsult/medconsult/internal/render"
	"github.com/medconsult/medconsult/internal/seed"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medconsult-server",
		Short: "Medical consultation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(calcCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).Status(ctx)
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
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.MigrationsDir
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the demo specialties and form templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			formsSvc := forms.NewService(
				forms.NewSpecialtyRepoPG(pool), forms.NewTemplateRepoPG(pool),
				forms.NewSectionRepoPG(pool), forms.NewFieldRepoPG(pool),
				cache.NewMemory(), cfg.CacheTTL, calc.Default)

			res, err := seed.Run(ctx, formsSvc, db.NewTransactor(pool), logger)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d specialties, %d sections, %d fields.\n", res.Specialties, res.Sections, res.Fields)
			if len(res.Skipped) > 0 {
				fmt.Printf("Already present: %s\n", strings.Join(res.Skipped, ", "))
			}
			return nil
		},
	}
}

func calcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calc <formula> [key=value...]",
		Short: "Evaluate a score or formula against the given answers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := evaluate(calc.Default, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// parseAnswers turns key=value arguments into an answer map. Values are kept
// as text; the engine parses numbers on demand.
func parseAnswers(args []string) (forms.AnswerMap, error) {
	answers := forms.AnswerMap{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		answers.Set(key, forms.Text(value))
	}
	return answers, nil
}

func evaluate(reg *calc.Registry, formula string, args []string) (string, error) {
	if err := reg.Validate(formula); err != nil {
		return "", err
	}
	answers, err := parseAnswers(args)
	if err != nil {
		return "", err
	}
	res, ok := reg.Compute(formula, answers)
	if !ok {
		missing := make([]string, 0)
		for _, dep := range reg.Dependencies(formula) {
			if _, present := answers.Text(dep); !present {
				missing = append(missing, dep)
			}
		}
		sort.Strings(missing)
		if len(missing) == 0 {
			return "", fmt.Errorf("%s could not be computed", formula)
		}
		return "", fmt.Errorf("%s needs: %s", formula, strings.Join(missing, ", "))
	}
	out := strconv.FormatFloat(math.Round(res.Value*100)/100, 'f', -1, 64)
	if res.Interpretation != "" {
		out += " (" + res.Interpretation + ")"
	}
	return out, nil
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Cache
	var store cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure redis")
		}
		defer rc.Close()
		store = rc
		logger.Info().Msg("using redis cache")
	}

	enc, err := phi.FromHexKey(cfg.PHIEncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure PHI encryption")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.Handler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Total-Count", "X-Blob-ID", "Content-Disposition"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware([]byte(cfg.JWTSecret)))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret:  []byte(cfg.JWTSecret),
			Issuer:  cfg.JWTIssuer,
			Skipper: auth.AuthSkipper,
		}))
	}

	api := e.Group("/api")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Patient data access log
	accessLog := audit.NewPG(pool)
	api.Use(audit.Middleware(accessLog, "/api", logger.With().Str("component", "audit").Logger()))
	audit.NewHandler(accessLog).RegisterRoutes(api)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.Check{Name: "cache", Ping: store.Ping}))

	// Realtime events
	hub := websocket.NewHub(logger.With().Str("component", "websocket").Logger())
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	// Notifications
	notifier := notification.NewNotifier(notification.NewTemplateEngine(),
		notification.LogSender{Logger: logger.With().Str("component", "notification").Logger()})
	notification.NewHandler(notifier).RegisterRoutes(api.Group("", auth.RequireRole(auth.RoleAdmin)))

	tx := db.NewTransactor(pool)
	blobs := blobstore.NewPG(pool)
	blobstore.NewHandler(blobs).RegisterRoutes(api)

	// Specialties and form templates
	formsSvc := forms.NewService(
		forms.NewSpecialtyRepoPG(pool), forms.NewTemplateRepoPG(pool),
		forms.NewSectionRepoPG(pool), forms.NewFieldRepoPG(pool),
		store, cfg.CacheTTL, calc.Default).WithLogger(logger)
	forms.NewHandler(formsSvc).RegisterRoutes(api)

	// Patients
	patientSvc := patient.NewService(patient.NewRepoPG(pool, enc), patient.NewAnonymousRepoPG(pool))
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	// Consultations
	engine := render.NewEngine(calc.Default)
	consultSvc := consultation.NewService(consultation.NewRepoPG(pool), tx, formsSvc,
		store, cfg.CacheTTL, hub, logger).WithCalculator(engine)
	consultation.NewHandler(consultSvc).RegisterRoutes(api)

	// Form sessions
	sessions := render.NewStore(cfg.SessionTTL)
	render.NewHandler(sessions, formsSvc, consultSvc, engine, logger).RegisterRoutes(api)

	// Appointments
	apptRepo := scheduling.NewRepoPG(pool)
	scheduling.NewHandler(scheduling.NewService(apptRepo, hub, logger).WithMessenger(notifier)).RegisterRoutes(api)
	reminders := scheduling.NewReminderJob(apptRepo, hub, notifier, cfg.ReminderLead, time.Local,
		logger.With().Str("component", "reminders").Logger())

	// Consents
	clinic := consent.Clinic{Name: cfg.ClinicName, Address: cfg.ClinicAddress}
	consentSvc := consent.NewService(consent.NewRepoPG(pool), blobs, tx, patientSvc, clinic, logger).
		WithMessenger(notifier)
	consent.NewHandler(consentSvc).RegisterRoutes(api)

	// Reports
	report.NewHandler(report.NewService(consultSvc, formsSvc, blobs, logger)).RegisterRoutes(api)
	reporting.NewHandler(pool).RegisterRoutes(api)

	// Background jobs
	scheduler := gocron.NewScheduler(time.Local)
	if _, err := reminders.Schedule(ctx, scheduler, cfg.ReminderInterval); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reminders")
	}
	if _, err := scheduler.Every(time.Minute).Do(func() {
		if n := sessions.Sweep(); n > 0 {
			logger.Debug().Int("expired", n).Msg("form sessions swept")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule session sweep")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Graceful shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
