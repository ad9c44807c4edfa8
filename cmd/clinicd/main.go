package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/clinic"
	"github.com/clinicore/clinicore/internal/domain/entitlement"
	"github.com/clinicore/clinicore/internal/domain/staff"
	"github.com/clinicore/clinicore/internal/domain/subscription"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/middleware"
	"github.com/clinicore/clinicore/internal/platform/notification"
	"github.com/clinicore/clinicore/internal/platform/payment"
)

func main() {
	root := &cobra.Command{
		Use:   "clinicd",
		Short: "Clinic platform API server",
	}

	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setup(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log := newLogger(cfg)

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, log, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, log, pool, nil
}

// app holds the wired services shared by the server and the sweep commands.
type app struct {
	cfg           *config.Config
	log           zerolog.Logger
	pool          *pgxpool.Pool
	catalog       *entitlement.Catalog
	clinics       *clinic.Service
	staff         *staff.Service
	subscriptions *subscription.Service
	gate          *entitlement.Gate
}

func buildApp(cfg *config.Config, log zerolog.Logger, pool *pgxpool.Pool) *app {
	catalog := entitlement.DefaultCatalog()

	clinicSvc := clinic.NewService(clinic.NewPGRepository(pool), log)

	notifier := notification.NewManager(
		&notification.MockEmailSender{}, &notification.MockSMSSender{},
		notification.NewTemplateEngine(),
	)

	var gateway payment.Gateway = payment.NewRazorpayClient(
		cfg.RazorpayKeyID, cfg.RazorpayKeySecret,
		payment.WithBaseURL(cfg.RazorpayBaseURL),
		payment.WithTimeout(cfg.GatewayTimeout()),
	)

	subSvc := subscription.NewService(
		subscription.NewPGRepository(pool),
		&clinicDirectory{svc: clinicSvc},
		gateway,
		subscription.NewSignatureVerifier(cfg.RazorpayKeySecret),
		catalog,
		&emailNotifier{mgr: notifier},
		log,
	)

	staffSvc := staff.NewService(staff.NewPGRepository(pool), subSvc, log)

	resolver := entitlement.NewRoleResolver(staffSvc, &ownerDirectory{svc: clinicSvc})
	gate := entitlement.NewGate(resolver, subSvc, entitlement.NewEvaluator(catalog))

	return &app{
		cfg:           cfg,
		log:           log,
		pool:          pool,
		catalog:       catalog,
		clinics:       clinicSvc,
		staff:         staffSvc,
		subscriptions: subSvc,
		gate:          gate,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := buildApp(cfg, log, pool)
			return runServer(ctx, a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.log))
	e.Use(middleware.Recovery(a.log))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", func(c echo.Context) error {
		if err := a.pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	var authn echo.MiddlewareFunc
	if a.cfg.JWTSecret != "" {
		authn = auth.JWTMiddleware(auth.JWTConfig{
			Secret: []byte(a.cfg.JWTSecret),
			Issuer: a.cfg.JWTIssuer,
		})
	} else {
		a.log.Warn().Msg("JWT_SECRET not set, using development auth")
		authn = auth.DevAuthMiddleware()
	}

	api := e.Group("/api/v1", authn)

	clinic.NewHandler(a.clinics).RegisterRoutes(api.Group("/clinics"))

	emr := api.Group("/emr")
	subscription.NewHandler(a.subscriptions).RegisterRoutes(emr)
	entitlement.NewHandler(a.gate, a.catalog).RegisterRoutes(emr)
	staff.NewHandler(a.staff).RegisterRoutes(emr, a.gate)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", a.cfg.Port).Str("env", a.cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case err := <-errCh:
		return err
	case <-stop.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	var dir string
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			_, log, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			_, _, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run scheduled subscription maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "expiry",
		Short: "Demote lapsed subscriptions and disable their clinics' EMR",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			cfg, log, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := buildApp(cfg, log, pool)
			n, err := a.subscriptions.RunExpirySweep(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("expired", n).Msg("expiry sweep complete")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reminders",
		Short: "Send expiry reminders for the 30, 7, and 1 day windows",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			cfg, log, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := buildApp(cfg, log, pool)
			sent, err := a.subscriptions.RunReminderSweep(ctx)
			if err != nil {
				return err
			}
			for _, r := range sent {
				log.Info().
					Str("clinic_id", r.ClinicID.String()).
					Str("plan", string(r.Plan)).
					Int("window", r.Window).
					Int("days_remaining", r.DaysRemaining).
					Msg("reminder sent")
			}
			log.Info().Int("sent", len(sent)).Msg("reminder sweep complete")
			return nil
		},
	})

	return cmd
}

// clinicDirectory adapts the clinic service to the subscription engine.
type clinicDirectory struct {
	svc *clinic.Service
}

func mapClinicErr(err error) error {
	if errors.Is(err, clinic.ErrNotFound) {
		return subscription.ErrClinicNotFound
	}
	return err
}

func (d *clinicDirectory) Info(ctx context.Context, clinicID uuid.UUID) (subscription.ClinicInfo, error) {
	c, err := d.svc.Get(ctx, clinicID)
	if err != nil {
		return subscription.ClinicInfo{}, mapClinicErr(err)
	}
	return subscription.ClinicInfo{Name: c.Name, Email: c.Email}, nil
}

func (d *clinicDirectory) OwnerID(ctx context.Context, clinicID uuid.UUID) (uuid.UUID, error) {
	owner, err := d.svc.OwnerID(ctx, clinicID)
	if err != nil {
		return uuid.Nil, mapClinicErr(err)
	}
	return owner, nil
}

func (d *clinicDirectory) GrantEMR(ctx context.Context, clinicID uuid.UUID, plan string, expiresAt time.Time) error {
	return mapClinicErr(d.svc.GrantEMR(ctx, clinicID, plan, expiresAt))
}

func (d *clinicDirectory) RevokeEMR(ctx context.Context, clinicID uuid.UUID, plan string) error {
	return mapClinicErr(d.svc.RevokeEMR(ctx, clinicID, plan))
}

// ownerDirectory adapts the clinic service to the entitlement resolver.
type ownerDirectory struct {
	svc *clinic.Service
}

func (d *ownerDirectory) OwnerID(ctx context.Context, clinicID uuid.UUID) (uuid.UUID, error) {
	owner, err := d.svc.OwnerID(ctx, clinicID)
	if errors.Is(err, clinic.ErrNotFound) {
		return uuid.Nil, entitlement.ErrClinicNotFound
	}
	return owner, err
}

// emailNotifier adapts the notification manager to the subscription engine.
type emailNotifier struct {
	mgr *notification.Manager
}

func (n *emailNotifier) Notify(ctx context.Context, templateID, recipient string, data map[string]string) error {
	_, err := n.mgr.SendTemplate(ctx, notification.TypeEmail, recipient, templateID, data)
	return err
}
