package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"langschool_backend/internal/config"
	"langschool_backend/internal/database"
	"langschool_backend/internal/metrics"
	"langschool_backend/internal/notifier"
	"langschool_backend/internal/repositories"
	"langschool_backend/internal/router"
	"langschool_backend/internal/scheduler"
	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "langschool",
		Short:         "Language school catalogue and CRM backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serve := newServeCmd(&envFile)
	root.AddCommand(serve, newRecomputeCmd(&envFile))
	// Running the binary without a subcommand serves the API.
	root.RunE = serve.RunE
	return root
}

// app holds the wired services for one process.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	offerings services.OfferingService
	contacts  services.ContactService
	metrics   *metrics.Metrics
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			utils.LogError(err, "Failed to close database")
		}
	}
}

func buildApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	utils.InitLogger(cfg.LogFormat, cfg.LogLevel)

	a := &app{cfg: cfg, metrics: metrics.Default()}

	var offeringRepo repositories.OfferingRepository
	var contactRepo repositories.ContactRepository
	switch cfg.StoreBackend {
	case config.BackendMemory:
		utils.LogWarn("Using in-memory store, data is lost on restart")
		offeringRepo = repositories.NewMemoryOfferingRepository()
		contactRepo = repositories.NewMemoryContactRepository()
	default:
		a.db, err = database.InitDB(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		offeringRepo = repositories.NewOfferingRepository(a.db)
		contactRepo = repositories.NewContactRepository(a.db)
	}

	var alerts notifier.Notifier
	if len(cfg.ContactAlertEmails) == 0 {
		utils.LogWarn("CONTACT_ALERT_EMAILS is empty, contact form alerts are disabled")
	} else {
		alerts = notifier.NewRetryingNotifier(
			notifier.NewLogNotifier(cfg.ContactAlertFrom, cfg.ContactAlertEmails),
			cfg.NotifyMaxRetryElapsed,
			nil,
		)
	}

	a.offerings = services.NewOfferingService(offeringRepo, time.Now, a.metrics)
	a.contacts = services.NewContactService(contactRepo, alerts, a.metrics, services.ContactServiceConfig{
		ASCIIThreshold:  cfg.SpamASCIIThreshold,
		RequireLink:     cfg.SpamRequireLink,
		BannedCacheSize: cfg.BannedCacheSize,
		BannedCacheTTL:  cfg.BannedCacheTTL,
	})
	return a, nil
}

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if len(a.cfg.JWTSecret) == 0 {
		utils.LogWarn("JWT_SECRET is empty, authenticated routes will reject every request")
	}
	gin.SetMode(gin.ReleaseMode)
	engine := router.New(router.Dependencies{
		OfferingService:    a.offerings,
		ContactService:     a.contacts,
		Metrics:            a.metrics,
		JWTSecret:          a.cfg.JWTSecret,
		SafeIPs:            a.cfg.SafeIPs,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	summaries, err := scheduler.NewPriceSummaryScheduler(a.cfg.PriceSummaryCron, a.offerings, 0)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.LogInfo("Server starting", map[string]interface{}{"port": a.cfg.Port, "store": a.cfg.StoreBackend})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		summaries.Start()
		utils.LogInfo("Price summary scheduler started", map[string]interface{}{"schedule": a.cfg.PriceSummaryCron})
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return summaries.Stop(stopCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.LogInfo("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRecomputeCmd(envFile *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "recompute-summaries",
		Short: "Recompute every offering's price summary once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := buildApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			updated, err := a.offerings.RecomputeAllPriceSummaries(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("recomputed %d price summaries\n", updated)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall time limit")
	return cmd
}
