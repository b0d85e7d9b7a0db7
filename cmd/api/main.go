package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account"
	"github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/auth"
	"github.com/ovaphlow/pitchfork/service-account/internal/config"
	"github.com/ovaphlow/pitchfork/service-account/internal/credential"
	"github.com/ovaphlow/pitchfork/service-account/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-account/internal/mailinglist"
	"github.com/ovaphlow/pitchfork/service-account/internal/router"
	"github.com/ovaphlow/pitchfork/service-account/internal/scheduler"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

func main() {
	// load .env file if present so the environment picks values from it
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-account")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("load config: %v", err)
	}

	// init db
	db, err := database.Connect(cfg.Database())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classYears := repo.NewClassYearRepo(db)
	accounts := repo.NewAccountRepo(db)
	// accounts references class_years
	if err := classYears.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure class_years table: %v", err)
	}
	if err := accounts.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure accounts table: %v", err)
	}

	sender, closeSender := newMailSender(cfg, sugar)
	defer closeSender()
	m, err := mailer.New(sender, cfg.MailFrom, cfg.SiteName)
	if err != nil {
		sugar.Fatalf("init mailer: %v", err)
	}

	svc := account.NewService(
		accounts,
		classYears,
		m,
		mailinglist.NewClient(cfg.MailingListURL, cfg.MailingListAPIKey, sugar),
		utilities.NewIDGenerator(cfg.SnowflakeNode),
		account.Options{PublicHost: cfg.PublicHost, HookTimeout: cfg.HookTimeout},
		sugar,
	)
	hasher := credential.BcryptHasher{Cost: cfg.BcryptCost}

	if cfg.AdminJWTSecret == "" {
		sugar.Warn("ADMIN_JWT_SECRET is empty; admin endpoints will reject every request")
	}
	verifier := auth.NewAdminVerifier(cfg.AdminJWTSecret)

	jobs := scheduler.New(svc, cfg.HookTimeout*2, sugar)
	if _, err := jobs.Start(cfg.ApprovalDigestSchedule); err != nil {
		sugar.Fatalf("schedule approval digest: %v", err)
	}

	// mount http server
	headers := router.SecurityHeaders{
		ContentSecurityPolicy: cfg.ContentSecurityPolicy,
		HSTSMaxAge:            cfg.HSTSMaxAge,
	}
	handler := router.RegisterRoutes(sugar, account.NewHandler(svc, hasher, sugar), verifier, headers)
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	select {
	case <-jobs.Stop().Done():
	case <-doneCtx.Done():
		sugar.Warn("approval digest job still running at shutdown")
	}

	sugar.Info("goodbye")
}

// newMailSender publishes to RabbitMQ when RABBITMQ_URL is set and only logs
// otherwise.
func newMailSender(cfg config.Config, sugar *zap.SugaredLogger) (mailer.Sender, func()) {
	if cfg.RabbitMQURL == "" {
		sugar.Warn("RABBITMQ_URL is empty; mail will be logged, not delivered")
		return mailer.NewLogSender(sugar), func() {}
	}
	s, err := mailer.NewAMQPSender(cfg.RabbitMQURL, cfg.MailExchange)
	if err != nil {
		sugar.Fatalf("connect rabbitmq: %v", err)
	}
	return s, s.Close
}
