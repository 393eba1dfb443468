package main

import (
	"backstage/internal/auth"
	"backstage/internal/config"
	"backstage/internal/database"
	"backstage/internal/handlers"
	"backstage/internal/logging"
	"backstage/internal/mail"
	"backstage/internal/ratelimit"
	"backstage/internal/router"
	"backstage/internal/server"
	"backstage/internal/tracing"
	"backstage/internal/twofactor"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Setup (Logging & Config)
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Fehler beim Laden der Konfiguration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)
	if envErr != nil {
		slog.Debug("Keine .env-Datei geladen (ignoriert)", slog.Any("error", envErr))
	}

	var traceOut io.Writer
	if cfg.TracingStdout {
		traceOut = os.Stderr
	}
	tp, err := tracing.InitTracerProvider("backstage-auth", cfg.Environment, traceOut)
	if err != nil {
		slog.Error("Fehler beim Initialisieren des Tracings", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Abhängigkeiten (Secrets, DB, Redis)
	secrets, err := auth.LoadSecrets(cfg)
	if err != nil {
		slog.Error("Fehler beim Laden der Secrets", slog.Any("error", err), slog.Bool("vault", cfg.UseVault()))
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.ConnectDB(ctx, secrets.DatabaseURL)
	if err != nil {
		slog.Error("Fehler beim Verbinden zur Datenbank", slog.Any("error", err), slog.Bool("vault", cfg.UseVault()))
		os.Exit(1)
	}

	dbName, err := database.DatabaseName(secrets.DatabaseURL)
	if err != nil {
		slog.Error("Ungültige Datenbank-URL", slog.Any("error", err))
		os.Exit(1)
	}
	if err := database.RunMigrations(db.DB.DB, dbName); err != nil {
		slog.Error("Fehler bei der Datenbank-Migration", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := server.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Redis nicht erreichbar", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Repositories & Services
	userRepo := database.NewUserRepository(db.DB)
	profileRepo := database.NewSecurityProfileRepository(db.DB)

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.SMTPHost != "" {
		sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		mailer = mail.NewBreakerMailer(sender, mail.BreakerSettings{})
	} else {
		slog.Warn("SMTP_HOST nicht gesetzt: Recovery-Codes werden nicht verschickt")
	}

	twoFactorService := twofactor.NewService(
		userRepo,
		profileRepo,
		auth.NewTOTP(cfg.OTPIssuerName),
		mailer,
		twofactor.Settings{
			EnrollSkew:      cfg.TOTPEnrollSkew,
			ChallengeSkew:   cfg.TOTPChallengeSkew,
			RecoveryCodeTTL: cfg.RecoveryCodeTTL,
		},
		twofactor.WithIssueThrottle(ratelimit.NewCooldown(rdb, "backstage:cooldown", cfg.RecoveryRequestCooldown)),
	)

	deps := router.HandlerDependencies{
		UserRepo:  userRepo,
		TwoFactor: twoFactorService,
		HealthChecks: []handlers.HealthCheck{
			{Name: "mysql", Pinger: db},
			{Name: "redis", Pinger: handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })},
		},
		AttemptLimiter: ratelimit.NewAttemptLimiter(rdb, "backstage:attempts", cfg.AttemptLimit, cfg.AttemptWindow),
		PrivateKey:     secrets.PrivateKey,
		PublicKey:      secrets.PublicKey,
		Config:         cfg,
	}

	// 4. Router & Server
	r := router.SetupRouter(deps)

	srv := server.NewServer(cfg.Port, r)
	metricsSrv := server.NewMetricsServer(cfg.MetricsPort, cfg.MetricsAllowedIPs)

	// 5. Starten & Graceful Shutdown
	server.StartAndShutdown(srv, metricsSrv,
		server.Resource{Name: "tracer", Close: tp.Shutdown},
		server.Resource{Name: "mysql", Close: func(context.Context) error { return db.Close() }},
		server.Resource{Name: "redis", Close: func(context.Context) error { return rdb.Close() }},
		server.Resource{Name: "logfile", Close: func(context.Context) error { return logCloser.Close() }},
	)
}
