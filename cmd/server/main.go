package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/api"
	"github.com/rajkayal/hubauth/internal/app"
	"github.com/rajkayal/hubauth/internal/app/maintenance"
	iauth "github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/auth/providers"
	"github.com/rajkayal/hubauth/internal/database"
	"github.com/rajkayal/hubauth/internal/notify"
	"github.com/rajkayal/hubauth/internal/services"
	"github.com/rajkayal/hubauth/pkg/crypto"
	"github.com/rajkayal/hubauth/pkg/logger"
	"github.com/rajkayal/hubauth/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hubauth-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store, err := otp.NewStore(db)
	if err != nil {
		return fmt.Errorf("initialise otp store: %w", err)
	}

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	dispatcher, err := buildDispatcher(cfg, log)
	if err != nil {
		return err
	}

	policy := cfg.Auth.OTPPolicy()
	otpSvc, err := services.NewOTPService(db, store, policy, dispatcher, auditSvc)
	if err != nil {
		return fmt.Errorf("initialise otp service: %w", err)
	}
	otpSvc.ExposePreview = cfg.Auth.OTP.ExposePreview

	accountSvc, err := services.NewAccountService(db, otpSvc, auditSvc)
	if err != nil {
		return fmt.Errorf("initialise account service: %w", err)
	}

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	local, err := providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return fmt.Errorf("initialise local provider: %w", err)
	}

	registry, err := buildProviderRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	stepUp, err := iauth.NewStepUpService(db, local, registry, otpSvc, jwtService, auditSvc, cfg.Auth.AuthPolicy())
	if err != nil {
		return fmt.Errorf("initialise step-up service: %w", err)
	}

	cleaner := maintenance.NewCleaner(store, policy.ExpiryWindow, auditSvc)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(cfg, api.Deps{
		DB:       db,
		JWT:      jwtService,
		StepUp:   stepUp,
		Accounts: accountSvc,
		OTP:      otpSvc,
		Audit:    auditSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database.DatabaseOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	seed := database.SeedConfig{
		AdminEmail: cfg.Auth.Seed.AdminEmail,
		AdminName:  cfg.Auth.Seed.AdminName,
	}
	if cfg.Auth.Seed.AdminPassword != "" {
		hash, hashErr := crypto.HashPassword(cfg.Auth.Seed.AdminPassword)
		if hashErr != nil {
			return nil, fmt.Errorf("hash seed password: %w", hashErr)
		}
		seed.AdminPasswordHash = hash
	}

	if err := database.Prepare(db, seed); err != nil {
		return nil, fmt.Errorf("prepare database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable during shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}

func buildDispatcher(cfg *app.Config, log *zap.Logger) (notify.Dispatcher, error) {
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; one-time codes are written to the log")
		return notify.NewLogDispatcher(), nil
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}

	dispatcher, err := notify.NewEmailDispatcher(mailer, cfg.Email.SMTP.From)
	if err != nil {
		return nil, fmt.Errorf("initialise email dispatcher: %w", err)
	}
	return dispatcher, nil
}

func buildProviderRegistry(ctx context.Context, cfg *app.Config, log *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if cfg.Auth.Federated.Google.Enabled {
		verifier, err := providers.NewGoogleVerifier(ctx, providers.OIDCConfig{
			ClientID: cfg.Auth.Federated.Google.ClientID,
			Issuer:   cfg.Auth.Federated.Google.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise google verifier: %w", err)
		}
		registry.Register(verifier)
		log.Info("federated provider enabled", zap.String("provider", verifier.Provider()))
	}

	if cfg.Auth.Federated.Apple.Enabled {
		verifier, err := providers.NewAppleVerifier(ctx, providers.OIDCConfig{
			ClientID: cfg.Auth.Federated.Apple.ClientID,
			Issuer:   cfg.Auth.Federated.Apple.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise apple verifier: %w", err)
		}
		registry.Register(verifier)
		log.Info("federated provider enabled", zap.String("provider", verifier.Provider()))
	}

	if cfg.Auth.Federated.Facebook.Enabled {
		verifier, err := providers.NewFacebookVerifier(providers.FacebookConfig{
			AppID:     cfg.Auth.Federated.Facebook.AppID,
			AppSecret: cfg.Auth.Federated.Facebook.AppSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise facebook verifier: %w", err)
		}
		registry.Register(verifier)
		log.Info("federated provider enabled", zap.String("provider", verifier.Provider()))
	}

	return registry, nil
}
