package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/documenso/documenso-sub011/internal/api"
	"github.com/documenso/documenso-sub011/internal/app"
	iauth "github.com/documenso/documenso-sub011/internal/auth"
	"github.com/documenso/documenso-sub011/internal/database"
	"github.com/documenso/documenso-sub011/internal/pdf/formdoc"
	"github.com/documenso/documenso-sub011/internal/services"
	"github.com/documenso/documenso-sub011/internal/storage"
	"github.com/documenso/documenso-sub011/pkg/logger"
	"github.com/documenso/documenso-sub011/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	SessionSvc *iauth.SessionService
	AuditSvc   *services.AuditService
	Reminders  *services.ReminderService
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, and the HTTP router.
func bootstrapRuntime(_ context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	blobs, err := storage.NewGormBlobStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise blob store: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	baseURL := strings.TrimRight(cfg.Server.BaseURL, "/")
	engine := formdoc.NewEngine()

	sealSvc, err := services.NewSealService(stack.DB, blobs, engine, stack.AuditSvc, mailer,
		services.WithSealBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise seal service: %w", err)
	}

	signingSvc, err := services.NewSigningService(stack.DB, stack.AuditSvc, sealSvc, mailer,
		services.WithSigningBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise signing service: %w", err)
	}

	envelopeSvc, err := services.NewEnvelopeService(stack.DB, blobs, engine, stack.AuditSvc, mailer,
		services.WithEnvelopeBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise envelope service: %w", err)
	}

	directSvc, err := services.NewDirectTemplateService(stack.DB, blobs, engine, signingSvc, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise direct template service: %w", err)
	}

	gateway, err := services.NewTokenGateway(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise token gateway: %w", err)
	}

	if rem := cfg.Signing.Reminders; rem.Enabled {
		stack.Reminders, err = services.NewReminderService(stack.DB, stack.AuditSvc, mailer,
			services.WithReminderBaseURL(baseURL),
			services.WithReminderInterval(rem.Interval))
		if err != nil {
			return nil, fmt.Errorf("initialise reminder service: %w", err)
		}
		if err := stack.Reminders.Start(rem.Schedule); err != nil {
			return nil, fmt.Errorf("start reminder schedule: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		Sessions:  stack.SessionSvc,
		Envelopes: envelopeSvc,
		Sealer:    sealSvc,
		Signing:   signingSvc,
		Direct:    directSvc,
		Audit:     stack.AuditSvc,
		Gateway:   gateway,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(_ context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Reminders != nil {
		s.Reminders.Stop()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
