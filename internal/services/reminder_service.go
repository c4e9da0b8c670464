package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/pkg/logger"
	"github.com/documenso/documenso-sub011/pkg/mail"
	"github.com/documenso/documenso-sub011/pkg/metrics"
)

// ReminderOption customises ReminderService behaviour.
type ReminderOption func(*ReminderService)

// WithReminderClock injects a custom clock, primarily for testing.
func WithReminderClock(clock func() time.Time) ReminderOption {
	return func(s *ReminderService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithReminderBaseURL configures the base URL used in reminder hyperlinks.
func WithReminderBaseURL(url string) ReminderOption {
	return func(s *ReminderService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithReminderInterval sets how long a recipient may sit idle before being
// nudged again.
func WithReminderInterval(interval time.Duration) ReminderOption {
	return func(s *ReminderService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// ReminderService periodically nudges actionable recipients who have not
// signed. It also keeps the pending-envelope gauge fresh.
type ReminderService struct {
	db       *gorm.DB
	audit    *AuditService
	mailer   mail.Mailer
	baseURL  string
	interval time.Duration
	now      func() time.Time

	cron *cron.Cron
}

// NewReminderService constructs a ReminderService.
func NewReminderService(db *gorm.DB, audit *AuditService, mailer mail.Mailer, opts ...ReminderOption) (*ReminderService, error) {
	if db == nil {
		return nil, errors.New("reminder service: db is required")
	}
	if audit == nil {
		return nil, errors.New("reminder service: audit service is required")
	}

	service := &ReminderService{
		db:       db,
		audit:    audit,
		mailer:   mailer,
		interval: 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Start schedules the reminder sweep with the given cron expression and
// begins running it in the background.
func (s *ReminderService) Start(spec string) error {
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			logger.WithModule("reminder").Error("reminder sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("reminder service: schedule: %w", err)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop halts the background schedule, waiting for a running sweep to finish.
func (s *ReminderService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// RunOnce executes a single reminder sweep and reports how many reminders
// went out. Exposed so tests and operators can trigger a sweep directly.
func (s *ReminderService) RunOnce(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	var envelopes []models.Envelope
	err := s.db.WithContext(ctx).
		Preload("Recipients").
		Where("type = ? AND status = ?", models.EnvelopeTypeDocument, models.EnvelopeStatusPending).
		Find(&envelopes).Error
	if err != nil {
		return 0, fmt.Errorf("reminder service: load pending envelopes: %w", err)
	}

	metrics.PendingEnvelopes.Set(float64(len(envelopes)))

	cutoff := s.now().Add(-s.interval)
	sent := 0

	for i := range envelopes {
		envelope := &envelopes[i]
		for _, recipient := range ActionableRecipients(envelope.SigningOrderMode, envelope.Recipients) {
			if recipient.SendStatus != models.SendStatusSent {
				continue
			}
			if recipient.UpdatedAt.After(cutoff) {
				continue
			}
			if err := s.remind(ctx, envelope, recipient); err != nil {
				logger.WithModule("reminder").Warn("reminder failed",
					zap.String("envelope_id", envelope.ID),
					zap.String("recipient_id", recipient.ID),
					zap.Error(err),
				)
				continue
			}
			sent++
		}
	}

	return sent, nil
}

func (s *ReminderService) remind(ctx context.Context, envelope *models.Envelope, recipient models.Recipient) error {
	if err := mail.Notify(ctx, s.mailer, recipient.Email, mail.TemplateSigningReminder, mail.TemplatePayload{
		RecipientName: recipient.Name,
		EnvelopeTitle: envelope.Title,
		SigningLink:   signingLink(s.baseURL, recipient.Token),
	}); err != nil {
		return err
	}

	// Touching the row restarts the recipient's idle clock.
	if err := s.db.WithContext(ctx).Model(&models.Recipient{}).
		Where("id = ?", recipient.ID).
		Update("updated_at", s.now()).Error; err != nil {
		return err
	}

	return s.audit.Append(ctx, AuditEntry{
		EnvelopeID:  envelope.ID,
		Type:        models.AuditEventReminderSent,
		RecipientID: strPtr(recipient.ID),
		Email:       recipient.Email,
		Name:        recipient.Name,
	})
}
