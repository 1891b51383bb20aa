package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/pkg/logger"
)

// AuditEntry is the caller-facing shape of one audit event.
type AuditEntry struct {
	AccountID string
	Email     string
	Event     string
	Provider  string
	IP        string
	Detail    string
}

// AuditService appends security events to the audit log. Failures are
// logged and swallowed; auditing must never break an auth flow.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService builds the service.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// Record appends one event.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if entry.Event == "" {
		return
	}

	row := models.AuditLog{
		AccountID: entry.AccountID,
		Email:     entry.Email,
		Event:     entry.Event,
		Provider:  entry.Provider,
		IP:        entry.IP,
		Detail:    entry.Detail,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Error("append audit event", zap.String("event", entry.Event), zap.Error(err))
	}
}

// RecentForEmail returns up to limit newest events for an email.
func (s *AuditService) RecentForEmail(ctx context.Context, email string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PurgeOlderThan removes events past the retention window, returning
// the number of rows removed.
func (s *AuditService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}
