package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/models"
)

// AlertLedger enforces at most one unresolved alert per camera
type AlertLedger struct {
	db *gorm.DB
}

// NewAlertLedger creates an alert ledger on db
func NewAlertLedger(db *gorm.DB) *AlertLedger {
	return &AlertLedger{db: db}
}

// WithTx returns a ledger bound to an open transaction
func (l *AlertLedger) WithTx(tx *gorm.DB) *AlertLedger {
	return &AlertLedger{db: tx}
}

// Open inserts a new alert for the camera unless one is already open.
// Run it in the same transaction as the status change that triggered it;
// the partial unique index on alerts backs up the check.
func (l *AlertLedger) Open(ctx context.Context, cameraID int, openedAt time.Time) (*models.Alert, error) {
	var open int64
	err := l.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("camera_id = ? AND is_resolved = ?", cameraID, false).
		Count(&open).Error
	if err != nil {
		return nil, ioError("check open alert", err)
	}
	if open > 0 {
		return nil, fmt.Errorf("camera %d already has an open alert: %w", cameraID, ErrConflict)
	}

	alert := &models.Alert{
		CameraID: cameraID,
		OpenedAt: openedAt,
	}
	if err := l.db.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, ioError("open alert", err)
	}
	return alert, nil
}

// ResolveForCamera closes the open alert of a camera with the
// auto-resolution reason. It returns nil, nil when nothing was open.
func (l *AlertLedger) ResolveForCamera(ctx context.Context, cameraID int, resolvedAt time.Time) (*models.Alert, error) {
	var open []models.Alert
	err := l.db.WithContext(ctx).
		Where("camera_id = ? AND is_resolved = ?", cameraID, false).
		Limit(1).
		Find(&open).Error
	if err != nil {
		return nil, ioError("find open alert", err)
	}
	if len(open) == 0 {
		return nil, nil
	}

	return l.resolve(ctx, open[0].ID, models.AutoResolutionReason, resolvedAt)
}

// Resolve closes an open alert with an operator supplied reason. An empty
// reason fails with ErrValidation before anything is written; an unknown or
// already resolved alert fails with ErrNotFound.
func (l *AlertLedger) Resolve(ctx context.Context, alertID int, reason string, resolvedAt time.Time) (*models.Alert, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("resolution reason is required: %w", ErrValidation)
	}
	return l.resolve(ctx, alertID, reason, resolvedAt)
}

func (l *AlertLedger) resolve(ctx context.Context, alertID int, reason string, resolvedAt time.Time) (*models.Alert, error) {
	result := l.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND is_resolved = ?", alertID, false).
		Updates(map[string]interface{}{
			"is_resolved":       true,
			"resolved_at":       resolvedAt,
			"resolution_reason": reason,
		})
	if result.Error != nil {
		return nil, ioError("resolve alert", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("open alert %d: %w", alertID, ErrNotFound)
	}

	var alert models.Alert
	if err := l.db.WithContext(ctx).First(&alert, alertID).Error; err != nil {
		return nil, ioError("reload alert", err)
	}
	return &alert, nil
}

// ListOpen returns unresolved alerts, newest first
func (l *AlertLedger) ListOpen(ctx context.Context) ([]models.AlertView, error) {
	var alerts []models.AlertView
	err := l.viewQuery(ctx).
		Where("alerts.is_resolved = ?", false).
		Order("alerts.opened_at DESC, alerts.id DESC").
		Scan(&alerts).Error
	if err != nil {
		return nil, ioError("list open alerts", err)
	}
	return alerts, nil
}

// ListResolved returns up to limit resolved alerts, most recently resolved first
func (l *AlertLedger) ListResolved(ctx context.Context, limit int) ([]models.AlertView, error) {
	var alerts []models.AlertView
	err := l.viewQuery(ctx).
		Where("alerts.is_resolved = ?", true).
		Order("alerts.resolved_at DESC, alerts.id DESC").
		Limit(limit).
		Scan(&alerts).Error
	if err != nil {
		return nil, ioError("list resolved alerts", err)
	}
	return alerts, nil
}

func (l *AlertLedger) viewQuery(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).
		Table("alerts").
		Select("alerts.*, cameras.name AS camera_name").
		Joins("JOIN cameras ON cameras.id = alerts.camera_id")
}
