// Package monitor implements heartbeat ingestion, manual alert resolution
// and the periodic liveness sweep on top of the storage layer.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/models"
	"github.com/fuomag9/camera-sentinel/internal/notification"
	"github.com/fuomag9/camera-sentinel/internal/storage"
)

const (
	// DefaultResolvedLimit bounds the resolved alert list when no limit is given
	DefaultResolvedLimit = 10
	// MaxResolvedLimit is the largest resolved alert list served
	MaxResolvedLimit = 100
)

// Broadcaster signals connected observers that state changed
type Broadcaster interface {
	PublishChange()
}

// Notifier delivers an offline event to every target
type Notifier interface {
	NotifyOffline(ctx context.Context, cameraName string, occurredAt time.Time, targets []notification.Target) error
}

// ContactSource lists who should hear about offline cameras
type ContactSource interface {
	ListNotificationTargets(ctx context.Context) ([]notification.Target, error)
}

// Engine runs the request driven mutations: heartbeats, manual resolution
// and enrollment. Every mutation commits in a transaction scoped to a single
// camera and is broadcast only after the commit returned.
type Engine struct {
	db            *gorm.DB
	heartbeats    *storage.HeartbeatStore
	ledger        *storage.AlertLedger
	hub           Broadcaster
	resolvedLimit int
	logger        zerolog.Logger

	// Now is the engine clock
	Now func() time.Time
}

// NewEngine creates an engine. hub may be nil.
func NewEngine(db *gorm.DB, hub Broadcaster, resolvedLimit int, logger zerolog.Logger) *Engine {
	if resolvedLimit <= 0 {
		resolvedLimit = DefaultResolvedLimit
	}
	return &Engine{
		db:            db,
		heartbeats:    storage.NewHeartbeatStore(db),
		ledger:        storage.NewAlertLedger(db),
		hub:           hub,
		resolvedLimit: resolvedLimit,
		logger:        logger.With().Str("component", "engine").Logger(),
		Now:           time.Now,
	}
}

// ReceiveHeartbeat marks the camera online and auto-resolves its open alert,
// if any, in one transaction. Unknown cameras fail with storage.ErrNotFound.
func (e *Engine) ReceiveHeartbeat(ctx context.Context, cameraID int) (*models.Camera, error) {
	now := e.Now().UTC()

	var (
		camera   *models.Camera
		resolved *models.Alert
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		// camera row first, same lock order as the sweeper
		camera, err = e.heartbeats.WithTx(tx).SetOnline(ctx, cameraID, now)
		if err != nil {
			return err
		}
		resolved, err = e.ledger.WithTx(tx).ResolveForCamera(ctx, cameraID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := e.logger.Debug()
	if resolved != nil {
		log = e.logger.Info().Int("alert_id", resolved.ID)
	}
	log.Int("camera_id", cameraID).Str("camera", camera.Name).Msg("Heartbeat received")

	e.publish()
	return camera, nil
}

// ResolveAlert closes an open alert with an operator supplied reason
func (e *Engine) ResolveAlert(ctx context.Context, alertID int, reason string) (*models.Alert, error) {
	var alert *models.Alert
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		alert, err = e.ledger.WithTx(tx).Resolve(ctx, alertID, reason, e.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int("alert_id", alert.ID).Int("camera_id", alert.CameraID).Str("reason", reason).Msg("Alert resolved")
	e.publish()
	return alert, nil
}

// Enroll opens the initial alert of a newly registered camera, which starts
// out offline until its first heartbeat. A camera that already reported in
// fails with storage.ErrConflict.
func (e *Engine) Enroll(ctx context.Context, cameraID int) (*models.Alert, error) {
	var alert *models.Alert
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		heartbeats := e.heartbeats.WithTx(tx)
		// camera row first, same lock order as heartbeats and sweeps
		offline, err := heartbeats.LockOffline(ctx, cameraID)
		if err != nil {
			return err
		}
		if !offline {
			if _, err := heartbeats.Get(ctx, cameraID); err != nil {
				return err
			}
			return fmt.Errorf("camera %d is already online: %w", cameraID, storage.ErrConflict)
		}

		alert, err = e.ledger.WithTx(tx).Open(ctx, cameraID, e.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int("alert_id", alert.ID).Int("camera_id", cameraID).Msg("Camera enrolled")
	e.publish()
	return alert, nil
}

// ListOpenAlerts returns unresolved alerts, newest first
func (e *Engine) ListOpenAlerts(ctx context.Context) ([]models.AlertView, error) {
	return e.ledger.ListOpen(ctx)
}

// ListResolvedAlerts returns the most recently resolved alerts. A limit of
// zero or less uses the configured default; larger limits are capped.
func (e *Engine) ListResolvedAlerts(ctx context.Context, limit int) ([]models.AlertView, error) {
	if limit <= 0 {
		limit = e.resolvedLimit
	}
	if limit > MaxResolvedLimit {
		limit = MaxResolvedLimit
	}
	return e.ledger.ListResolved(ctx, limit)
}

func (e *Engine) publish() {
	if e.hub != nil {
		e.hub.PublishChange()
	}
}
