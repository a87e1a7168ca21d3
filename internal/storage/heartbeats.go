package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/models"
)

// HeartbeatStore records last-seen timestamps and online/offline status
// of cameras. It holds no policy.
type HeartbeatStore struct {
	db *gorm.DB
}

// NewHeartbeatStore creates a heartbeat store on db
func NewHeartbeatStore(db *gorm.DB) *HeartbeatStore {
	return &HeartbeatStore{db: db}
}

// WithTx returns a store bound to an open transaction
func (s *HeartbeatStore) WithTx(tx *gorm.DB) *HeartbeatStore {
	return &HeartbeatStore{db: tx}
}

// Get returns the camera with its current status and last heartbeat
func (s *HeartbeatStore) Get(ctx context.Context, cameraID int) (*models.Camera, error) {
	var camera models.Camera
	err := s.db.WithContext(ctx).Where("id = ?", cameraID).First(&camera).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("camera %d: %w", cameraID, ErrNotFound)
		}
		return nil, ioError("get camera", err)
	}
	return &camera, nil
}

// SetOnline marks the camera online with last_heartbeat = now and returns
// the updated row
func (s *HeartbeatStore) SetOnline(ctx context.Context, cameraID int, now time.Time) (*models.Camera, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Camera{}).
		Where("id = ?", cameraID).
		Updates(map[string]interface{}{
			"status":         models.StatusOnline,
			"last_heartbeat": now,
		})
	if result.Error != nil {
		return nil, ioError("set camera online", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("camera %d: %w", cameraID, ErrNotFound)
	}
	return s.Get(ctx, cameraID)
}

// MarkOffline flips an online camera to offline, but only while its last
// heartbeat is still older than cutoff. It reports false when a heartbeat
// arrived in the meantime and the camera was left untouched.
func (s *HeartbeatStore) MarkOffline(ctx context.Context, cameraID int, cutoff time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Camera{}).
		Where("id = ? AND status = ? AND last_heartbeat < ?", cameraID, models.StatusOnline, cutoff).
		Update("status", models.StatusOffline)
	if result.Error != nil {
		return false, ioError("set camera offline", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// LockOffline takes the row lock of a camera that is still offline and
// reports false when the camera is missing or already online
func (s *HeartbeatStore) LockOffline(ctx context.Context, cameraID int) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Camera{}).
		Where("id = ? AND status = ?", cameraID, models.StatusOffline).
		Update("status", models.StatusOffline)
	if result.Error != nil {
		return false, ioError("lock offline camera", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListStale returns online cameras whose last heartbeat is older than cutoff
func (s *HeartbeatStore) ListStale(ctx context.Context, cutoff time.Time) ([]models.Camera, error) {
	var cameras []models.Camera
	err := s.db.WithContext(ctx).
		Where("status = ? AND last_heartbeat < ?", models.StatusOnline, cutoff).
		Order("id ASC").
		Find(&cameras).Error
	if err != nil {
		return nil, ioError("list stale cameras", err)
	}
	return cameras, nil
}
