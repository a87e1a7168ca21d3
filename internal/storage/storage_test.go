package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/database/databasetest"
	"github.com/fuomag9/camera-sentinel/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCamera(t *testing.T, db *gorm.DB, name, status string, lastHeartbeat time.Time) *models.Camera {
	t.Helper()
	camera := &models.Camera{Name: name, Status: status, LastHeartbeat: lastHeartbeat, CreatedAt: baseTime}
	if err := db.Create(camera).Error; err != nil {
		t.Fatalf("seed camera %s: %v", name, err)
	}
	return camera
}

func countOpen(t *testing.T, db *gorm.DB, cameraID int) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Alert{}).Where("camera_id = ? AND is_resolved = ?", cameraID, false).Count(&n).Error; err != nil {
		t.Fatalf("count open alerts: %v", err)
	}
	return n
}

func TestHeartbeatStore_GetAndSetOnline(t *testing.T) {
	db := databasetest.New(t)
	store := NewHeartbeatStore(db)
	ctx := context.Background()
	cam := seedCamera(t, db, "lobby", models.StatusOffline, baseTime)

	if _, err := store.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown: got %v, want ErrNotFound", err)
	}
	if _, err := store.SetOnline(ctx, 999, baseTime); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetOnline unknown: got %v, want ErrNotFound", err)
	}

	now := baseTime.Add(time.Minute)
	updated, err := store.SetOnline(ctx, cam.ID, now)
	if err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if updated.Status != models.StatusOnline {
		t.Errorf("status: got %q, want online", updated.Status)
	}
	if !updated.LastHeartbeat.Equal(now) {
		t.Errorf("last_heartbeat: got %s, want %s", updated.LastHeartbeat, now)
	}
}

func TestHeartbeatStore_ListStaleAndMarkOffline(t *testing.T) {
	db := databasetest.New(t)
	store := NewHeartbeatStore(db)
	ctx := context.Background()

	cutoff := baseTime.Add(-40 * time.Second)
	stale := seedCamera(t, db, "stale", models.StatusOnline, baseTime.Add(-50*time.Second))
	seedCamera(t, db, "fresh", models.StatusOnline, baseTime.Add(-10*time.Second))
	seedCamera(t, db, "already-offline", models.StatusOffline, baseTime.Add(-time.Hour))

	cameras, err := store.ListStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(cameras) != 1 || cameras[0].ID != stale.ID {
		t.Fatalf("ListStale: got %+v, want only %q", cameras, stale.Name)
	}

	changed, err := store.MarkOffline(ctx, stale.ID, cutoff)
	if err != nil || !changed {
		t.Fatalf("MarkOffline: changed=%v err=%v", changed, err)
	}

	// second attempt finds nothing to change
	changed, err = store.MarkOffline(ctx, stale.ID, cutoff)
	if err != nil || changed {
		t.Fatalf("MarkOffline again: changed=%v err=%v", changed, err)
	}
}

func TestHeartbeatStore_MarkOfflineSkipsRefreshedCamera(t *testing.T) {
	db := databasetest.New(t)
	store := NewHeartbeatStore(db)
	ctx := context.Background()

	cutoff := baseTime.Add(-40 * time.Second)
	cam := seedCamera(t, db, "racy", models.StatusOnline, baseTime.Add(-50*time.Second))

	// heartbeat lands between the stale scan and the transition
	if _, err := store.SetOnline(ctx, cam.ID, baseTime); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}

	changed, err := store.MarkOffline(ctx, cam.ID, cutoff)
	if err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	if changed {
		t.Fatal("camera with a fresh heartbeat must not be marked offline")
	}
}

func TestAlertLedger_OpenEnforcesSingleOpenAlert(t *testing.T) {
	db := databasetest.New(t)
	ledger := NewAlertLedger(db)
	ctx := context.Background()
	cam := seedCamera(t, db, "gate", models.StatusOffline, baseTime)

	alert, err := ledger.Open(ctx, cam.ID, baseTime)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if alert.ID == 0 || alert.IsResolved || !alert.OpenedAt.Equal(baseTime) {
		t.Errorf("unexpected alert: %+v", alert)
	}

	if _, err := ledger.Open(ctx, cam.ID, baseTime.Add(time.Second)); !errors.Is(err, ErrConflict) {
		t.Fatalf("second Open: got %v, want ErrConflict", err)
	}
	if n := countOpen(t, db, cam.ID); n != 1 {
		t.Fatalf("open alerts: got %d, want 1", n)
	}
}

func TestAlertLedger_ResolveForCamera(t *testing.T) {
	db := databasetest.New(t)
	ledger := NewAlertLedger(db)
	ctx := context.Background()
	cam := seedCamera(t, db, "yard", models.StatusOffline, baseTime)

	resolved, err := ledger.ResolveForCamera(ctx, cam.ID, baseTime)
	if err != nil || resolved != nil {
		t.Fatalf("ResolveForCamera without open alert: got %+v, %v", resolved, err)
	}

	if _, err := ledger.Open(ctx, cam.ID, baseTime); err != nil {
		t.Fatalf("Open: %v", err)
	}

	at := baseTime.Add(time.Minute)
	resolved, err = ledger.ResolveForCamera(ctx, cam.ID, at)
	if err != nil {
		t.Fatalf("ResolveForCamera: %v", err)
	}
	if !resolved.IsResolved || resolved.ResolutionReason == nil || *resolved.ResolutionReason != models.AutoResolutionReason {
		t.Errorf("unexpected resolution: %+v", resolved)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(at) {
		t.Errorf("resolved_at: got %v, want %s", resolved.ResolvedAt, at)
	}
}

func TestAlertLedger_Resolve(t *testing.T) {
	db := databasetest.New(t)
	ledger := NewAlertLedger(db)
	ctx := context.Background()
	cam := seedCamera(t, db, "dock", models.StatusOffline, baseTime)

	alert, err := ledger.Open(ctx, cam.ID, baseTime)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tests := []struct {
		name    string
		alertID int
		reason  string
		wantErr error
	}{
		{name: "empty reason", alertID: alert.ID, reason: "", wantErr: ErrValidation},
		{name: "blank reason", alertID: alert.ID, reason: "   ", wantErr: ErrValidation},
		{name: "unknown alert", alertID: alert.ID + 100, reason: "checked", wantErr: ErrNotFound},
		{name: "resolves", alertID: alert.ID, reason: "cable replaced"},
		{name: "already resolved", alertID: alert.ID, reason: "again", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.Resolve(ctx, tt.alertID, tt.reason, baseTime.Add(time.Hour))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if *got.ResolutionReason != tt.reason {
				t.Errorf("reason: got %q, want %q", *got.ResolutionReason, tt.reason)
			}
		})
	}

	// the failed attempts above must not have touched the stored reason
	var stored models.Alert
	if err := db.First(&stored, alert.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *stored.ResolutionReason != "cable replaced" {
		t.Errorf("stored reason: got %q", *stored.ResolutionReason)
	}
}

func TestAlertLedger_Lists(t *testing.T) {
	db := databasetest.New(t)
	ledger := NewAlertLedger(db)
	ctx := context.Background()

	var ids []int
	for i, name := range []string{"a", "b", "c"} {
		cam := seedCamera(t, db, name, models.StatusOffline, baseTime)
		alert, err := ledger.Open(ctx, cam.ID, baseTime.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("Open %s: %v", name, err)
		}
		ids = append(ids, alert.ID)
	}

	open, err := ledger.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 3 || open[0].CameraName != "c" || open[2].CameraName != "a" {
		t.Fatalf("ListOpen order: got %+v", open)
	}

	// resolve a then c; c is the most recently resolved
	if _, err := ledger.Resolve(ctx, ids[0], "fixed a", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("Resolve a: %v", err)
	}
	if _, err := ledger.Resolve(ctx, ids[2], "fixed c", baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("Resolve c: %v", err)
	}

	resolved, err := ledger.ListResolved(ctx, 10)
	if err != nil {
		t.Fatalf("ListResolved: %v", err)
	}
	if len(resolved) != 2 || resolved[0].CameraName != "c" || resolved[1].CameraName != "a" {
		t.Fatalf("ListResolved order: got %+v", resolved)
	}

	limited, err := ledger.ListResolved(ctx, 1)
	if err != nil {
		t.Fatalf("ListResolved limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("ListResolved limit: got %d rows", len(limited))
	}

	open, err = ledger.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 || open[0].CameraName != "b" {
		t.Fatalf("ListOpen after resolve: got %+v", open)
	}
}

func TestTransactionRollbackLeavesNoAlert(t *testing.T) {
	db := databasetest.New(t)
	ctx := context.Background()
	cam := seedCamera(t, db, "rollback", models.StatusOnline, baseTime.Add(-time.Hour))
	boom := errors.New("boom")

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := NewHeartbeatStore(tx).MarkOffline(ctx, cam.ID, baseTime); err != nil {
			return err
		}
		if _, err := NewAlertLedger(tx).Open(ctx, cam.ID, baseTime); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction: got %v", err)
	}

	got, err := NewHeartbeatStore(db).Get(ctx, cam.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusOnline {
		t.Errorf("status after rollback: got %q", got.Status)
	}
	if n := countOpen(t, db, cam.ID); n != 0 {
		t.Errorf("open alerts after rollback: got %d", n)
	}
}

func TestHeartbeatStore_LockOffline(t *testing.T) {
	db := databasetest.New(t)
	store := NewHeartbeatStore(db)
	ctx := context.Background()
	offline := seedCamera(t, db, "new", models.StatusOffline, baseTime)
	online := seedCamera(t, db, "reporting", models.StatusOnline, baseTime)

	tests := []struct {
		name     string
		cameraID int
		want     bool
	}{
		{name: "offline camera", cameraID: offline.ID, want: true},
		{name: "online camera", cameraID: online.ID, want: false},
		{name: "unknown camera", cameraID: 999, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.LockOffline(ctx, tt.cameraID)
			if err != nil {
				t.Fatalf("LockOffline: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if cam, _ := store.Get(ctx, online.ID); cam.Status != models.StatusOnline {
		t.Errorf("online camera was changed to %q", cam.Status)
	}
}
