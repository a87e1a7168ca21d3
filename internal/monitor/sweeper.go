package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/models"
	"github.com/fuomag9/camera-sentinel/internal/storage"
)

// TickResult summarizes one sweep
type TickResult struct {
	// Skipped is set when another sweep was still running
	Skipped bool
	// Stale is the number of cameras the scan found past the threshold
	Stale int
	// Transitioned lists the cameras marked offline by this sweep
	Transitioned []models.Camera
	// Failed counts cameras whose transition was rolled back
	Failed int
	// NotifyFailed counts offline events with at least one failed delivery
	NotifyFailed int
}

// Sweeper periodically marks cameras offline once their last heartbeat is
// older than the stale threshold, opens an alert for each, notifies
// contacts and broadcasts one change per sweep.
type Sweeper struct {
	db         *gorm.DB
	heartbeats *storage.HeartbeatStore
	ledger     *storage.AlertLedger
	hub        Broadcaster
	dispatcher Notifier
	contacts   ContactSource

	interval time.Duration
	stale    time.Duration
	logger   zerolog.Logger

	cron    *cron.Cron
	running atomic.Bool

	// Now is the sweep clock
	Now func() time.Time
}

// NewSweeper creates a sweeper. hub and dispatcher may be nil.
func NewSweeper(db *gorm.DB, hub Broadcaster, dispatcher Notifier, contacts ContactSource, interval, stale time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		db:         db,
		heartbeats: storage.NewHeartbeatStore(db),
		ledger:     storage.NewAlertLedger(db),
		hub:        hub,
		dispatcher: dispatcher,
		contacts:   contacts,
		interval:   interval,
		stale:      stale,
		logger:     logger.With().Str("component", "sweeper").Logger(),
		Now:        time.Now,
	}
}

// Start schedules Tick every interval. A sweep that is still running when
// the next one is due causes that one to be skipped, not queued.
func (s *Sweeper) Start() {
	cronLogger := cron.PrintfLogger(&s.logger)
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.Tick(context.Background())
	}))
	s.cron.Start()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stale_threshold", s.stale).
		Msg("Liveness sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Liveness sweeper stopped")
}

// Tick runs one sweep. It returns immediately with Skipped set when another
// sweep is in progress.
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Previous sweep still running, skipping")
		return TickResult{Skipped: true}
	}
	defer s.running.Store(false)

	now := s.Now().UTC()
	cutoff := now.Add(-s.stale)

	var result TickResult
	stale, err := s.heartbeats.ListStale(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to scan for stale cameras")
		return result
	}
	result.Stale = len(stale)
	if len(stale) == 0 {
		return result
	}

	s.logger.Info().Int("count", len(stale)).Msg("Found stale cameras")

	for _, camera := range stale {
		changed, err := s.markOffline(ctx, camera.ID, cutoff, now)
		if err != nil {
			result.Failed++
			s.logger.Error().Err(err).Int("camera_id", camera.ID).Str("camera", camera.Name).Msg("Failed to mark camera offline")
			continue
		}
		if !changed {
			s.logger.Debug().Int("camera_id", camera.ID).Msg("Camera sent a heartbeat during the sweep")
			continue
		}
		camera.Status = models.StatusOffline
		result.Transitioned = append(result.Transitioned, camera)
		s.logger.Info().Int("camera_id", camera.ID).Str("camera", camera.Name).Msg("Camera marked offline")
	}

	if len(result.Transitioned) == 0 {
		return result
	}

	result.NotifyFailed = s.notify(ctx, result.Transitioned, now)

	if s.hub != nil {
		s.hub.PublishChange()
	}
	return result
}

// markOffline flips one camera offline and opens its alert atomically
func (s *Sweeper) markOffline(ctx context.Context, cameraID int, cutoff, now time.Time) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = s.heartbeats.WithTx(tx).MarkOffline(ctx, cameraID, cutoff)
		if err != nil || !changed {
			return err
		}
		_, err = s.ledger.WithTx(tx).Open(ctx, cameraID, now)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// notify dispatches one offline event per camera concurrently and waits for
// all of them. It returns the number of events with failed deliveries.
func (s *Sweeper) notify(ctx context.Context, cameras []models.Camera, occurredAt time.Time) int {
	if s.dispatcher == nil || s.contacts == nil {
		return 0
	}

	targets, err := s.contacts.ListNotificationTargets(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load notification targets, skipping notifications")
		return 0
	}
	if len(targets) == 0 {
		s.logger.Warn().Msg("No notification targets configured")
		return 0
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, camera := range cameras {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := s.dispatcher.NotifyOffline(ctx, name, occurredAt, targets); err != nil {
				failed.Add(1)
			}
		}(camera.Name)
	}
	wg.Wait()

	return int(failed.Load())
}
