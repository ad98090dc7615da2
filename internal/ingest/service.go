// Package ingest orchestrates the fetch-detect-publish cycle against the
// upstream vehicle positions feed.
package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"vehicle-tracker-backend/config"
	"vehicle-tracker-backend/internal/detector"
	"vehicle-tracker-backend/internal/feed"
	"vehicle-tracker-backend/internal/metrics"
	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/notify"
	"vehicle-tracker-backend/internal/publisher"
	"vehicle-tracker-backend/internal/store"
)

// ErrCycleRunning is returned when a cycle is requested while another one is
// still in flight. Cycles never overlap.
var ErrCycleRunning = errors.New("ingest: cycle already running")

// CycleReport summarizes one completed ingestion cycle.
type CycleReport struct {
	Fetched     int           `json:"fetched"`
	Published   int           `json:"published"`
	Errors      int           `json:"errors"`
	Started     int           `json:"trips_started"`
	Ended       int           `json:"trips_ended"`
	Switched    int           `json:"trips_switched"`
	Reconciled  int           `json:"reconciled"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Service orchestrates the ingestion process: it fetches the feed, detects
// trip transitions per vehicle and delegates persistence to the publisher.
type Service struct {
	cfg        *config.Config
	store      store.Store
	fetcher    *feed.Fetcher
	normalizer *feed.Normalizer
	detector   *detector.Detector
	publisher  *publisher.Publisher
	workerPool *notify.WorkerPool
	collector  *metrics.Collector

	cycleMu sync.Mutex // held for the duration of a cycle

	reportMu sync.RWMutex
	last     *CycleReport
}

// NewService creates and initializes the ingestion service.
func NewService(cfg *config.Config, st store.Store, fetcher *feed.Fetcher, normalizer *feed.Normalizer, det *detector.Detector, pub *publisher.Publisher, pool *notify.WorkerPool, collector *metrics.Collector) *Service {
	if pool != nil && collector != nil {
		pool.OnError(collector.PublishErrors.Inc)
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		fetcher:    fetcher,
		normalizer: normalizer,
		detector:   det,
		publisher:  pub,
		workerPool: pool,
		collector:  collector,
	}
}

// Run starts the ingestion loop. It fetches immediately, then on every tick
// of the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Ingest.Enabled {
		log.Println("Ingestion is disabled. Not starting.")
		return
	}
	log.Println("Starting ingestion service...")

	if s.workerPool != nil {
		s.workerPool.Start(ctx)
	}

	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("Ingestion cycle failed: %v", err)
	}

	timer := time.NewTimer(s.cfg.Ingest.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ingestion service shutting down.")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("Ingestion cycle failed: %v", err)
			}
			timer.Reset(s.cfg.Ingest.Interval)
		}
	}
}

// RunOnce executes a single ingestion cycle. It returns ErrCycleRunning when
// another cycle holds the store, keeping the whole-feed snapshot atomic per
// cycle.
func (s *Service) RunOnce(ctx context.Context) (*CycleReport, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer s.cycleMu.Unlock()

	started := time.Now()
	if s.collector != nil {
		s.collector.CyclesTotal.Inc()
	}

	fm, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if s.collector != nil {
			s.collector.CyclesFailed.Inc()
		}
		return nil, err
	}

	positions := s.normalizer.Normalize(fm)
	if s.collector != nil {
		dropped := len(fm.Entity) - len(positions)
		if dropped > 0 {
			s.collector.PositionsDropped.Add(float64(dropped))
		}
	}

	report := s.processPositions(ctx, positions)

	reconciled, err := s.reconcile(ctx, positions)
	if err != nil {
		log.Printf("Active index reconciliation failed: %v", err)
	}
	report.Reconciled = reconciled

	report.Duration = time.Since(started)
	report.DurationMS = report.Duration.Milliseconds()
	report.CompletedAt = time.Now().UTC()

	s.finishCycle(ctx, report)

	log.Printf("Ingestion cycle finished: fetched=%d published=%d errors=%d started=%d ended=%d switched=%d reconciled=%d in %s",
		report.Fetched, report.Published, report.Errors,
		report.Started, report.Ended, report.Switched, report.Reconciled, report.Duration)
	return report, nil
}

// processPositions fans the cycle's positions out over a bounded worker pool.
// Each vehicle is handled independently: one bad record never fails the
// cycle, it only increments the error count.
func (s *Service) processPositions(ctx context.Context, positions []model.Position) *CycleReport {
	report := &CycleReport{Fetched: len(positions)}

	workers := s.cfg.Ingest.Workers
	if workers > len(positions) {
		workers = len(positions)
	}
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan model.Position)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				tr, err := s.processVehicle(ctx, &pos)
				if err != nil {
					log.Printf("Failed to process vehicle %s: %v", pos.VehicleID, err)
				}
				mu.Lock()
				if err != nil {
					report.Errors++
				} else {
					report.Published++
					switch tr.Kind {
					case model.TransitionStarted:
						report.Started++
					case model.TransitionEnded:
						report.Ended++
					case model.TransitionSwitched:
						report.Switched++
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, pos := range positions {
		jobs <- pos
	}
	close(jobs)
	wg.Wait()

	return report
}

// processVehicle runs the detect-publish pipeline for one vehicle. Writes for
// a vehicle already in flight are not cancelled mid-way; a shutdown waits for
// the current position to land.
func (s *Service) processVehicle(ctx context.Context, pos *model.Position) (*model.TripTransition, error) {
	prev, err := s.store.GetVehicleState(ctx, pos.VehicleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tr, err := s.detector.Detect(pos, prev)
	if err != nil {
		return nil, err
	}

	writeCtx := context.WithoutCancel(ctx)
	update, err := s.publisher.Publish(writeCtx, pos, tr)
	if err != nil {
		return nil, err
	}

	if s.collector != nil {
		s.collector.PositionsProcessed.Inc()
		if tr.Kind != model.TransitionNone {
			s.collector.Transitions.WithLabelValues(string(tr.Kind)).Inc()
		}
	}
	if s.workerPool != nil {
		s.workerPool.Dispatch(update)
	}
	return tr, nil
}

// reconcile removes vehicles absent from this cycle's feed from the active
// index. It only touches the index: their state and trip keys stay put until
// they expire or the vehicle returns.
func (s *Service) reconcile(ctx context.Context, positions []model.Position) (int, error) {
	active, err := s.store.ActiveVehicles(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(positions))
	for _, pos := range positions {
		seen[pos.VehicleID] = struct{}{}
	}

	removed := 0
	for _, id := range active {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := s.store.RemoveActiveVehicle(ctx, id); err != nil {
			log.Printf("Failed to remove %s from the active index: %v", id, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Service) finishCycle(ctx context.Context, report *CycleReport) {
	if s.collector != nil {
		s.collector.CycleDuration.Observe(report.Duration.Seconds())
		if stats, err := s.store.Stats(ctx); err == nil {
			s.collector.ActiveVehicles.Set(float64(stats.ActiveVehicles))
		}
	}

	s.reportMu.Lock()
	s.last = report
	s.reportMu.Unlock()
}

// LastReport returns the most recent cycle report, nil before the first
// completed cycle.
func (s *Service) LastReport() *CycleReport {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.last
}

// WaitIdle blocks until no cycle is running. Call it after cancelling the
// Run context, before tearing down the store the cycles write to.
func (s *Service) WaitIdle() {
	s.cycleMu.Lock()
	s.cycleMu.Unlock()
}
