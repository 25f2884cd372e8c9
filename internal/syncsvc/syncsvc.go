// Package syncsvc implements the hybrid engine's background sync service
// (spec §4.5): a bounded FIFO queue of sync operations drained on a timer,
// with retry/backoff, a capacity guard, a periodic drift scan against
// primary, and pause/resume hooks the consolidation pipeline uses to get
// exclusive access to the secondary.
//
// Grounded on internal/ratelimit's token-bucket (Bucket) for the capacity
// guard and internal/daemon's start/stop loop shape for the service
// lifecycle. Queue/retry semantics follow spec §4.5's explicit formulas;
// the retrieved original_source pack only carried BackgroundSyncService's
// signature, not its body, so this is not a line-for-line port.
package syncsvc

import (
	"context"
	"sync"
	"time"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/ratelimit"
	"github.com/engramhq/engram/internal/storage"
)

var log = logging.GetLogger("syncsvc")

// Config tunes the service per spec §4.5's named defaults.
type Config struct {
	QueueCapacity      int
	DrainInterval      time.Duration
	BatchSize          int
	HealthCheckInterval time.Duration
	MaxRetries         int
	MaxLoopBackoff     time.Duration

	// VectorCapacity/MetadataCapacity describe the cloud provider's limits,
	// used to validate per-op prerequisites before sending.
	VectorCapacityLimit   int
	MetadataSizeLimitBytes int
	WarningThreshold      float64 // fraction of VectorCapacityLimit
	CriticalThreshold     float64

	// DriftInterval is how often the background loop diffs a sample of
	// memories between primary and secondary; zero disables the periodic
	// scan (DetectDrift remains callable directly, e.g. from the CLI).
	DriftInterval  time.Duration
	DriftBatchSize int
}

// DefaultConfig matches spec §4.5's named defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:          1000,
		DrainInterval:          5 * time.Second,
		BatchSize:              50,
		HealthCheckInterval:    300 * time.Second,
		MaxRetries:             5,
		MaxLoopBackoff:         30 * time.Minute,
		VectorCapacityLimit:    1_000_000,
		MetadataSizeLimitBytes: 10_000,
		WarningThreshold:       0.8,
		CriticalThreshold:      0.95,
		DriftInterval:          30 * time.Minute,
		DriftBatchSize:         200,
	}
}

// op is a queued sync operation, generalizing models.SyncOperation with the
// retry bookkeeping the loop needs.
type op struct {
	operation models.SyncOpType
	memory    *models.Memory
	hash      string
	updates   models.Metadata
	retries   int
	enqueuedAt time.Time
}

// Service drains queued writes against a secondary storage.Backend.
type Service struct {
	cfg       Config
	secondary storage.Backend
	primary   storage.Backend // set via Start; nil disables the periodic drift scan

	mu          sync.Mutex
	queue       []op
	paused      bool
	approachingLimits bool

	failedMu sync.Mutex
	failed   []FailedOp

	capacityBucket *ratelimit.Bucket

	stopCh chan struct{}
	doneCh chan struct{}

	metricsMu sync.Mutex
	metrics   Metrics
}

// Metrics tracks observable counters spec §4.5 implies an operator needs.
type Metrics struct {
	OperationsProcessed int
	OperationsFailed    int
	OperationsRetried   int
	QueueDepth          int
	ApproachingLimits   bool
}

// FailedOp is a parked operation that exhausted retries.
type FailedOp struct {
	Operation models.SyncOpType
	Hash      string
	Reason    string
	FailedAt  time.Time
}

// New constructs a Service against the given secondary backend.
func New(secondary storage.Backend, cfg Config) *Service {
	return &Service{
		cfg:            cfg,
		secondary:      secondary,
		capacityBucket: ratelimit.NewBucket(float64(cfg.QueueCapacity), float64(cfg.QueueCapacity)/cfg.DrainInterval.Seconds()),
	}
}

// Enqueue adds a store/update/delete operation to the queue. If the queue is
// full, the operation is processed inline instead of blocking the caller
// (spec §4.5 "Bounded FIFO queue").
func (s *Service) Enqueue(ctx context.Context, kind models.SyncOpType, m *models.Memory, hash string, updates models.Metadata) {
	s.mu.Lock()
	if len(s.queue) >= s.cfg.QueueCapacity {
		s.mu.Unlock()
		log.Warn("sync queue full, processing inline", "operation", kind)
		s.process(ctx, op{operation: kind, memory: m, hash: hash, updates: updates, enqueuedAt: time.Now()})
		return
	}
	s.queue = append(s.queue, op{operation: kind, memory: m, hash: hash, updates: updates, enqueuedAt: time.Now()})
	s.mu.Unlock()
}

// Start launches the drain loop, the periodic health-check loop, and (when
// primary is non-nil and DriftInterval > 0) the periodic drift scan.
func (s *Service) Start(ctx context.Context, primary storage.Backend) {
	s.primary = primary
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// Pause halts draining while still accepting enqueues; the consolidation
// pipeline calls this before a run so it has exclusive write access to the
// secondary (spec §4.5 "Pause/resume").
func (s *Service) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *Service) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	drainTicker := time.NewTicker(s.cfg.DrainInterval)
	defer drainTicker.Stop()
	healthTicker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer healthTicker.Stop()

	var driftTicker *time.Ticker
	var driftC <-chan time.Time
	if s.primary != nil && s.cfg.DriftInterval > 0 {
		driftTicker = time.NewTicker(s.cfg.DriftInterval)
		defer driftTicker.Stop()
		driftC = driftTicker.C
	}

	consecutiveFailures := 0

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-drainTicker.C:
			if err := s.drainOnce(ctx); err != nil {
				consecutiveFailures++
				backoff := backoffFor(consecutiveFailures, s.cfg.MaxLoopBackoff)
				log.Warn("sync drain loop failed, backing off", "error", err, "backoff", backoff)
				time.Sleep(backoff)
			} else {
				consecutiveFailures = 0
			}
		case <-healthTicker.C:
			s.healthCheck(ctx)
		case <-driftC:
			report, err := s.DetectDrift(ctx, s.primary, s.cfg.DriftBatchSize, 0, false)
			if err != nil {
				log.Warn("drift scan failed", "error", err)
			} else if len(report.Drifted) > 0 {
				log.Info("drift reconciled", "sampled", report.Sampled, "drifted", len(report.Drifted))
			}
		}
	}
}

func backoffFor(consecutiveFailures int, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(consecutiveFailures)) * time.Second
	if d > max || d <= 0 {
		return max
	}
	return d
}

func (s *Service) drainOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return nil
	}
	n := s.cfg.BatchSize
	if n > len(s.queue) {
		n = len(s.queue)
	}
	batch := s.queue[:n]
	s.queue = s.queue[n:]
	s.mu.Unlock()

	for _, o := range batch {
		s.process(ctx, o)
	}
	return nil
}

// process applies one operation to the secondary, classifying failures and
// re-enqueuing transient ones with the spec's backoff formula.
func (s *Service) process(ctx context.Context, o op) {
	if o.operation == models.SyncOpStore && !s.capacityBucket.TryConsume(1) {
		s.recordFailed(o, "capacity guard rejected store op")
		return
	}

	var err error
	switch o.operation {
	case models.SyncOpStore:
		_, err = s.secondary.Store(ctx, o.memory)
	case models.SyncOpDelete:
		_, err = s.secondary.Delete(ctx, o.hash)
	case models.SyncOpUpdate:
		_, err = s.secondary.UpdateMemoryMetadata(ctx, o.hash, nil, "", o.updates, true)
	}

	if err == nil {
		s.metricsMu.Lock()
		s.metrics.OperationsProcessed++
		s.metricsMu.Unlock()
		return
	}

	class := classifySyncError(err)
	switch class {
	case syncLimit, syncPermanent:
		s.recordFailed(o, err.Error())
	case syncTransient:
		o.retries++
		if o.retries > s.cfg.MaxRetries {
			s.recordFailed(o, "exhausted retries: "+err.Error())
			return
		}
		s.metricsMu.Lock()
		s.metrics.OperationsRetried++
		s.metricsMu.Unlock()
		delay := min(time.Duration(1<<uint(o.retries))*time.Second, 60*time.Second)
		go func() {
			time.Sleep(delay)
			s.mu.Lock()
			s.queue = append(s.queue, o)
			s.mu.Unlock()
		}()
	}
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (s *Service) recordFailed(o op, reason string) {
	s.metricsMu.Lock()
	s.metrics.OperationsFailed++
	s.metricsMu.Unlock()

	s.failedMu.Lock()
	s.failed = append(s.failed, FailedOp{Operation: o.operation, Hash: o.hash, Reason: reason, FailedAt: time.Now()})
	s.failedMu.Unlock()
}

// healthCheck probes secondary reachability and checks the capacity guard.
func (s *Service) healthCheck(ctx context.Context) {
	stats, err := s.secondary.GetStats(ctx)
	if err != nil {
		log.Warn("secondary health check failed", "error", err)
		return
	}

	fraction := float64(stats.TotalMemories) / float64(s.cfg.VectorCapacityLimit)
	s.mu.Lock()
	if fraction >= s.cfg.CriticalThreshold {
		s.approachingLimits = true
		log.Warn("secondary approaching capacity limit", "fraction", fraction)
	} else if fraction >= s.cfg.WarningThreshold {
		log.Warn("secondary capacity warning", "fraction", fraction)
	}
	s.mu.Unlock()

	s.retryFailedOps(ctx)
}

// retryFailedOps moves the failed-ops ring buffer back onto the queue on
// the periodic health-check tick, per spec §4.5.
func (s *Service) retryFailedOps(ctx context.Context) {
	s.failedMu.Lock()
	toRetry := s.failed
	s.failed = nil
	s.failedMu.Unlock()

	s.mu.Lock()
	for _, f := range toRetry {
		s.queue = append(s.queue, op{operation: f.Operation, hash: f.Hash})
	}
	s.mu.Unlock()
}

// QueueDepth reports how many operations are currently queued.
func (s *Service) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ApproachingLimits reports the capacity guard's latched state.
func (s *Service) ApproachingLimits() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approachingLimits
}

// GetMetrics returns a snapshot of the service's counters.
func (s *Service) GetMetrics() Metrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	m := s.metrics
	m.QueueDepth = s.QueueDepth()
	m.ApproachingLimits = s.ApproachingLimits()
	return m
}

// FailedOps returns a snapshot of operations parked after exhausting
// retries.
func (s *Service) FailedOps() []FailedOp {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()
	out := make([]FailedOp, len(s.failed))
	copy(out, s.failed)
	return out
}
