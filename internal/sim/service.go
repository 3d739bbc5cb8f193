package sim

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"riffcity/internal/config"
	"riffcity/internal/jobrun"
	"riffcity/internal/notify"
)

// Service owns every batch job of the simulation. Jobs are synchronous,
// single-threaded sweeps: candidates are fetched once, processed one at
// a time, and per-item failures are counted and skipped so one bad row
// never aborts a batch.
type Service struct {
	db     *pgxpool.Pool
	cfg    config.Config
	log    *slog.Logger
	ledger *jobrun.Ledger
	notify *notify.Notifier

	mu   sync.Mutex
	rand *mathrand.Rand
	now  func() time.Time
}

func NewService(db *pgxpool.Pool, cfg config.Config, logger *slog.Logger, ledger *jobrun.Ledger, notifier *notify.Notifier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		cfg:    cfg,
		log:    logger,
		ledger: ledger,
		notify: notifier,
		rand:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// SeedRandom replaces the random source with a deterministic one. Used
// by tests and reproducible run-once invocations.
func (s *Service) SeedRandom(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = mathrand.New(mathrand.NewSource(seed))
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (s *Service) nextIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

// drawWith runs fn with the random source while the mutex is held. The
// source must never escape the callback; every draw goes through the
// lock.
func (s *Service) drawWith(fn func(rng *mathrand.Rand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.rand)
}

// runJob wraps a sweep with the run ledger: open an entry, recover any
// panic into the fail path, and close with aggregate counts. A failed
// ledger write never aborts the job (run id 0 is tolerated throughout).
func (s *Service) runJob(ctx context.Context, jobName, functionName string, trig Trigger, fn func(ctx context.Context, res *JobResult) error) (JobResult, error) {
	res := newJobResult(jobName)
	runID := s.ledger.Start(ctx, jobName, functionName, trig.TriggeredBy, trig.RequestID)
	start := s.now()

	var jobErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				jobErr = fmt.Errorf("panic in %s: %v", jobName, r)
			}
		}()
		jobErr = fn(ctx, &res)
	}()

	elapsed := s.now().Sub(start)
	if res.Summary == "" {
		res.Summary = summarize(res)
	}
	if jobErr != nil {
		s.log.Error("job failed", "job", jobName, "err", jobErr, "processed", res.Processed, "errors", res.Errors)
		s.ledger.Fail(ctx, runID, elapsed, jobErr, res.Summary)
		return res, jobErr
	}
	s.log.Info("job complete", "job", jobName, "processed", res.Processed, "errors", res.Errors, "affected", res.ItemsAffected, "took", elapsed.String())
	s.ledger.Complete(ctx, runID, elapsed, res.Processed, res.Errors, res.ItemsAffected, res.Summary)
	return res, nil
}

func summarize(res JobResult) string {
	out := fmt.Sprintf("processed=%d errors=%d affected=%d", res.Processed, res.Errors, res.ItemsAffected)
	for k, v := range res.Counters {
		out += fmt.Sprintf(" %s=%d", k, v)
	}
	return out
}

// itemFailed records one recoverable per-item error and keeps the sweep
// moving.
func (s *Service) itemFailed(res *JobResult, job string, itemID int64, err error) {
	res.Errors++
	s.log.Error("item skipped", "job", job, "item_id", itemID, "err", err)
}
