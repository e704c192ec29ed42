package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/metrics"
	"github.com/jgivc/acstdl/internal/service/pipeline"
)

const (
	defaultListLimit = 50
	saveTimeout      = 5 * time.Second
)

type Pipeline interface {
	Run(ctx context.Context, sessionID string, progress pipeline.Progress) (*entity.RunSummary, error)
}

type RunRepository interface {
	Save(ctx context.Context, session *entity.RunSession) error
	Get(ctx context.Context, id string) (*entity.RunSession, error)
	List(ctx context.Context, limit int) ([]*entity.RunSession, error)
}

// RunService starts pipeline passes, one at a time, and records their status.
type RunService struct {
	running  atomic.Bool
	pipeline Pipeline
	repo     RunRepository
	metrics  *metrics.Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *slog.Logger
}

func NewRunService(p Pipeline, repo RunRepository, m *metrics.Metrics, log *slog.Logger) *RunService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunService{
		pipeline: p,
		repo:     repo,
		metrics:  m,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With(slog.String("item", "RunService")),
	}
}

// Start launches a run in the background and returns its session id.
func (s *RunService) Start(ctx context.Context) (string, error) {
	session, err := s.begin(ctx)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, session)
	}()

	return session.ID, nil
}

// RunOnce runs synchronously and returns the final session.
func (s *RunService) RunOnce(ctx context.Context) (*entity.RunSession, error) {
	session, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	s.execute(ctx, session)

	return session, nil
}

func (s *RunService) Get(ctx context.Context, id string) (*entity.RunSession, error) {
	return s.repo.Get(ctx, id)
}

func (s *RunService) List(ctx context.Context) ([]*entity.RunSession, error) {
	return s.repo.List(ctx, defaultListLimit)
}

// Stop cancels a background run and waits for it to record its status.
func (s *RunService) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *RunService) begin(ctx context.Context) (*entity.RunSession, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, common.ErrRunAlreadyStarted
	}

	session := &entity.RunSession{
		ID:        uuid.NewString(),
		Status:    entity.RunStatusPending,
		CreatedAt: s.now(),
	}

	if err := s.repo.Save(ctx, session); err != nil {
		s.running.Store(false)

		return nil, fmt.Errorf("cannot save run: %w", err)
	}

	return session, nil
}

func (s *RunService) execute(ctx context.Context, session *entity.RunSession) {
	defer s.running.Store(false)

	log := s.log.With(slog.String("session_id", session.ID))

	started := s.now()
	session.Status = entity.RunStatusRunning
	session.StartedAt = &started
	s.save(log, session)

	log.Info("Run started")

	summary, err := s.pipeline.Run(ctx, session.ID, func(feed string, completed, total int) {
		session.CurrentFeed = feed
		session.CompletedFeeds = completed
		session.TotalFeeds = total
		if total > 0 {
			session.Progress = completed * 100 / total
		}
		s.save(log, session)
	})

	completed := s.now()
	session.CompletedAt = &completed
	session.Summary = summary
	session.CurrentFeed = ""

	if err != nil {
		session.Status = entity.RunStatusFailed
		session.Error = err.Error()
		log.Error("Run failed", slog.Any("error", err))
	} else {
		session.Status = entity.RunStatusCompleted
		session.Progress = 100
		log.Info("Run completed", slog.Duration("duration", completed.Sub(started)))
	}

	s.metrics.ObserveRun(session.Status, completed.Sub(started))
	s.save(log, session)
}

// save uses its own context so the final status is recorded even after cancellation.
func (s *RunService) save(log *slog.Logger, session *entity.RunSession) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.repo.Save(ctx, session); err != nil {
		log.Error("Cannot save run status", slog.String("status", session.Status), slog.Any("error", err))
	}
}
