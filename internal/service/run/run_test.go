package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/metrics"
	runrepo "github.com/jgivc/acstdl/internal/repository/run"
	"github.com/jgivc/acstdl/internal/service/pipeline"
)

type fakePipeline struct {
	release chan struct{}
	err     error
}

func (p *fakePipeline) Run(ctx context.Context, sessionID string, progress pipeline.Progress) (*entity.RunSummary, error) {
	progress("news", 0, 2)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return &entity.RunSummary{}, ctx.Err()
		}
	}
	progress("news", 1, 2)
	progress("music", 2, 2)

	if p.err != nil {
		return nil, p.err
	}

	return &entity.RunSummary{Counts: entity.Counts{Downloaded: 4}}, nil
}

func newTestService(p Pipeline) (*RunService, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())

	return NewRunService(p, runrepo.NewMemoryRepository(time.Hour), m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func waitStatus(t *testing.T, s *RunService, id, status string) *entity.RunSession {
	t.Helper()

	var session *entity.RunSession
	require.Eventually(t, func() bool {
		var err error
		session, err = s.Get(context.Background(), id)

		return err == nil && session.Status == status
	}, 2*time.Second, 5*time.Millisecond)

	return session
}

func TestStartRunsInBackground(t *testing.T) {
	p := &fakePipeline{release: make(chan struct{})}
	s, m := newTestService(p)
	defer s.Stop()

	id, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session := waitStatus(t, s, id, entity.RunStatusRunning)
	require.NotNil(t, session.StartedAt)

	_, err = s.Start(context.Background())
	require.ErrorIs(t, err, common.ErrRunAlreadyStarted)

	close(p.release)
	session = waitStatus(t, s, id, entity.RunStatusCompleted)
	require.Equal(t, 100, session.Progress)
	require.Equal(t, 2, session.CompletedFeeds)
	require.Equal(t, 4, session.Summary.Downloaded)
	require.NotNil(t, session.CompletedAt)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(entity.RunStatusCompleted)))

	require.Eventually(t, func() bool {
		_, err := s.Start(context.Background())

		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRunOnceFailed(t *testing.T) {
	s, _ := newTestService(&fakePipeline{err: errors.New("no feeds")})

	session, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, entity.RunStatusFailed, session.Status)
	require.Equal(t, "no feeds", session.Error)

	sessions, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, session.ID, sessions[0].ID)
}

func TestStopCancelsRun(t *testing.T) {
	s, _ := newTestService(&fakePipeline{release: make(chan struct{})})

	id, err := s.Start(context.Background())
	require.NoError(t, err)
	waitStatus(t, s, id, entity.RunStatusRunning)

	s.Stop()

	session, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, entity.RunStatusFailed, session.Status)
	require.Equal(t, context.Canceled.Error(), session.Error)
}

func TestGetUnknown(t *testing.T) {
	s, _ := newTestService(&fakePipeline{})

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrRunNotFound)
}
