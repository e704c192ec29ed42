package run

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
)

// memoryRepository keeps runs in process, used when no redis is configured.
type memoryRepository struct {
	mu   sync.RWMutex
	runs map[string]entity.RunSession
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryRepository(ttl time.Duration) *memoryRepository {
	return &memoryRepository{
		runs: make(map[string]entity.RunSession),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (r *memoryRepository) Save(ctx context.Context, session *entity.RunSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[session.ID] = *session
	r.prune()

	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (*entity.RunSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.runs[id]
	if !exists || r.expired(session) {
		return nil, common.ErrRunNotFound
	}

	return &session, nil
}

func (r *memoryRepository) List(ctx context.Context, limit int) ([]*entity.RunSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*entity.RunSession, 0, len(r.runs))
	for _, session := range r.runs {
		if r.expired(session) {
			continue
		}
		session := session
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions, nil
}

func (r *memoryRepository) expired(session entity.RunSession) bool {
	return r.ttl > 0 && r.now().Sub(session.CreatedAt) > r.ttl
}

func (r *memoryRepository) prune() {
	for id, session := range r.runs {
		if r.expired(session) {
			delete(r.runs, id)
		}
	}
}
