package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyRun     = "run"  // STRING. run:{id} -> RunSession JSON, expires after ttl
	KeyRunList = "runs" // ZSET. run ids scored by creation time in unix nanoseconds

	KeySeparator = ":"
)

type runRepository struct {
	cl  *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRunRepository(cl *redis.Client, ttl time.Duration, log *slog.Logger) *runRepository {
	return &runRepository{
		cl:  cl,
		ttl: ttl,
		log: log.With(slog.String("item", "RunRepository")),
	}
}

func (r *runRepository) Save(ctx context.Context, session *entity.RunSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("cannot marshal run %s: %w", session.ID, err)
	}

	pipe := r.cl.TxPipeline()
	pipe.Set(ctx, getKey(KeyRun, session.ID), data, r.ttl)
	pipe.ZAdd(ctx, KeyRunList, redis.Z{Score: float64(session.CreatedAt.UnixNano()), Member: session.ID})
	if r.ttl > 0 {
		pipe.ZRemRangeByScore(ctx, KeyRunList, "-inf", "("+strconv.FormatInt(time.Now().Add(-r.ttl).UnixNano(), 10))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot save run %s: %w", session.ID, err)
	}

	return nil
}

func (r *runRepository) Get(ctx context.Context, id string) (*entity.RunSession, error) {
	data, err := r.cl.Get(ctx, getKey(KeyRun, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrRunNotFound
		}

		return nil, fmt.Errorf("cannot get run %s: %w", id, err)
	}

	var session entity.RunSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("cannot unmarshal run %s: %w", id, err)
	}

	return &session, nil
}

// List returns up to limit runs, newest first. Expired runs are dropped from the index on the way.
func (r *runRepository) List(ctx context.Context, limit int) ([]*entity.RunSession, error) {
	ids, err := r.cl.ZRevRange(ctx, KeyRunList, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get run list: %w", err)
	}

	if len(ids) == 0 {
		return []*entity.RunSession{}, nil
	}

	pipe := r.cl.Pipeline()
	for _, id := range ids {
		pipe.Get(ctx, getKey(KeyRun, id))
	}

	cmds, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cannot exec pipe: %w", err)
	}

	sessions := make([]*entity.RunSession, 0, len(ids))
	var expired []any
	for i, cmd := range cmds {
		data, err := cmd.(*redis.StringCmd).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				expired = append(expired, ids[i])
			} else {
				r.log.Error("Cannot get run", slog.String("id", ids[i]), slog.Any("error", err))
			}

			continue
		}

		var session entity.RunSession
		if err := json.Unmarshal(data, &session); err != nil {
			r.log.Error("Cannot unmarshal run", slog.String("id", ids[i]), slog.Any("error", err))

			continue
		}
		sessions = append(sessions, &session)
	}

	if len(expired) > 0 {
		if err := r.cl.ZRem(ctx, KeyRunList, expired...).Err(); err != nil {
			r.log.Error("Cannot drop expired runs", slog.Int("count", len(expired)), slog.Any("error", err))
		}
	}

	return sessions, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
