// Package redis persists comparison runs, slot artifacts, like state, and
// generation quotas in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/config"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

const (
	runKeyPrefix   = "run:"
	likesKeyPrefix = "likes:"
	quotaKeyPrefix = "quota:"

	// quotaWindow bounds how long a spent quota counter lives; an explicit
	// expiry rule instead of an unbounded per-identifier map.
	quotaWindow = 24 * time.Hour

	// applyLikeRetries bounds optimistic retries when a concurrent apply
	// invalidates the watched likes key.
	applyLikeRetries = 3
)

// Store implements domain.RunStore on Redis.
type Store struct {
	client     *redis.Client
	quotaLimit int64
}

// NewClient creates the Redis client from configuration (DI constructor).
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewStore creates a run store.
func NewStore(client *redis.Client, cfg *config.ArenaConfig) *Store {
	return &Store{
		client:     client,
		quotaLimit: cfg.QuotaLimit,
	}
}

// CreateRun enforces the caller's generation quota, assigns a run id, and
// persists the parent record. The id exists before any stream opens.
func (s *Store) CreateRun(ctx context.Context, params domain.CreateRunParams) (*domain.Run, error) {
	if params.Prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	if err := s.ConsumeQuota(ctx, params.Identifier); err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:        uuid.New().String(),
		Prompt:    params.Prompt,
		ModelA:    params.ModelA,
		ModelB:    params.ModelB,
		CreatedAt: time.Now(),
	}

	err := s.client.HSet(ctx, runKeyPrefix+run.ID, map[string]interface{}{
		"prompt":     run.Prompt,
		"model_a":    run.ModelA,
		"model_b":    run.ModelB,
		"created_at": run.CreatedAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	observability.FromContext(ctx).Info("run created",
		zap.String("run_id", run.ID),
		zap.String("model_a", run.ModelA),
		zap.String("model_b", run.ModelB),
	)

	return run, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	if runID == "" {
		return nil, errors.New("run id cannot be empty")
	}

	fields, err := s.client.HGetAll(ctx, runKeyPrefix+runID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRunNotFound
	}

	run := &domain.Run{
		ID:     runID,
		Prompt: fields["prompt"],
		ModelA: fields["model_a"],
		ModelB: fields["model_b"],
	}
	if created, parseErr := time.Parse(time.RFC3339Nano, fields["created_at"]); parseErr == nil {
		run.CreatedAt = created
	}

	return run, nil
}

// SaveArtifact stores one slot's extracted document and metrics on the run
// record, keyed by slot suffix.
func (s *Store) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	if artifact == nil {
		return errors.New("artifact cannot be nil")
	}
	if !artifact.Slot.Valid() {
		return fmt.Errorf("invalid slot: %q", artifact.Slot)
	}

	suffix := string(artifact.Slot)
	err := s.client.HSet(ctx, runKeyPrefix+artifact.RunID, map[string]interface{}{
		"html_" + suffix:     artifact.Document,
		"duration_" + suffix: strconv.FormatFloat(artifact.ElapsedSec, 'f', -1, 64),
		"tokens_" + suffix:   strconv.Itoa(artifact.Tokens),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}

	return nil
}

// ApplyLike asserts an absolute like target for one actor. Idempotent:
// asserting an already-held state changes nothing. Membership check and
// counter move are one atomic step under WATCH, otherwise two concurrent
// applies for the same actor would both pass the check and drift the counter.
func (s *Store) ApplyLike(ctx context.Context, entityID, actorID string, target bool) (*domain.LikeResult, error) {
	if actorID == "" {
		return nil, domain.ErrNotAuthorized
	}

	likesKey := likesKeyPrefix + entityID
	runKey := runKeyPrefix + entityID

	apply := func(tx *redis.Tx) error {
		member, err := tx.SIsMember(ctx, likesKey, actorID).Result()
		if err != nil {
			return err
		}
		if target == member {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if target {
				pipe.SAdd(ctx, likesKey, actorID)
				pipe.HIncrBy(ctx, runKey, "like_count", 1)
			} else {
				pipe.SRem(ctx, likesKey, actorID)
				pipe.HIncrBy(ctx, runKey, "like_count", -1)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < applyLikeRetries; attempt++ {
		err = s.client.Watch(ctx, apply, likesKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		// Another apply touched the likes key mid-transaction; re-check.
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply like: %w", err)
	}

	count, err := s.client.HGet(ctx, runKey, "like_count").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read like count: %w", err)
	}
	if count < 0 {
		count = 0
	}

	return &domain.LikeResult{Liked: target, Count: count}, nil
}

// ConsumeQuota increments the identifier's counter inside the quota window
// and refuses once the limit is spent.
func (s *Store) ConsumeQuota(ctx context.Context, identifier string) error {
	if s.quotaLimit <= 0 || identifier == "" {
		return nil
	}

	key := quotaKeyPrefix + identifier
	used, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to track quota: %w", err)
	}
	// Set the window on first use only.
	s.client.ExpireNX(ctx, key, quotaWindow)

	if used > s.quotaLimit {
		return fmt.Errorf("%w: %d/%d used", domain.ErrQuotaExceeded, used-1, s.quotaLimit)
	}

	return nil
}
