package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// cachedResponse is the JSON value held in the redis fast path.
type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyServiceImpl implements ports.IdempotencyStore with a two-layer
// lookup: redis cache first, then the persisted records. Known race: two
// concurrent requests with the same key before the first completes will both
// proceed; a per-(org,key) lease would be required to close it.
type IdempotencyServiceImpl struct {
	repo  ports.IdempotencyRepository
	cache ports.IdempotencyCache
	log   zerolog.Logger
}

// NewIdempotencyService creates a new IdempotencyServiceImpl.
func NewIdempotencyService(repo ports.IdempotencyRepository, cache ports.IdempotencyCache, log zerolog.Logger) *IdempotencyServiceImpl {
	return &IdempotencyServiceImpl{repo: repo, cache: cache, log: log}
}

// BeginOrReplay returns the stored response for a seen (org, key), or creates
// a fresh record and lets the request proceed.
func (s *IdempotencyServiceImpl) BeginOrReplay(ctx context.Context, orgID uuid.UUID, key, method, path, bodyHash string) (*ports.IdempotencyResult, error) {
	cacheKey := domain.BuildIdempotencyCacheKey(orgID, key)

	// Layer 1: redis.
	cached, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("idempotency cache read failed, falling through to DB")
	}
	if cached != nil {
		var resp cachedResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return &ports.IdempotencyResult{Replay: true, Status: resp.Status, Body: resp.Body}, nil
		}
		s.log.Warn().Str("key", cacheKey).Msg("discarding malformed idempotency cache entry")
	}

	// Layer 2: persisted records.
	rec, err := s.repo.Get(ctx, orgID, key)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if rec != nil {
		if rec.Completed() {
			s.backfillCache(ctx, cacheKey, *rec.ResponseStatus, rec.ResponseBody, rec.ExpiresAt)
			return &ports.IdempotencyResult{Replay: true, Status: *rec.ResponseStatus, Body: rec.ResponseBody}, nil
		}
		// A previous attempt crashed before completing; let this one proceed
		// against the existing record.
		return &ports.IdempotencyResult{RecordID: rec.ID}, nil
	}

	now := time.Now().UTC()
	fresh := &domain.IdempotencyRecord{
		ID:        uuid.New(),
		OrgID:     orgID,
		Key:       key,
		Method:    method,
		Path:      path,
		BodyHash:  bodyHash,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.IdempotencyTTL),
	}
	if err := s.repo.Create(ctx, fresh); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create idempotency record: %w", err))
	}
	return &ports.IdempotencyResult{RecordID: fresh.ID}, nil
}

// Complete stores the handler's response for later replay.
func (s *IdempotencyServiceImpl) Complete(ctx context.Context, recordID uuid.UUID, status int, body []byte) error {
	if err := s.repo.Complete(ctx, recordID, status, body); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("complete idempotency record: %w", err))
	}
	return nil
}

// CompleteWithCacheKey persists the response and warms the redis fast path.
func (s *IdempotencyServiceImpl) CompleteWithCacheKey(ctx context.Context, recordID uuid.UUID, orgID uuid.UUID, key string, status int, body []byte) error {
	if err := s.Complete(ctx, recordID, status, body); err != nil {
		return err
	}
	s.backfillCache(ctx, domain.BuildIdempotencyCacheKey(orgID, key), status, body, time.Now().Add(domain.IdempotencyTTL))
	return nil
}

func (s *IdempotencyServiceImpl) backfillCache(ctx context.Context, cacheKey string, status int, body []byte, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	val, err := json.Marshal(cachedResponse{Status: status, Body: body})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, val, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("idempotency cache write failed")
	}
}
