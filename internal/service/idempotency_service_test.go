package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newIdempotencyFixture(t *testing.T) (*IdempotencyServiceImpl, *mocks.MockIdempotencyRepository, *mocks.MockIdempotencyCache) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIdempotencyRepository(ctrl)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	svc := NewIdempotencyService(repo, cache, zerolog.Nop())
	return svc, repo, cache
}

func TestIdempotencyService_CacheHitReplays(t *testing.T) {
	svc, _, cache := newIdempotencyFixture(t)
	orgID := uuid.New()

	stored, _ := json.Marshal(cachedResponse{Status: http.StatusAccepted, Body: []byte(`{"id":"doc-1"}`)})
	cache.EXPECT().
		Get(gomock.Any(), domain.BuildIdempotencyCacheKey(orgID, "key-1")).
		Return(stored, nil)

	res, err := svc.BeginOrReplay(context.Background(), orgID, "key-1", "POST", "/api/v1/documents", "hash")
	require.NoError(t, err)
	assert.True(t, res.Replay)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.JSONEq(t, `{"id":"doc-1"}`, string(res.Body))
}

func TestIdempotencyService_DBHitReplaysAndBackfillsCache(t *testing.T) {
	svc, repo, cache := newIdempotencyFixture(t)
	orgID := uuid.New()
	status := http.StatusAccepted

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	repo.EXPECT().Get(gomock.Any(), orgID, "key-1").Return(&domain.IdempotencyRecord{
		ID:             uuid.New(),
		OrgID:          orgID,
		Key:            "key-1",
		ResponseStatus: &status,
		ResponseBody:   []byte(`{"id":"doc-1"}`),
		ExpiresAt:      time.Now().Add(time.Hour),
	}, nil)
	cache.EXPECT().Set(gomock.Any(), domain.BuildIdempotencyCacheKey(orgID, "key-1"), gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.BeginOrReplay(context.Background(), orgID, "key-1", "POST", "/api/v1/documents", "hash")
	require.NoError(t, err)
	assert.True(t, res.Replay)
	assert.Equal(t, http.StatusAccepted, res.Status)
}

func TestIdempotencyService_NewKeyProceeds(t *testing.T) {
	svc, repo, cache := newIdempotencyFixture(t)
	orgID := uuid.New()

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	repo.EXPECT().Get(gomock.Any(), orgID, "key-1").Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *domain.IdempotencyRecord) error {
			assert.Equal(t, orgID, rec.OrgID)
			assert.Equal(t, "key-1", rec.Key)
			assert.Equal(t, "POST", rec.Method)
			assert.Nil(t, rec.ResponseStatus)
			assert.WithinDuration(t, time.Now().Add(domain.IdempotencyTTL), rec.ExpiresAt, 5*time.Second)
			return nil
		})

	res, err := svc.BeginOrReplay(context.Background(), orgID, "key-1", "POST", "/api/v1/documents", "hash")
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.NotEqual(t, uuid.Nil, res.RecordID)
}

func TestIdempotencyService_IncompleteRecordProceedsAgain(t *testing.T) {
	svc, repo, cache := newIdempotencyFixture(t)
	orgID := uuid.New()
	recID := uuid.New()

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	repo.EXPECT().Get(gomock.Any(), orgID, "key-1").Return(&domain.IdempotencyRecord{
		ID:    recID,
		OrgID: orgID,
		Key:   "key-1",
	}, nil)

	res, err := svc.BeginOrReplay(context.Background(), orgID, "key-1", "POST", "/api/v1/documents", "hash")
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.Equal(t, recID, res.RecordID, "a crashed attempt's record is reused")
}

func TestIdempotencyService_CacheErrorFallsThrough(t *testing.T) {
	svc, repo, cache := newIdempotencyFixture(t)
	orgID := uuid.New()

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)
	repo.EXPECT().Get(gomock.Any(), orgID, "key-1").Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.BeginOrReplay(context.Background(), orgID, "key-1", "POST", "/api/v1/documents", "hash")
	require.NoError(t, err, "a cache outage must not fail the request")
	assert.False(t, res.Replay)
}

func TestIdempotencyService_CompleteWithCacheKey(t *testing.T) {
	svc, repo, cache := newIdempotencyFixture(t)
	orgID := uuid.New()
	recID := uuid.New()
	body := []byte(`{"id":"doc-1"}`)

	repo.EXPECT().Complete(gomock.Any(), recID, http.StatusAccepted, body).Return(nil)
	cache.EXPECT().
		Set(gomock.Any(), domain.BuildIdempotencyCacheKey(orgID, "key-1"), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, val []byte, _ time.Duration) error {
			var resp cachedResponse
			require.NoError(t, json.Unmarshal(val, &resp))
			assert.Equal(t, http.StatusAccepted, resp.Status)
			return nil
		})

	err := svc.CompleteWithCacheKey(context.Background(), recID, orgID, "key-1", http.StatusAccepted, body)
	require.NoError(t, err)
}
