package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)
	return idx
}

func entry(id, owner string, enabled bool, v ...float64) Entry {
	return Entry{FolderID: id, OwnerID: owner, BucketingEnabled: enabled, Profile: v}
}

func TestChromemIndex_NearestOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, entry("music", "u1", true, 1, 0, 0)))
	require.NoError(t, idx.Upsert(ctx, entry("tech", "u1", true, 0, 1, 0)))
	require.NoError(t, idx.Upsert(ctx, entry("mixed", "u1", true, 1, 1, 0)))

	got, err := idx.Nearest(ctx, "u1", []float64{1, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "music", got[0].FolderID)
	assert.Equal(t, "mixed", got[1].FolderID)
	assert.Equal(t, "tech", got[2].FolderID)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
	assert.InDelta(t, 0.995, got[0].Similarity, 0.01)
}

func TestChromemIndex_NearestFiltersOwnerAndBucketing(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, entry("mine", "u1", true, 1, 0, 0)))
	require.NoError(t, idx.Upsert(ctx, entry("theirs", "u2", true, 1, 0, 0)))
	require.NoError(t, idx.Upsert(ctx, entry("disabled", "u1", false, 1, 0, 0)))

	got, err := idx.Nearest(ctx, "u1", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].FolderID)

	got, err = idx.Nearest(ctx, "nobody", []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChromemIndex_LimitCapped(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	got, err := idx.Nearest(ctx, "u1", []float64{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got, "empty index")

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Upsert(ctx, entry(id, "u1", true, 1, 0.5, 0)))
	}
	got, err = idx.Nearest(ctx, "u1", []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = idx.Nearest(ctx, "u1", []float64{1, 0, 0}, 0)
	assert.Error(t, err)
}

func TestChromemIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, entry("f", "u1", true, 1, 0, 0)))
	require.NoError(t, idx.Upsert(ctx, entry("f", "u1", true, 0, 1, 0)))
	assert.Equal(t, 1, idx.Count())

	got, err := idx.Nearest(ctx, "u1", []float64{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
}

func TestChromemIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, entry("f", "u1", true, 1, 0, 0)))
	require.NoError(t, idx.Delete(ctx, "f"))
	assert.Equal(t, 0, idx.Count())

	// absent folder
	require.NoError(t, idx.Delete(ctx, "missing"))
}

func TestChromemIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	err := idx.Upsert(ctx, entry("f", "u1", true, 1, 0))
	assert.ErrorIs(t, err, folders.ErrDimensionMismatch)

	_, err = idx.Nearest(ctx, "u1", []float64{1, 0, 0, 0}, 3)
	assert.ErrorIs(t, err, folders.ErrDimensionMismatch)
}

func TestChromemIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewChromemIndex(ChromemConfig{Path: dir, Dimension: 3}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, entry("f", "u1", true, 0, 0, 1)))
	require.NoError(t, idx.Close())

	reopened, err := NewChromemIndex(ChromemConfig{Path: dir, Dimension: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestChromemConfig_Validate(t *testing.T) {
	_, err := NewChromemIndex(ChromemConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChromemIndex(ChromemConfig{Dimension: 3, Collection: "Bad-Name"}, nil)
	assert.ErrorIs(t, err, ErrInvalidCollectionName)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	f := &folders.Folder{ID: "f", OwnerID: "u1", BucketingEnabled: true, Profile: []float64{1, 0, 0}}
	require.NoError(t, Sync(ctx, idx, f))
	assert.Equal(t, 1, idx.Count())

	f.BucketingEnabled = false
	require.NoError(t, Sync(ctx, idx, f))
	assert.Equal(t, 0, idx.Count())

	f.BucketingEnabled = true
	f.Profile = nil
	require.NoError(t, Sync(ctx, idx, f))
	assert.Equal(t, 0, idx.Count())
}

type staticSource struct {
	folders []folders.Folder
	err     error
}

func (s staticSource) ListIndexable(context.Context) ([]folders.Folder, error) {
	return s.folders, s.err
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	src := staticSource{folders: []folders.Folder{
		{ID: "a", OwnerID: "u1", BucketingEnabled: true, Profile: []float64{1, 0, 0}},
		{ID: "b", OwnerID: "u1", BucketingEnabled: true, Profile: []float64{0, 1, 0}},
		{ID: "short", OwnerID: "u1", BucketingEnabled: true, Profile: []float64{1}},
	}}
	n, err := Reindex(ctx, idx, src, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Count())

	_, err = Reindex(ctx, idx, staticSource{err: errors.New("boom")}, nil)
	assert.Error(t, err)
}

func TestNew_Provider(t *testing.T) {
	ctx := context.Background()

	idx, err := New(ctx, config.VectorStoreConfig{Provider: "chromem", Dimension: 4, Collection: "folders_test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Dimension())
	require.NoError(t, idx.Health(ctx))

	_, err = New(ctx, config.VectorStoreConfig{Provider: "pinecone", Dimension: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("csphere_folders"))
	for _, name := range []string{"", "UPPER", "has space", "../etc", "dash-ed"} {
		assert.ErrorIs(t, ValidateCollectionName(name), ErrInvalidCollectionName, name)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{status.Error(grpccodes.Unavailable, "down"), true},
		{status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{status.Error(grpccodes.Aborted, "aborted"), true},
		{status.Error(grpccodes.ResourceExhausted, "full"), true},
		{status.Error(grpccodes.InvalidArgument, "bad"), false},
		{status.Error(grpccodes.NotFound, "gone"), false},
		{status.Error(grpccodes.PermissionDenied, "no"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "%v", tt.err)
	}
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newCircuitBreaker(2)
	b.now = func() time.Time { return now }

	assert.False(t, b.isOpen())
	b.recordFailure()
	assert.False(t, b.isOpen())
	b.recordFailure()
	assert.True(t, b.isOpen())

	now = now.Add(31 * time.Second)
	assert.False(t, b.isOpen(), "half-open after reset window")

	b.recordFailure()
	b.recordFailure()
	assert.True(t, b.isOpen())
	b.reset()
	assert.False(t, b.isOpen())
}

func TestQdrantIndex_RetryOperation(t *testing.T) {
	x := &QdrantIndex{
		config:  QdrantConfig{MaxRetries: 2, RetryBackoff: time.Millisecond},
		logger:  zap.NewNop(),
		breaker: newCircuitBreaker(10),
	}

	calls := 0
	err := x.retryOperation(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return status.Error(grpccodes.Unavailable, "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = x.retryOperation(context.Background(), "op", func() error {
		calls++
		return status.Error(grpccodes.InvalidArgument, "bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not retried")

	x.breaker = newCircuitBreaker(1)
	x.breaker.recordFailure()
	err = x.retryOperation(context.Background(), "op", func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestPointID(t *testing.T) {
	id := uuid.New().String()
	assert.Equal(t, id, pointID(id))

	a := pointID("folder-1")
	assert.Equal(t, a, pointID("folder-1"))
	assert.NotEqual(t, a, pointID("folder-2"))
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestQdrantConfig_Defaults(t *testing.T) {
	c := QdrantConfig{Dimension: 8}
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 6334, c.Port)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 5, c.CircuitBreakerThreshold)

	c.Port = 70000
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}
