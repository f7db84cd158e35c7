package recall

import (
	"context"
	"errors"
	"testing"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/storage"
	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/crosve/Csphere/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *storage.Store
	index *vectorstore.ChromemIndex
	r     *Recaller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)

	return &fixture{store: store, index: index, r: New(index, store, 0, nil)}
}

// addFolder creates a folder with profile and indexes it.
func (fx *fixture) addFolder(t *testing.T, owner, name string, profile []float64) *folders.Folder {
	t.Helper()
	ctx := context.Background()
	f := folders.NewFolder(owner, folders.FolderMetadata{Name: name})
	require.NoError(t, fx.store.CreateFolder(ctx, f))

	updated, err := fx.store.UpdateProfile(ctx, f.ID, vecmath.Normalize(profile), folders.ProfileInitialized, f.Version)
	require.NoError(t, err)
	require.NoError(t, vectorstore.Sync(ctx, fx.index, updated))
	return updated
}

func TestRecall_OrdersBySimilarity(t *testing.T) {
	fx := newFixture(t)
	far := fx.addFolder(t, "u1", "Far", []float64{0, 0, 1})
	near := fx.addFolder(t, "u1", "Near", []float64{1, 0, 0})
	mid := fx.addFolder(t, "u1", "Mid", []float64{1, 1, 0})

	got, err := fx.r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, near.ID, got[0].Folder.ID)
	assert.Equal(t, mid.ID, got[1].Folder.ID)
	assert.Equal(t, far.ID, got[2].Folder.ID)
	assert.InDelta(t, 1.0, *got[0].Similarity, 1e-6)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, *got[i-1].Similarity, *got[i].Similarity)
	}
}

func TestRecall_RespectsLimit(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 7; i++ {
		fx.addFolder(t, "u1", "F", []float64{1, float64(i), 0})
	}

	got, err := fx.r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)

	got, err = fx.r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	fx.r.SetDefaultLimit(3)
	got, err = fx.r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRecall_OnlyOwnersEligibleFolders(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	mine := fx.addFolder(t, "u1", "Mine", []float64{1, 0, 0})
	fx.addFolder(t, "u2", "Theirs", []float64{1, 0, 0})

	// No profile: never indexed.
	require.NoError(t, fx.store.CreateFolder(ctx, folders.NewFolder("u1", folders.FolderMetadata{Name: "Empty"})))

	got, err := fx.r.Recall(ctx, []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].Folder.ID)
}

func TestRecall_DropsStaleIndexEntries(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	keep := fx.addFolder(t, "u1", "Keep", []float64{1, 0, 0})
	disabled := fx.addFolder(t, "u1", "Disabled", []float64{1, 0.1, 0})

	// Bucketing turned off in the store without syncing the index.
	_, err := fx.store.SetBucketing(ctx, disabled.ID, false)
	require.NoError(t, err)

	// Indexed folder that never existed in the store.
	require.NoError(t, fx.index.Upsert(ctx, vectorstore.Entry{
		FolderID:         "ghost",
		OwnerID:          "u1",
		BucketingEnabled: true,
		Profile:          []float64{1, 0, 0},
	}))

	got, err := fx.r.Recall(ctx, []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].Folder.ID)
}

func TestRecall_NoFolders(t *testing.T) {
	fx := newFixture(t)

	got, err := fx.r.Recall(context.Background(), []float64{1, 0, 0}, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecall_DimensionMismatch(t *testing.T) {
	fx := newFixture(t)
	fx.addFolder(t, "u1", "F", []float64{1, 0, 0})

	_, err := fx.r.Recall(context.Background(), []float64{1, 0}, "u1", 0)
	assert.ErrorIs(t, err, folders.ErrDimensionMismatch)
	assert.False(t, folders.IsRetryable(err))
}

type failingIndex struct {
	vectorstore.FolderIndex
	err error
}

func (f failingIndex) Dimension() int { return 3 }

func (f failingIndex) Nearest(context.Context, string, []float64, int) ([]vectorstore.Neighbor, error) {
	return nil, f.err
}

func TestRecall_IndexFailureIsRecallFailure(t *testing.T) {
	fx := newFixture(t)
	r := New(failingIndex{err: errors.New("connection refused")}, fx.store, 0, nil)

	_, err := r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, folders.ErrRecallFailure)
	assert.True(t, folders.IsRetryable(err))
	assert.Contains(t, err.Error(), "connection refused")
}

type scoringIndex struct {
	vectorstore.FolderIndex
	hits []vectorstore.Neighbor
}

func (s scoringIndex) Dimension() int { return 3 }

func (s scoringIndex) Nearest(context.Context, string, []float64, int) ([]vectorstore.Neighbor, error) {
	return s.hits, nil
}

func TestRecall_ClampsAndSortsBackendScores(t *testing.T) {
	fx := newFixture(t)
	a := fx.addFolder(t, "u1", "A", []float64{1, 0, 0})
	b := fx.addFolder(t, "u1", "B", []float64{0, 1, 0})

	r := New(scoringIndex{hits: []vectorstore.Neighbor{
		{FolderID: a.ID, Similarity: 0.4},
		{FolderID: b.ID, Similarity: 1.0000003},
	}}, fx.store, 0, nil)

	got, err := r.Recall(context.Background(), []float64{1, 0, 0}, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].Folder.ID)
	assert.Equal(t, 1.0, *got[0].Similarity)
	assert.Equal(t, 0.4, *got[1].Similarity)
}
