package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/logging"
	"github.com/crosve/Csphere/internal/storage"
	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/crosve/Csphere/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) Dimension() int { return len(s.vec) }

type fixture struct {
	store    *storage.Store
	index    *vectorstore.ChromemIndex
	embedder *stubEmbedder
	learner  *ProfileLearner
	log      *logging.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)

	log := logging.NewTestLogger()
	emb := &stubEmbedder{vec: []float64{0, 0, 1}}
	return &fixture{
		store:    store,
		index:    index,
		embedder: emb,
		learner:  NewProfileLearner(store, index, emb, DefaultParams(), log.Underlying()),
		log:      log,
	}
}

func (fx *fixture) folderWithProfile(t *testing.T, profile []float64) *folders.Folder {
	t.Helper()
	ctx := context.Background()
	f := folders.NewFolder("u1", folders.FolderMetadata{Name: "Tech"})
	require.NoError(t, fx.store.CreateFolder(ctx, f))
	if profile == nil {
		return f
	}
	updated, err := fx.store.UpdateProfile(ctx, f.ID, vecmath.Normalize(profile), folders.ProfileInitialized, f.Version)
	require.NoError(t, err)
	return updated
}

func (fx *fixture) reload(t *testing.T, id string) *folders.Folder {
	t.Helper()
	f, err := fx.store.GetFolder(context.Background(), id)
	require.NoError(t, err)
	return f
}

func cosine(t *testing.T, a, b []float64) float64 {
	t.Helper()
	c, err := vecmath.Cosine(a, b)
	require.NoError(t, err)
	return c
}

func TestReinforce_KeepsUnitNormAndMovesTowardsContent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	content := vecmath.Normalize([]float64{0, 1, 0})

	before := cosine(t, f.Profile, content)
	require.NoError(t, fx.learner.Reinforce(ctx, f.ID, content))

	got := fx.reload(t, f.ID)
	assert.InDelta(t, 1.0, vecmath.Norm(got.Profile), 1e-6)
	assert.Greater(t, cosine(t, got.Profile, content), before)
	assert.Equal(t, folders.ProfileLearning, got.ProfileState)
	assert.Equal(t, f.Version+1, got.Version)

	// (0.9, 0.1, 0) normalized
	want := vecmath.Normalize([]float64{0.9, 0.1, 0})
	assert.InDeltaSlice(t, want, got.Profile, 1e-9)
}

func TestReinforce_ConvergesOnRepeatedContent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	content := vecmath.Normalize([]float64{0, 1, 1})

	prev := cosine(t, f.Profile, content)
	for i := 0; i < 60; i++ {
		require.NoError(t, fx.learner.Reinforce(ctx, f.ID, content))
		cur := cosine(t, fx.reload(t, f.ID).Profile, content)
		assert.GreaterOrEqual(t, cur, prev-1e-12)
		prev = cur
	}
	assert.InDelta(t, 1.0, prev, 1e-2)
}

func TestPenalize_IncreasesDistance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 1, 0})
	content := vecmath.Normalize([]float64{0, 1, 0})

	before := cosine(t, f.Profile, content)
	require.NoError(t, fx.learner.Penalize(ctx, f.ID, content))

	got := fx.reload(t, f.ID)
	assert.InDelta(t, 1.0, vecmath.Norm(got.Profile), 1e-6)
	assert.Less(t, cosine(t, got.Profile, content), before)
	assert.Equal(t, folders.ProfileLearning, got.ProfileState)
}

func TestAdjust_Skips(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	noProfile := fx.folderWithProfile(t, nil)
	withProfile := fx.folderWithProfile(t, []float64{1, 0, 0})

	tests := []struct {
		name     string
		folderID string
		vector   []float64
		reason   string
	}{
		{"missing folder", "ghost", []float64{1, 0, 0}, "folder not found"},
		{"no profile", noProfile.ID, []float64{1, 0, 0}, "folder has no profile"},
		{"no content vector", withProfile.ID, nil, "content has no embedding"},
		{"dimension mismatch", withProfile.ID, []float64{1, 0}, "dimension mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx.log.Reset()
			require.NoError(t, fx.learner.Reinforce(ctx, tt.folderID, tt.vector))
			require.NoError(t, fx.learner.Penalize(ctx, tt.folderID, tt.vector))
			fx.log.AssertField(t, "profile update skipped", "reason", tt.reason)
		})
	}

	assert.Equal(t, withProfile.Version, fx.reload(t, withProfile.ID).Version)
	fx.log.AssertLogged(t, zapcore.WarnLevel, "content vector dimension mismatch")
}

func TestReinforce_SyncsIndex(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	assert.Equal(t, 0, fx.index.Count())

	require.NoError(t, fx.learner.Reinforce(ctx, f.ID, []float64{0, 1, 0}))
	assert.Equal(t, 1, fx.index.Count())

	hits, err := fx.index.Nearest(ctx, "u1", []float64{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, f.ID, hits[0].FolderID)

	_, err = fx.learner.ClearProfile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fx.index.Count())
}

func TestClearProfile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})

	got, err := fx.learner.ClearProfile(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Profile)
	assert.Equal(t, folders.ProfileNone, got.ProfileState)

	// Clearing again is a no-op.
	again, err := fx.learner.ClearProfile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, again.Version)

	_, err = fx.learner.ClearProfile(ctx, "ghost")
	assert.ErrorIs(t, err, folders.ErrFolderNotFound)
}

// racingRepo bumps the folder version behind the learner's back before
// each of the first n profile writes.
type racingRepo struct {
	*storage.Store
	mu sync.Mutex
	n  int
}

func (r *racingRepo) UpdateProfile(ctx context.Context, id string, profile []float64, state folders.ProfileState, expectedVersion int64) (*folders.Folder, error) {
	r.mu.Lock()
	race := r.n > 0
	if race {
		r.n--
	}
	r.mu.Unlock()

	if race {
		cur, err := r.Store.GetFolder(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := r.Store.UpdateProfile(ctx, id, cur.Profile, cur.ProfileState, cur.Version); err != nil {
			return nil, err
		}
	}
	return r.Store.UpdateProfile(ctx, id, profile, state, expectedVersion)
}

func TestReinforce_RetriesOnVersionConflict(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})

	repo := &racingRepo{Store: fx.store, n: 2}
	l := NewProfileLearner(repo, nil, nil, DefaultParams(), nil)

	require.NoError(t, l.Reinforce(ctx, f.ID, []float64{0, 1, 0}))
	got := fx.reload(t, f.ID)
	// two foreign writes plus ours
	assert.Equal(t, f.Version+3, got.Version)
	assert.Equal(t, folders.ProfileLearning, got.ProfileState)
}

func TestReinforce_GivesUpAfterMaxRetries(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})

	params := DefaultParams()
	params.MaxUpdateRetries = 3
	repo := &racingRepo{Store: fx.store, n: 10}
	l := NewProfileLearner(repo, nil, nil, params, nil)

	err := l.Reinforce(ctx, f.ID, []float64{0, 1, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, folders.ErrVersionConflict)
	assert.True(t, folders.IsRetryable(err))
	assert.Equal(t, folders.ProfileInitialized, fx.reload(t, f.ID).ProfileState)
}

func TestReinforce_ConcurrentUpdatesAreNotLost(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := []float64{0, 1, 0}
			if i%2 == 0 {
				v = []float64{0, 0, 1}
			}
			errs <- fx.learner.Reinforce(ctx, f.ID, v)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := fx.reload(t, f.ID)
	assert.Equal(t, f.Version+workers, got.Version)
	assert.InDelta(t, 1.0, vecmath.Norm(got.Profile), 1e-6)
}

func TestLockShard(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 10*lockShards; i++ {
		id := fmt.Sprintf("folder-%d", i)
		shard := lockShard(id)
		require.GreaterOrEqual(t, shard, 0)
		require.Less(t, shard, lockShards)
		assert.Equal(t, shard, lockShard(id))
		seen[shard] = true
	}
	assert.Greater(t, len(seen), lockShards/2, "ids spread over the shards")
}

func TestReinforce_ManyFoldersShareShards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// More folders than shards, so some must collide.
	n := lockShards + 8
	ids := make([]string, n)
	versions := make([]int64, n)
	for i := range ids {
		f := fx.folderWithProfile(t, []float64{1, 0, 0})
		ids[i], versions[i] = f.ID, f.Version
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for _, id := range ids {
		for _, v := range [][]float64{{0, 1, 0}, {0, 0, 1}} {
			wg.Add(1)
			go func(id string, v []float64) {
				defer wg.Done()
				errs <- fx.learner.Reinforce(ctx, id, v)
			}(id, v)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i, id := range ids {
		assert.Equal(t, versions[i]+2, fx.reload(t, id).Version)
	}
}

func TestReinforce_CancelledContext(t *testing.T) {
	fx := newFixture(t)
	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.learner.Reinforce(ctx, f.ID, []float64{0, 1, 0})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, f.Version, fx.reload(t, f.ID).Version)
}

func TestDeriveFromMetadata(t *testing.T) {
	assert.Equal(t, "Folder name: Music", DeriveFromMetadata("Music", "", nil, nil))
	assert.Equal(t,
		"Folder name: Music\nDescription: songs\nKeywords: song, album\nURL patterns: spotify\\.com, bandcamp",
		DeriveFromMetadata("Music", "songs", []string{"song", "album"}, []string{`spotify\.com`, "bandcamp"}),
	)
	assert.Equal(t, "Folder name: Tech\nURL patterns: github",
		DeriveFromMetadata("Tech", "", nil, []string{"github"}))
}

func TestInitializeProfile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, nil)

	got, err := fx.learner.InitializeProfile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, got.Profile)
	assert.Equal(t, folders.ProfileInitialized, got.ProfileState)
	assert.Equal(t, 1, fx.index.Count())

	// A second call keeps the existing profile.
	fx.embedder.vec = []float64{1, 0, 0}
	again, err := fx.learner.InitializeProfile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, again.Profile)
	assert.Equal(t, got.Version, again.Version)
}

func TestInitializeProfile_OracleFailure(t *testing.T) {
	fx := newFixture(t)
	f := fx.folderWithProfile(t, nil)
	fx.embedder.err = errors.New("oracle down")

	_, err := fx.learner.InitializeProfile(context.Background(), f.ID)
	assert.ErrorIs(t, err, folders.ErrEmbeddingOracleFailure)
	assert.Equal(t, folders.ProfileNone, fx.reload(t, f.ID).ProfileState)
}

func TestApplyMetadata_BlendsWithExistingProfile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folderWithProfile(t, []float64{1, 0, 0})

	got, err := fx.learner.ApplyMetadata(ctx, f.ID, folders.FolderMetadata{
		Name:     "Science",
		Keywords: []string{"physics"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Science", got.Name)
	assert.Equal(t, []string{"physics"}, got.Keywords)

	want := vecmath.Normalize([]float64{0.3, 0, 0.7})
	assert.InDeltaSlice(t, want, got.Profile, 1e-9)
	assert.Equal(t, folders.ProfileInitialized, got.ProfileState)
}

func TestApplyMetadata_WithoutProfileInitializes(t *testing.T) {
	fx := newFixture(t)
	f := fx.folderWithProfile(t, nil)

	got, err := fx.learner.ApplyMetadata(context.Background(), f.ID, folders.FolderMetadata{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, got.Profile)
	assert.Equal(t, folders.ProfileInitialized, got.ProfileState)
}

func TestApplyMetadata_OracleFailureKeepsProfile(t *testing.T) {
	fx := newFixture(t)
	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	fx.embedder.err = errors.New("oracle down")

	got, err := fx.learner.ApplyMetadata(context.Background(), f.ID, folders.FolderMetadata{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, f.Profile, got.Profile)
	assert.Equal(t, f.Version, got.Version)
	fx.log.AssertLogged(t, zapcore.WarnLevel, "metadata saved without profile update")
}

func TestApplyMetadata_InvalidInput(t *testing.T) {
	fx := newFixture(t)
	f := fx.folderWithProfile(t, nil)

	_, err := fx.learner.ApplyMetadata(context.Background(), f.ID, folders.FolderMetadata{Name: "  "})
	assert.ErrorIs(t, err, folders.ErrInvalidInput)

	_, err = fx.learner.ApplyMetadata(context.Background(), "ghost", folders.FolderMetadata{Name: "x"})
	assert.ErrorIs(t, err, folders.ErrFolderNotFound)
}

func TestSetParams(t *testing.T) {
	fx := newFixture(t)
	fx.learner.SetParams(Params{ReinforceAlpha: 0.5, PenalizeBeta: 0.2, MetadataAlpha: 0.6})
	p := fx.learner.Params()
	assert.Equal(t, 0.5, p.ReinforceAlpha)
	assert.Equal(t, 5, p.MaxUpdateRetries)

	f := fx.folderWithProfile(t, []float64{1, 0, 0})
	require.NoError(t, fx.learner.Reinforce(context.Background(), f.ID, []float64{0, 1, 0}))
	assert.InDeltaSlice(t, vecmath.Normalize([]float64{0.5, 0.5, 0}), fx.reload(t, f.ID).Profile, 1e-9)
}

func TestUserProfiles_Refresh(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, fx.store.EnsureUser(ctx, "u1"))

	save := func(url string, vec []float64, at time.Time) {
		c, err := fx.store.CreateContent(ctx, &folders.Content{URL: url})
		require.NoError(t, err)
		require.NoError(t, fx.store.UpdateEnrichment(ctx, c.ID, "", vec, nil))
		_, err = fx.store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: c.ID, SavedAt: at})
		require.NoError(t, err)
	}
	save("https://a.example", []float64{1, 0, 0}, base)
	save("https://b.example", []float64{0, 1, 0}, base.Add(time.Hour))

	up := NewUserProfiles(fx.store, fx.store, 0, nil)
	assert.Equal(t, 0.1, up.Alpha())

	// First refresh: normalized centroid of everything.
	first := base.Add(24 * time.Hour)
	res, err := up.Refresh(ctx, "u1", first)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 2, res.Items)

	u, err := fx.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, vecmath.Normalize([]float64{1, 1, 0}), u.Profile, 1e-9)
	require.NotNil(t, u.LastProfileUpdate)
	assert.True(t, base.Add(time.Hour).Equal(*u.LastProfileUpdate), "stamped with the newest saved_at")

	// Nothing new: skipped.
	res, err = up.Refresh(ctx, "u1", first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "no new content", res.Reason)

	// New content is blended in with α=0.1.
	save("https://c.example", []float64{0, 0, 1}, first.Add(2*time.Hour))
	res, err = up.Refresh(ctx, "u1", first.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Items)

	old := vecmath.Normalize([]float64{1, 1, 0})
	want, err := vecmath.Blend(old, []float64{0, 0, 1}, 0.1)
	require.NoError(t, err)
	u, err = fx.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, vecmath.Normalize(want), u.Profile, 1e-9)
	assert.InDelta(t, 1.0, vecmath.Norm(u.Profile), 1e-6)
}

func TestUserProfiles_RefreshWindowEndsAtNow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)
	require.NoError(t, fx.store.EnsureUser(ctx, "u1"))

	c, err := fx.store.CreateContent(ctx, &folders.Content{URL: "https://late.example"})
	require.NoError(t, err)
	require.NoError(t, fx.store.UpdateEnrichment(ctx, c.ID, "", []float64{1, 0, 0}, nil))
	_, err = fx.store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: c.ID, SavedAt: at.Add(10 * time.Minute)})
	require.NoError(t, err)

	up := NewUserProfiles(fx.store, fx.store, 0, nil)

	// Saved after the run's time: not part of this window.
	res, err := up.Refresh(ctx, "u1", at)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 0, res.Items)

	res, err = up.Refresh(ctx, "u1", at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Items)

	res, err = up.Refresh(ctx, "u1", at.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 0, res.Items)
	assert.Equal(t, "no new content", res.Reason)
}

func TestUserProfiles_RefreshWaitsForEnrichment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, fx.store.EnsureUser(ctx, "u1"))

	save := func(url string, vec []float64, at time.Time) string {
		c, err := fx.store.CreateContent(ctx, &folders.Content{URL: url})
		require.NoError(t, err)
		if vec != nil {
			require.NoError(t, fx.store.UpdateEnrichment(ctx, c.ID, "", vec, nil))
		}
		_, err = fx.store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: c.ID, SavedAt: at})
		require.NoError(t, err)
		return c.ID
	}
	save("https://a.example", []float64{1, 0, 0}, base)
	slow := save("https://slow.example", nil, base.Add(time.Hour))
	save("https://b.example", []float64{0, 1, 0}, base.Add(2*time.Hour))

	up := NewUserProfiles(fx.store, fx.store, 0, nil)

	res, err := up.Refresh(ctx, "u1", base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Items)
	assert.Equal(t, 2, res.Pending)

	u, err := fx.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.LastProfileUpdate)
	assert.True(t, base.Equal(*u.LastProfileUpdate))

	res, err = up.Refresh(ctx, "u1", base.Add(4*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "awaiting enrichment", res.Reason)

	// Once enriched, the held-back bookmarks are folded in together.
	require.NoError(t, fx.store.UpdateEnrichment(ctx, slow, "", []float64{0, 0, 1}, nil))
	res, err = up.Refresh(ctx, "u1", base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 2, res.Items)
	assert.Zero(t, res.Pending)

	u, err = fx.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, base.Add(2*time.Hour).Equal(*u.LastProfileUpdate))
}

func TestUserProfiles_RefreshGivesUpOnStaleEnrichment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, fx.store.EnsureUser(ctx, "u1"))

	stuck, err := fx.store.CreateContent(ctx, &folders.Content{URL: "https://stuck.example"})
	require.NoError(t, err)
	_, err = fx.store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: stuck.ID, SavedAt: base})
	require.NoError(t, err)
	c, err := fx.store.CreateContent(ctx, &folders.Content{URL: "https://ok.example"})
	require.NoError(t, err)
	require.NoError(t, fx.store.UpdateEnrichment(ctx, c.ID, "", []float64{1, 0, 0}, nil))
	_, err = fx.store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: c.ID, SavedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	up := NewUserProfiles(fx.store, fx.store, 0, nil)
	res, err := up.Refresh(ctx, "u1", base.Add(pendingGrace+time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Items)
	assert.Zero(t, res.Pending)
}

func TestUserProfiles_RefreshUnknownUser(t *testing.T) {
	fx := newFixture(t)
	up := NewUserProfiles(fx.store, fx.store, 0.2, nil)
	assert.Equal(t, 0.2, up.Alpha())

	_, err := up.Refresh(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, folders.ErrUserNotFound)
}
