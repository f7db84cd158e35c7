package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/learning"
	"github.com/crosve/Csphere/internal/storage"
	"github.com/crosve/Csphere/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float64{0, 3, 4}, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }

type fixture struct {
	store    *storage.Store
	index    *vectorstore.ChromemIndex
	embedder *stubEmbedder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)

	emb := &stubEmbedder{}
	learner := learning.NewProfileLearner(store, index, emb, learning.DefaultParams(), nil)
	return &fixture{
		store:    store,
		index:    index,
		embedder: emb,
		svc:      NewService(store, store, learner, index, nil),
	}
}

func TestCreateFolder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := fx.svc.CreateFolder(ctx, CreateRequest{
		OwnerID: "u1",
		Metadata: folders.FolderMetadata{
			Name:        " Music ",
			Keywords:    []string{"song", " "},
			URLPatterns: []string{`spotify\.com`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Music", f.Name)
	assert.Equal(t, []string{"song"}, f.Keywords)
	assert.True(t, f.BucketingEnabled)
	assert.Equal(t, folders.ProfileInitialized, f.ProfileState)
	assert.InDeltaSlice(t, []float64{0, 0.6, 0.8}, f.Profile, 1e-9)
	assert.Equal(t, 1, fx.index.Count())

	_, err = fx.store.GetUser(ctx, "u1")
	require.NoError(t, err)

	_, err = fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "music"}})
	assert.ErrorIs(t, err, ErrFolderExists)
}

func TestCreateFolder_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateFolder(ctx, CreateRequest{Metadata: folders.FolderMetadata{Name: "x"}})
	assert.ErrorIs(t, err, folders.ErrInvalidInput)

	_, err = fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "  "}})
	assert.ErrorIs(t, err, folders.ErrInvalidInput)

	_, err = fx.svc.CreateFolder(ctx, CreateRequest{
		OwnerID:  "u1",
		Metadata: folders.FolderMetadata{Name: "Bad", URLPatterns: []string{"(unclosed"}},
	})
	assert.ErrorIs(t, err, folders.ErrMalformedPattern)

	missing := "nope"
	_, err = fx.svc.CreateFolder(ctx, CreateRequest{
		OwnerID:  "u1",
		ParentID: &missing,
		Metadata: folders.FolderMetadata{Name: "Child"},
	})
	assert.ErrorIs(t, err, folders.ErrFolderNotFound)

	list, err := fx.store.ListFolders(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateFolder_ParentMustBeOwned(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	theirs, err := fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u2", Metadata: folders.FolderMetadata{Name: "Theirs"}})
	require.NoError(t, err)
	mine, err := fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "Mine"}})
	require.NoError(t, err)

	_, err = fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", ParentID: &theirs.ID, Metadata: folders.FolderMetadata{Name: "Child"}})
	assert.ErrorIs(t, err, folders.ErrFolderNotFound)

	child, err := fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", ParentID: &mine.ID, Metadata: folders.FolderMetadata{Name: "Child"}})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, mine.ID, *child.ParentID)
}

func TestCreateFolder_OracleDownStillCreates(t *testing.T) {
	fx := newFixture(t)
	fx.embedder.err = errors.New("oracle down")

	f, err := fx.svc.CreateFolder(context.Background(), CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "Tech"}})
	require.NoError(t, err)
	assert.Nil(t, f.Profile)
	assert.Equal(t, folders.ProfileNone, f.ProfileState)
	assert.Equal(t, 0, fx.index.Count())
}

func TestUpdateMetadata(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, err := fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "Tech"}})
	require.NoError(t, err)

	_, err = fx.svc.UpdateMetadata(ctx, f.ID, folders.FolderMetadata{Name: "Tech", URLPatterns: []string{"[z-a]"}})
	assert.ErrorIs(t, err, folders.ErrMalformedPattern)

	got, err := fx.svc.UpdateMetadata(ctx, f.ID, folders.FolderMetadata{Name: "Technology", Description: "software"})
	require.NoError(t, err)
	assert.Equal(t, "Technology", got.Name)
	assert.Equal(t, "software", got.Description)
	assert.Greater(t, got.Version, f.Version)
}

func TestSetBucketing_SyncsIndex(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, err := fx.svc.CreateFolder(ctx, CreateRequest{OwnerID: "u1", Metadata: folders.FolderMetadata{Name: "Tech"}})
	require.NoError(t, err)
	require.Equal(t, 1, fx.index.Count())

	got, err := fx.svc.SetBucketing(ctx, f.ID, false)
	require.NoError(t, err)
	assert.False(t, got.BucketingEnabled)
	assert.Equal(t, 0, fx.index.Count())

	_, err = fx.svc.SetBucketing(ctx, f.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.index.Count())

	_, err = fx.svc.SetBucketing(ctx, "ghost", true)
	assert.ErrorIs(t, err, folders.ErrFolderNotFound)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "folders.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const importBody = `
[[folder]]
name = "Music"
description = "songs, albums and playlists"
keywords = ["song", "album", "playlist"]
url_patterns = ['spotify\.com', 'soundcloud\.com']

[[folder]]
name = "Archive"
bucketing = false
`

func TestLoadImportFile(t *testing.T) {
	file, err := LoadImportFile(writeFile(t, importBody))
	require.NoError(t, err)
	require.Len(t, file.Folders, 2)

	music := file.Folders[0]
	assert.Equal(t, "Music", music.Name)
	assert.Equal(t, []string{"song", "album", "playlist"}, music.Keywords)
	assert.Equal(t, []string{`spotify\.com`, `soundcloud\.com`}, music.URLPatterns)
	assert.Nil(t, music.Bucketing)

	require.NotNil(t, file.Folders[1].Bucketing)
	assert.False(t, *file.Folders[1].Bucketing)
}

func TestLoadImportFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[[folder]\nname ="},
		{"unknown key", "[[folder]]\nname = \"A\"\ncolour = \"red\""},
		{"missing name", "[[folder]]\ndescription = \"no name\""},
		{"bad pattern", "[[folder]]\nname = \"A\"\nurl_patterns = ['(']"},
		{"duplicate", "[[folder]]\nname = \"A\"\n[[folder]]\nname = \"A\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadImportFile(writeFile(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidImport)
		})
	}

	_, err := LoadImportFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestImportPath(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	path := writeFile(t, importBody)

	res, err := fx.svc.ImportPath(ctx, "u1", path)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	assert.Empty(t, res.Updated)
	// Archive is not bucketed, so only Music is indexed.
	assert.Equal(t, 1, fx.index.Count())

	// Re-importing updates in place.
	res, err = fx.svc.ImportPath(ctx, "u1", path)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Updated, 2)

	list, err := fx.store.ListFolders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
