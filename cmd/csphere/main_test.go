package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/ingest"
	"github.com/crosve/Csphere/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config using a temp SQLite file, an in-memory
// chromem index and a fake TEI server returning [1,0,0].
func writeConfig(t *testing.T) string {
	t.Helper()
	tei := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0, 0}})
	}))
	t.Cleanup(tei.Close)

	dir := t.TempDir()
	yaml := `
storage:
  path: ` + filepath.Join(dir, "csphere.db") + `
vectorstore:
  provider: chromem
  chromem_path: ""
  dimension: 3
embeddings:
  provider: tei
  base_url: ` + tei.URL + `
  summary_model: ""
  dimension: 3
  max_retries: 0
logging:
  level: error
`
	path := filepath.Join(dir, "csphere.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "reindex", "folders", "explain", "enqueue", "profiles", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestImportReindexAndExplain(t *testing.T) {
	cfg := writeConfig(t)
	toml := filepath.Join(t.TempDir(), "folders.toml")
	require.NoError(t, os.WriteFile(toml, []byte(`
[[folder]]
name = "Go"
description = "Go language articles"
keywords = ["golang"]
url_patterns = ['go\.dev/']
bucketing = true

[[folder]]
name = "Cooking"
keywords = ["recipe"]
bucketing = true
`), 0o600))

	out, err := execute(t, "folders", "import", toml, "--user", "u1", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2 created, 0 updated")

	out, err = execute(t, "reindex", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 folders into chromem")

	out, err = execute(t, "explain", "--user", "u1", "--url", "https://go.dev/blog/loopvar", "--text", "loop variables", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Go")
	assert.Contains(t, out, "match: ")
	assert.Contains(t, out, string(folders.ReasonPattern))

	out, err = execute(t, "explain", "--user", "u1", "--text", "x", "--json", "--config", cfg)
	require.NoError(t, err)
	var ex matcher.Explanation
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	assert.Len(t, ex.Candidates, 2)
}

func TestExplainRequiresInput(t *testing.T) {
	_, err := execute(t, "explain", "--user", "u1")
	assert.ErrorContains(t, err, "one of --content or --text is required")
}

func TestEnqueueOptionsBuild(t *testing.T) {
	t.Run("bookmark", func(t *testing.T) {
		html := filepath.Join(t.TempDir(), "page.html")
		require.NoError(t, os.WriteFile(html, []byte("<html><title>x</title></html>"), 0o600))
		o := &enqueueOptions{userID: "u1", url: "https://example.com", title: "Example", source: "cli", htmlFile: html}

		task, payload, err := o.build()
		require.NoError(t, err)
		assert.Equal(t, ingest.TaskProcessMessage, task)
		msg, ok := payload.(ingest.BookmarkMessage)
		require.True(t, ok)
		assert.Equal(t, "u1", msg.UserID)
		assert.Equal(t, "https://example.com", msg.Content.URL)
		assert.NotNil(t, msg.Content.FirstSavedAt)
		assert.Contains(t, msg.RawHTML, "<title>x</title>")
	})

	t.Run("raw task", func(t *testing.T) {
		o := &enqueueOptions{task: ingest.TaskUserProfileRefresh, payload: `{"user_id":"u1"}`}
		task, payload, err := o.build()
		require.NoError(t, err)
		assert.Equal(t, ingest.TaskUserProfileRefresh, task)
		assert.Equal(t, json.RawMessage(`{"user_id":"u1"}`), payload)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := (&enqueueOptions{task: "x", payload: "{"}).build()
		assert.ErrorContains(t, err, "valid JSON")
		_, _, err = (&enqueueOptions{userID: "u1"}).build()
		assert.ErrorContains(t, err, "--user and --url")
	})
}

func TestRenderExplanation(t *testing.T) {
	id := "f-tech"
	ex := &matcher.Explanation{
		Result:    folders.MatchResult{FolderID: &id, Matched: true, Reason: folders.ReasonScore, Score: 0.42},
		Threshold: 0.2,
		Candidates: []folders.ScoreBreakdown{
			{FolderID: "f-tech", FolderName: "Tech", Similarity: 0.91, Keyword: 0.5, Fuzzy: 0.3, Semantic: 0.4, Total: 0.42},
			{FolderID: "f-life", FolderName: "Life", Similarity: 0.2, Skipped: true, SkipReason: "no profile"},
		},
	}

	var out bytes.Buffer
	renderExplanation(&out, ex)
	s := out.String()
	assert.Contains(t, s, "Tech")
	assert.Contains(t, s, "no profile")
	assert.Contains(t, s, "0.910")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(s), "match: f-tech (score, score 0.42, threshold 0.20)"))

	out.Reset()
	renderExplanation(&out, &matcher.Explanation{Result: folders.NoMatch(folders.ReasonNoEligibleFolders), Threshold: 0.2})
	assert.Contains(t, out.String(), "no match: no_eligible_folders")
}
