// Package matcher routes a content item into the best smart folder of its
// owner.
//
// Matching recalls the owner's nearest folders, lets the first folder whose
// URL pattern matches win outright, and otherwise ranks the candidates by
// their layered score. The best candidate is filed only when its score,
// rounded to two decimals, reaches the confidence threshold. A newly
// created link reinforces the folder profile; an existing link is reported
// as already linked and left alone.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/reranker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("csphere.matcher")

// Recaller returns an owner's candidate folders for a content vector.
type Recaller interface {
	Recall(ctx context.Context, vector []float64, userID string, limit int) ([]folders.MatchCandidate, error)
}

// Learner adjusts folder profiles after links change.
type Learner interface {
	Reinforce(ctx context.Context, folderID string, contentVector []float64) error
	Penalize(ctx context.Context, folderID string, contentVector []float64) error
}

// Settings are the hot-swappable gating parameters.
type Settings struct {
	// Threshold is the minimum rounded score for a confident match.
	Threshold float64
	// RecallLimit is the number of candidates recalled; <= 0 uses the
	// recaller's default.
	RecallLimit int
}

// SettingsFrom extracts the matcher settings from the matching config.
func SettingsFrom(cfg config.MatchingConfig) Settings {
	return Settings{Threshold: cfg.Threshold, RecallLimit: cfg.RecallLimit}
}

// Matcher files content into folders.
type Matcher struct {
	recall  Recaller
	scorer  *reranker.Scorer
	links   folders.LinkRepository
	folders folders.FolderRepository
	content folders.ContentRepository
	learner Learner
	logger  *zap.Logger

	settings atomic.Pointer[Settings]
}

// Deps bundles the Matcher's collaborators.
type Deps struct {
	Recall  Recaller
	Scorer  *reranker.Scorer
	Links   folders.LinkRepository
	Folders folders.FolderRepository
	Content folders.ContentRepository
	Learner Learner
	Logger  *zap.Logger
}

// New creates a Matcher.
func New(deps Deps, settings Settings) *Matcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Scorer == nil {
		deps.Scorer = reranker.NewScorer(reranker.DefaultWeights(), deps.Logger)
	}
	m := &Matcher{
		recall:  deps.Recall,
		scorer:  deps.Scorer,
		links:   deps.Links,
		folders: deps.Folders,
		content: deps.Content,
		learner: deps.Learner,
		logger:  deps.Logger,
	}
	m.SetSettings(settings)
	return m
}

// SetSettings swaps the gating parameters.
func (m *Matcher) SetSettings(s Settings) {
	m.settings.Store(&s)
}

// Settings returns the current gating parameters.
func (m *Matcher) Settings() Settings {
	return *m.settings.Load()
}

// ApplyMatching pushes a reloaded matching section into the matcher and
// its scorer.
func (m *Matcher) ApplyMatching(cfg config.MatchingConfig) {
	m.scorer.SetWeights(reranker.WeightsFrom(cfg))
	m.SetSettings(SettingsFrom(cfg))
	m.logger.Info("matching settings applied",
		zap.Float64("threshold", cfg.Threshold),
		zap.Int("recall_limit", cfg.RecallLimit),
	)
}

// Round2 rounds a score to two decimals, the precision the threshold is
// compared at.
func Round2(score float64) float64 {
	return math.Round(score*100) / 100
}

// decision is the outcome of ranking candidates, before persistence.
type decision struct {
	folder *folders.Folder
	reason folders.MatchReason
	score  float64
	ranked []folders.ScoreBreakdown
}

// decide applies the pattern pass and, failing that, the scored ranking.
// full computes every breakdown even when a pattern matches.
func (m *Matcher) decide(candidates []folders.MatchCandidate, text, url string, full bool) decision {
	var d decision
	settings := m.Settings()

	for i := range candidates {
		if pattern, ok := m.scorer.MatchPattern(&candidates[i].Folder, url); ok {
			d.folder = &candidates[i].Folder
			d.reason = folders.ReasonPattern
			m.logger.Debug("url pattern matched",
				zap.String("folder_id", d.folder.ID),
				zap.String("pattern", pattern),
			)
			if !full {
				return d
			}
			break
		}
	}

	d.ranked = make([]folders.ScoreBreakdown, 0, len(candidates))
	for _, c := range candidates {
		b := m.scorer.Score(c, text, url)
		if d.folder != nil && d.folder.ID == c.Folder.ID {
			b.PatternMatched = true
			b.Pattern, _ = m.scorer.MatchPattern(&c.Folder, url)
		}
		d.ranked = append(d.ranked, b)
	}
	// stable: ties keep recall order, so the more similar folder wins
	sort.SliceStable(d.ranked, func(i, j int) bool {
		if d.ranked[i].Skipped != d.ranked[j].Skipped {
			return !d.ranked[i].Skipped
		}
		return d.ranked[i].Total > d.ranked[j].Total
	})

	if d.folder != nil {
		return d
	}

	if len(d.ranked) == 0 || d.ranked[0].Skipped {
		d.reason = folders.ReasonNoConfidentMatch
		return d
	}
	best := d.ranked[0]
	d.score = Round2(best.Total)
	if d.score < settings.Threshold {
		d.reason = folders.ReasonNoConfidentMatch
		return d
	}
	for i := range candidates {
		if candidates[i].Folder.ID == best.FolderID {
			d.folder = &candidates[i].Folder
			break
		}
	}
	d.reason = folders.ReasonScore
	return d
}

// Match files contentID for userID into the best folder, if any is
// confident enough. An empty recall and a low best score are reported as
// unmatched results, not errors. Recall and storage failures are returned
// and are retryable.
func (m *Matcher) Match(ctx context.Context, userID, contentID string, contentVector []float64, contentText, contentURL string) (res folders.MatchResult, err error) {
	ctx, span := tracer.Start(ctx, "Matcher.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("content.id", contentID),
	)

	start := time.Now()
	defer func() {
		MatchDuration.Observe(time.Since(start).Seconds())
		outcome := string(res.Reason)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		MatchesTotal.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("match.outcome", outcome))
	}()

	candidates, err := m.recall.Recall(ctx, contentVector, userID, m.Settings().RecallLimit)
	if err != nil {
		return folders.MatchResult{}, err
	}
	if len(candidates) == 0 {
		m.logger.Debug("no eligible folders", zap.String("user_id", userID), zap.String("content_id", contentID))
		return folders.NoMatch(folders.ReasonNoEligibleFolders), nil
	}

	d := m.decide(candidates, contentText, contentURL, false)
	if d.folder == nil {
		m.logger.Debug("no confident match",
			zap.String("user_id", userID),
			zap.String("content_id", contentID),
			zap.Float64("best_score", d.score),
		)
		res = folders.NoMatch(d.reason)
		res.Score = d.score
		return res, nil
	}

	return m.link(ctx, userID, contentID, d.folder.ID, contentVector, d.reason, d.score)
}

// FileInto links contentID into a folder the caller chose, after checking
// that userID owns it. Like Match, a new link reinforces the profile.
func (m *Matcher) FileInto(ctx context.Context, userID, contentID, folderID string, contentVector []float64) (res folders.MatchResult, err error) {
	ctx, span := tracer.Start(ctx, "Matcher.FileInto")
	defer span.End()
	defer func() {
		outcome := string(res.Reason)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		MatchesTotal.WithLabelValues(outcome).Inc()
	}()

	f, err := m.folders.GetFolder(ctx, folderID)
	if err != nil {
		return folders.MatchResult{}, err
	}
	if f.OwnerID != userID {
		// do not reveal folders of other users
		return folders.MatchResult{}, folders.ErrFolderNotFound
	}
	return m.link(ctx, userID, contentID, folderID, contentVector, folders.ReasonExplicit, 0)
}

func (m *Matcher) link(ctx context.Context, userID, contentID, folderID string, contentVector []float64, reason folders.MatchReason, score float64) (folders.MatchResult, error) {
	// a cancelled match must not write
	if err := ctx.Err(); err != nil {
		return folders.MatchResult{}, err
	}

	created, err := m.links.LinkItem(ctx, folders.NewFolderItem(folderID, contentID, userID))
	if err != nil {
		return folders.MatchResult{}, fmt.Errorf("linking content %s into folder %s: %w", contentID, folderID, err)
	}

	id := folderID
	res := folders.MatchResult{FolderID: &id, Matched: true, Reason: reason, Score: score}
	if !created {
		res.Reason = folders.ReasonAlreadyLinked
		m.logger.Debug("content already linked",
			zap.String("folder_id", folderID),
			zap.String("content_id", contentID),
		)
		return res, nil
	}

	if err := m.learner.Reinforce(ctx, folderID, contentVector); err != nil {
		// the link is committed; the profile catches up on later matches
		m.logger.Error("failed to reinforce folder profile",
			zap.String("folder_id", folderID),
			zap.String("content_id", contentID),
			zap.Error(err),
		)
	}

	m.logger.Info("content filed",
		zap.String("user_id", userID),
		zap.String("content_id", contentID),
		zap.String("folder_id", folderID),
		zap.String("reason", string(res.Reason)),
		zap.Float64("score", score),
	)
	return res, nil
}

// RemoveFromFolder unlinks contentID from the folder and pushes the
// folder profile away from the content. Content without an embedding is
// unlinked without a profile update.
func (m *Matcher) RemoveFromFolder(ctx context.Context, folderID, contentID, userID string) error {
	ctx, span := tracer.Start(ctx, "Matcher.RemoveFromFolder")
	defer span.End()
	span.SetAttributes(
		attribute.String("folder.id", folderID),
		attribute.String("content.id", contentID),
	)

	deleted, err := m.links.UnlinkItem(ctx, folderID, contentID, userID)
	if err != nil {
		RemovalsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return err
	}
	if !deleted {
		RemovalsTotal.WithLabelValues("not_found").Inc()
		return folders.ErrFolderItemNotFound
	}

	c, err := m.content.GetContent(ctx, contentID)
	switch {
	case errors.Is(err, folders.ErrContentNotFound):
		RemovalsTotal.WithLabelValues("skipped").Inc()
		m.logger.Warn("removed item has no content row", zap.String("content_id", contentID))
		return nil
	case err != nil:
		RemovalsTotal.WithLabelValues("error").Inc()
		m.logger.Error("failed to load content for penalty",
			zap.String("content_id", contentID),
			zap.Error(err),
		)
		return nil
	case len(c.Embedding) == 0:
		RemovalsTotal.WithLabelValues("skipped").Inc()
		m.logger.Info("removed content has no embedding, profile unchanged",
			zap.String("folder_id", folderID),
			zap.String("content_id", contentID),
		)
		return nil
	}

	if err := m.learner.Penalize(ctx, folderID, c.Embedding); err != nil {
		RemovalsTotal.WithLabelValues("error").Inc()
		m.logger.Error("failed to penalize folder profile",
			zap.String("folder_id", folderID),
			zap.String("content_id", contentID),
			zap.Error(err),
		)
		return nil
	}

	RemovalsTotal.WithLabelValues("penalized").Inc()
	m.logger.Info("content removed from folder",
		zap.String("folder_id", folderID),
		zap.String("content_id", contentID),
		zap.String("user_id", userID),
	)
	return nil
}

// Explanation is a dry run of Match.
type Explanation struct {
	Result     folders.MatchResult      `json:"result"`
	Candidates []folders.ScoreBreakdown `json:"candidates"`
	Threshold  float64                  `json:"threshold"`
}

// Explain recalls and scores every candidate without linking anything,
// reporting the decision Match would take.
func (m *Matcher) Explain(ctx context.Context, userID string, contentVector []float64, contentText, contentURL string) (*Explanation, error) {
	ctx, span := tracer.Start(ctx, "Matcher.Explain")
	defer span.End()

	settings := m.Settings()
	candidates, err := m.recall.Recall(ctx, contentVector, userID, settings.RecallLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ex := &Explanation{Threshold: settings.Threshold, Candidates: []folders.ScoreBreakdown{}}
	if len(candidates) == 0 {
		ex.Result = folders.NoMatch(folders.ReasonNoEligibleFolders)
		return ex, nil
	}

	d := m.decide(candidates, contentText, contentURL, true)
	ex.Candidates = d.ranked
	if d.folder == nil {
		ex.Result = folders.NoMatch(d.reason)
		ex.Result.Score = d.score
		return ex, nil
	}
	id := d.folder.ID
	ex.Result = folders.MatchResult{FolderID: &id, Matched: true, Reason: d.reason, Score: d.score}
	return ex, nil
}

// ExplainContent explains the decision for stored content, using its
// embedding and its title and summary as the scoring text.
func (m *Matcher) ExplainContent(ctx context.Context, userID, contentID string) (*Explanation, error) {
	c, err := m.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if len(c.Embedding) == 0 {
		return nil, fmt.Errorf("%w: content %s has no embedding yet", folders.ErrInvalidInput, contentID)
	}
	return m.Explain(ctx, userID, c.Embedding, c.Text(""), c.URL)
}
