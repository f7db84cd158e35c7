package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/embeddings"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/secrets"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("csphere.ingest")

// Matcher files content into folders.
type Matcher interface {
	Match(ctx context.Context, userID, contentID string, contentVector []float64, contentText, contentURL string) (folders.MatchResult, error)
	FileInto(ctx context.Context, userID, contentID, folderID string, contentVector []float64) (folders.MatchResult, error)
}

// ContentDeps are the ContentProcessor's collaborators. Summarizer and
// Scrubber are optional.
type ContentDeps struct {
	Content    folders.ContentRepository
	Users      folders.UserRepository
	Matcher    Matcher
	Embedder   embeddings.Embedder
	Summarizer embeddings.Summarizer
	Scrubber   *secrets.Scrubber
	Logger     *zap.Logger
}

// ContentProcessor handles process_message: it stores the bookmark,
// enriches new content with a summary, categories and an embedding, and
// files it into a folder.
type ContentProcessor struct {
	deps ContentDeps
	now  func() time.Time
}

// NewContentProcessor creates the bookmark processor.
func NewContentProcessor(deps ContentDeps) *ContentProcessor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ContentProcessor{deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// TaskType implements Processor.
func (p *ContentProcessor) TaskType() string { return TaskProcessMessage }

// Process implements Processor. The bookmark is persisted before any
// enrichment or matching, so a failure later on never loses it and a
// redelivery picks up where the previous attempt stopped.
func (p *ContentProcessor) Process(ctx context.Context, payload []byte) error {
	var msg BookmarkMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	_, err := p.Save(ctx, msg)
	return err
}

// Save runs the bookmark pipeline for msg and returns the match outcome.
func (p *ContentProcessor) Save(ctx context.Context, msg BookmarkMessage) (folders.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "ContentProcessor.Save")
	defer span.End()

	userID := strings.TrimSpace(msg.UserID)
	url := strings.TrimSpace(msg.Content.URL)
	if userID == "" {
		return folders.MatchResult{}, Permanent(fmt.Errorf("%w: user_id is required", folders.ErrInvalidInput))
	}
	if url == "" {
		return folders.MatchResult{}, Permanent(fmt.Errorf("%w: content_payload.url is required", folders.ErrInvalidInput))
	}
	span.SetAttributes(attribute.String("user.id", userID))
	log := p.deps.Logger.With(zap.String("user_id", userID), zap.String("url", url))

	if err := p.deps.Users.EnsureUser(ctx, userID); err != nil {
		return folders.MatchResult{}, err
	}

	now := p.now()
	firstSaved := msg.Content.FirstSavedAt
	if firstSaved == nil {
		firstSaved = &now
	}
	c, err := p.deps.Content.CreateContent(ctx, &folders.Content{
		URL:          url,
		Title:        strings.TrimSpace(msg.Content.Title),
		Source:       msg.Content.Source,
		FirstSavedAt: firstSaved,
	})
	if err != nil {
		if errors.Is(err, folders.ErrInvalidInput) {
			return folders.MatchResult{}, Permanent(err)
		}
		return folders.MatchResult{}, err
	}
	span.SetAttributes(attribute.String("content.id", c.ID))

	created, err := p.deps.Content.SaveContentItem(ctx, folders.ContentItem{
		UserID:    userID,
		ContentID: c.ID,
		Notes:     msg.Notes,
		SavedAt:   now,
	})
	if err != nil {
		return folders.MatchResult{}, err
	}
	if !created {
		log.Debug("bookmark already saved", zap.String("content_id", c.ID))
	}

	if len(c.Embedding) == 0 {
		if err := p.enrich(ctx, c, msg.RawHTML); err != nil {
			return folders.MatchResult{}, err
		}
	}

	var res folders.MatchResult
	folderID := strings.TrimSpace(msg.FolderID)
	if folderID != "" && folderID != "default" {
		res, err = p.deps.Matcher.FileInto(ctx, userID, c.ID, folderID, c.Embedding)
		if errors.Is(err, folders.ErrFolderNotFound) {
			return res, Permanent(err)
		}
	} else {
		res, err = p.deps.Matcher.Match(ctx, userID, c.ID, c.Embedding, c.Text(msg.Notes), c.URL)
	}
	if err != nil {
		return res, fmt.Errorf("filing content %s: %w", c.ID, err)
	}

	fields := []zap.Field{
		zap.String("content_id", c.ID),
		zap.Bool("matched", res.Matched),
		zap.String("reason", string(res.Reason)),
	}
	if res.FolderID != nil {
		fields = append(fields, zap.String("folder_id", *res.FolderID))
	}
	log.Info("bookmark saved", fields...)
	return res, nil
}

// enrich summarizes, categorizes and embeds c, updating it in place and in
// the store. Summarizer failures fall back to the title; an embedding
// failure is returned so the task is retried.
func (p *ContentProcessor) enrich(ctx context.Context, c *folders.Content, rawHTML string) error {
	ctx, span := tracer.Start(ctx, "ContentProcessor.enrich")
	defer span.End()
	log := p.deps.Logger.With(zap.String("content_id", c.ID))

	var input string
	if strings.TrimSpace(rawHTML) == "" {
		log.Info("no raw html provided, summary may be poor")
	} else if page, err := ExtractPage(rawHTML); err != nil {
		log.Warn("failed to parse page html", zap.Error(err))
	} else {
		input = page.SummaryInput()
		if c.Title == "" {
			c.Title = page.Title
		}
	}
	fallback := c.Title
	if fallback == "" {
		fallback = c.URL
	}
	if input == "" {
		input = fallback
	}
	input = p.scrub(input)

	summary := fallback
	var categories []string
	if p.deps.Summarizer != nil {
		s, err := p.deps.Summarizer.Summarize(ctx, input)
		switch {
		case err == nil:
			summary = s.Text
			categories = s.Categories
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, embeddings.ErrSummarizerDisabled):
		default:
			log.Warn("summarizer failed, using title", zap.Error(err))
		}
	}

	vec, err := p.deps.Embedder.Embed(ctx, p.scrub(summary))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: embedding content %s: %v", folders.ErrEmbeddingOracleFailure, c.ID, err)
	}

	if err := p.deps.Content.UpdateEnrichment(ctx, c.ID, summary, vec, categories); err != nil {
		return err
	}
	c.Summary = summary
	c.Embedding = vec
	c.Categories = categories
	log.Debug("content enriched",
		zap.Int("summary_len", len(summary)),
		zap.Strings("categories", categories),
	)
	return nil
}

func (p *ContentProcessor) scrub(text string) string {
	if p.deps.Scrubber == nil {
		return text
	}
	return p.deps.Scrubber.ScrubText(text)
}
