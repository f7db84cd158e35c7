// Package folders defines the smart-folder domain model shared by recall,
// scoring, matching and profile learning, along with the repository
// interfaces those components consume.
package folders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProfileState tracks the lifecycle of a folder's profile vector.
type ProfileState string

const (
	// ProfileNone means the folder has no profile and cannot be recalled.
	ProfileNone ProfileState = "none"

	// ProfileInitialized means the profile was derived from metadata once.
	ProfileInitialized ProfileState = "initialized"

	// ProfileLearning means the profile has been updated since initialization.
	ProfileLearning ProfileState = "learning"
)

// Content is a saved web page, shared across every user who bookmarked it.
type Content struct {
	ID           string     `json:"id" db:"id"`
	URL          string     `json:"url" db:"url"`
	Title        string     `json:"title" db:"title"`
	Source       string     `json:"source,omitempty" db:"source"`
	FirstSavedAt *time.Time `json:"first_saved_at,omitempty" db:"first_saved_at"`
	Summary      string     `json:"summary,omitempty" db:"summary"`
	Embedding    []float64  `json:"-" db:"-"`
	Categories   []string   `json:"categories,omitempty" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Text returns the text used for keyword and fuzzy scoring.
func (c *Content) Text(notes string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Title, c.Summary, notes} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentItem is one user's bookmark of a Content.
type ContentItem struct {
	UserID    string    `json:"user_id" db:"user_id"`
	ContentID string    `json:"content_id" db:"content_id"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	SavedAt   time.Time `json:"saved_at" db:"saved_at"`
}

// SavedEmbedding is one bookmark in a user's save history.
type SavedEmbedding struct {
	SavedAt   time.Time
	Embedding []float64
}

// Folder is a user-defined smart folder.
//
// Profile, when non-nil, is unit length. A folder is eligible for recall
// only when BucketingEnabled is set and Profile is non-nil.
type Folder struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	ParentID         *string      `json:"parent_id,omitempty"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	Keywords         []string     `json:"keywords,omitempty"`
	URLPatterns      []string     `json:"url_patterns,omitempty"`
	BucketingEnabled bool         `json:"bucketing_enabled"`
	Profile          []float64    `json:"-"`
	ProfileState     ProfileState `json:"profile_state"`
	Version          int64        `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewFolder returns a folder with a fresh ID and no profile.
func NewFolder(ownerID string, meta FolderMetadata) *Folder {
	now := time.Now().UTC()
	meta = meta.Clean()
	return &Folder{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Name:             meta.Name,
		Description:      meta.Description,
		Keywords:         meta.Keywords,
		URLPatterns:      meta.URLPatterns,
		BucketingEnabled: true,
		ProfileState:     ProfileNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Eligible reports whether the folder may be recalled for ownerID.
func (f *Folder) Eligible(ownerID string) bool {
	return f.OwnerID == ownerID && f.BucketingEnabled && len(f.Profile) > 0
}

// Metadata returns the user-editable fields.
func (f *Folder) Metadata() FolderMetadata {
	return FolderMetadata{
		Name:        f.Name,
		Description: f.Description,
		Keywords:    f.Keywords,
		URLPatterns: f.URLPatterns,
	}
}

// FolderMetadata is the user-editable part of a folder.
type FolderMetadata struct {
	Name        string   `json:"name" toml:"name"`
	Description string   `json:"description" toml:"description"`
	Keywords    []string `json:"keywords" toml:"keywords"`
	URLPatterns []string `json:"url_patterns" toml:"url_patterns"`
}

// Clean trims every field and drops blank keywords and patterns.
func (m FolderMetadata) Clean() FolderMetadata {
	return FolderMetadata{
		Name:        strings.TrimSpace(m.Name),
		Description: strings.TrimSpace(m.Description),
		Keywords:    nonBlank(m.Keywords),
		URLPatterns: nonBlank(m.URLPatterns),
	}
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FolderItem links a content item into a folder for one user.
type FolderItem struct {
	ID        string    `json:"id" db:"id"`
	FolderID  string    `json:"folder_id" db:"folder_id"`
	ContentID string    `json:"content_id" db:"content_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}

// NewFolderItem returns a link with a fresh ID.
func NewFolderItem(folderID, contentID, userID string) FolderItem {
	return FolderItem{
		ID:        uuid.New().String(),
		FolderID:  folderID,
		ContentID: contentID,
		UserID:    userID,
		AddedAt:   time.Now().UTC(),
	}
}

// User carries the per-user interest profile.
type User struct {
	ID                string     `json:"id"`
	Profile           []float64  `json:"-"`
	LastProfileUpdate *time.Time `json:"last_profile_update,omitempty"`
}

// MatchCandidate is a recalled folder with its raw vector similarity.
// A nil Similarity means the index could not score it.
type MatchCandidate struct {
	Folder     Folder
	Similarity *float64
}

// ScoreBreakdown records how each layer contributed to a candidate's score.
type ScoreBreakdown struct {
	FolderID       string  `json:"folder_id"`
	FolderName     string  `json:"folder_name"`
	Similarity     float64 `json:"similarity"`
	Keyword        float64 `json:"keyword"`
	Fuzzy          float64 `json:"fuzzy"`
	Semantic       float64 `json:"semantic"`
	Total          float64 `json:"total"`
	PatternMatched bool    `json:"pattern_matched"`
	Pattern        string  `json:"pattern,omitempty"`
	Skipped        bool    `json:"skipped"`
	SkipReason     string  `json:"skip_reason,omitempty"`
}

// MatchReason explains a MatchResult.
type MatchReason string

const (
	ReasonPattern           MatchReason = "pattern"
	ReasonScore             MatchReason = "score"
	ReasonNoEligibleFolders MatchReason = "no_eligible_folders"
	ReasonNoConfidentMatch  MatchReason = "no_confident_match"
	ReasonAlreadyLinked     MatchReason = "already_linked"
	// ReasonExplicit means the caller named the folder.
	ReasonExplicit MatchReason = "explicit"
)

// MatchResult is the outcome of matching one content item.
type MatchResult struct {
	FolderID *string     `json:"folder_id,omitempty"`
	Matched  bool        `json:"matched"`
	Reason   MatchReason `json:"reason"`
	Score    float64     `json:"score,omitempty"`
}

// NoMatch returns an unmatched result with reason.
func NoMatch(reason MatchReason) MatchResult {
	return MatchResult{Reason: reason}
}
