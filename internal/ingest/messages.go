package ingest

import (
	"time"

	"github.com/crosve/Csphere/internal/folders"
)

// ContentPayload describes the saved page.
type ContentPayload struct {
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Source       string     `json:"source,omitempty"`
	FirstSavedAt *time.Time `json:"first_saved_at,omitempty"`
}

// BookmarkMessage is the process_message payload: a user saved a page.
type BookmarkMessage struct {
	UserID string `json:"user_id"`
	Notes  string `json:"notes,omitempty"`
	// FolderID files the bookmark into that folder instead of matching.
	// "" and "default" mean no explicit folder.
	FolderID string         `json:"folder_id,omitempty"`
	Content  ContentPayload `json:"content_payload"`
	RawHTML  string         `json:"raw_html,omitempty"`
}

// FolderMessage is the process_folder payload.
type FolderMessage struct {
	UserID   string  `json:"user_id"`
	ParentID *string `json:"parent_id,omitempty"`
	folders.FolderMetadata
	Bucketing *bool `json:"bucketing_enabled,omitempty"`
}

// MetadataMessage is the update_folder_metadata payload.
type MetadataMessage struct {
	FolderID string                 `json:"folder_id"`
	Metadata folders.FolderMetadata `json:"metadata"`
}

// RemovalMessage is the remove_from_folder payload.
type RemovalMessage struct {
	UserID    string `json:"user_id"`
	FolderID  string `json:"folder_id"`
	ContentID string `json:"content_id"`
}

// UserRefreshMessage is the user_profile_refresh payload.
type UserRefreshMessage struct {
	UserID string `json:"user_id"`
}
