package http

import "github.com/crosve/Csphere/internal/folders"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the response body for GET /ready.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// MetadataRequest is the request body for PUT /api/v1/folders/:folder_id/metadata.
type MetadataRequest struct {
	folders.FolderMetadata
}

// ExplainRequest is the request body for POST /api/v1/match/explain.
// Either ContentID names stored content, or Text (and optionally URL) is
// embedded on the fly.
type ExplainRequest struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id,omitempty"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string         `json:"content"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}
