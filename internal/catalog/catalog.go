// Package catalog is the write path for smart folder definitions: creating
// folders, editing their metadata, toggling automatic filing and importing
// folder sets from TOML files.
//
// URL patterns are compiled when a folder is written so malformed rules are
// rejected up front instead of being skipped at match time.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/learning"
	"github.com/crosve/Csphere/internal/reranker"
	"github.com/crosve/Csphere/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrFolderExists is returned when the owner already has a folder with the
// requested name.
var ErrFolderExists = errors.New("folder already exists")

// Service manages folder definitions.
type Service struct {
	folders folders.FolderRepository
	users   folders.UserRepository
	learner *learning.ProfileLearner
	index   vectorstore.FolderIndex
	logger  *zap.Logger
}

// NewService creates a catalog service. users and index may be nil.
func NewService(repo folders.FolderRepository, users folders.UserRepository, learner *learning.ProfileLearner, index vectorstore.FolderIndex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{folders: repo, users: users, learner: learner, index: index, logger: logger}
}

// CreateRequest describes a new folder.
type CreateRequest struct {
	OwnerID  string
	ParentID *string
	Metadata folders.FolderMetadata
	// Bucketing defaults to enabled when nil.
	Bucketing *bool
}

func validate(meta folders.FolderMetadata) (folders.FolderMetadata, error) {
	meta = meta.Clean()
	if meta.Name == "" {
		return meta, fmt.Errorf("%w: folder name is required", folders.ErrInvalidInput)
	}
	if err := reranker.ValidatePatterns(meta.URLPatterns); err != nil {
		return meta, err
	}
	return meta, nil
}

func (s *Service) findByName(ctx context.Context, ownerID, name string) (*folders.Folder, error) {
	list, err := s.folders.ListFolders(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if strings.EqualFold(list[i].Name, name) {
			return &list[i], nil
		}
	}
	return nil, nil
}

// CreateFolder validates and stores a new folder, then derives its first
// profile from the metadata. A failing embedding oracle does not fail the
// creation; the folder simply stays without a profile until its metadata
// is edited or it is initialized again.
func (s *Service) CreateFolder(ctx context.Context, req CreateRequest) (*folders.Folder, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", folders.ErrInvalidInput)
	}
	meta, err := validate(req.Metadata)
	if err != nil {
		return nil, err
	}

	existing, err := s.findByName(ctx, req.OwnerID, meta.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrFolderExists, meta.Name)
	}

	if req.ParentID != nil {
		parent, err := s.folders.GetFolder(ctx, *req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent folder: %w", err)
		}
		if parent.OwnerID != req.OwnerID {
			return nil, fmt.Errorf("parent folder: %w", folders.ErrFolderNotFound)
		}
	}

	if s.users != nil {
		if err := s.users.EnsureUser(ctx, req.OwnerID); err != nil {
			return nil, err
		}
	}

	f := folders.NewFolder(req.OwnerID, meta)
	f.ParentID = req.ParentID
	if req.Bucketing != nil {
		f.BucketingEnabled = *req.Bucketing
	}
	if err := s.folders.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("folder created",
		zap.String("folder_id", f.ID),
		zap.String("owner_id", f.OwnerID),
		zap.String("name", f.Name),
	)

	initialized, err := s.learner.InitializeProfile(ctx, f.ID)
	if err != nil {
		s.logger.Warn("folder created without profile",
			zap.String("folder_id", f.ID),
			zap.Error(err),
		)
		return f, nil
	}
	return initialized, nil
}

// UpdateMetadata validates and applies edited metadata; the profile is
// re-derived from it.
func (s *Service) UpdateMetadata(ctx context.Context, folderID string, meta folders.FolderMetadata) (*folders.Folder, error) {
	meta, err := validate(meta)
	if err != nil {
		return nil, err
	}
	return s.learner.ApplyMetadata(ctx, folderID, meta)
}

// SetBucketing turns automatic filing into the folder on or off and keeps
// the vector index in step.
func (s *Service) SetBucketing(ctx context.Context, folderID string, enabled bool) (*folders.Folder, error) {
	f, err := s.folders.SetBucketing(ctx, folderID, enabled)
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := vectorstore.Sync(ctx, s.index, f); err != nil {
			s.logger.Warn("failed to sync folder index",
				zap.String("folder_id", folderID),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("folder bucketing changed",
		zap.String("folder_id", folderID),
		zap.Bool("enabled", enabled),
	)
	return f, nil
}
