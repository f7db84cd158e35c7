package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/catalog"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/learning"
	"go.uber.org/zap"
)

// permanentFolderErr reports folder task errors that a retry cannot fix.
func permanentFolderErr(err error) error {
	switch {
	case errors.Is(err, folders.ErrInvalidInput),
		errors.Is(err, folders.ErrMalformedPattern),
		errors.Is(err, folders.ErrFolderNotFound),
		errors.Is(err, catalog.ErrFolderExists):
		return Permanent(err)
	}
	return err
}

// FolderProcessor handles process_folder.
type FolderProcessor struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// NewFolderProcessor creates the folder creation processor.
func NewFolderProcessor(svc *catalog.Service, logger *zap.Logger) *FolderProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderProcessor{catalog: svc, logger: logger}
}

// TaskType implements Processor.
func (p *FolderProcessor) TaskType() string { return TaskProcessFolder }

// Process implements Processor.
func (p *FolderProcessor) Process(ctx context.Context, payload []byte) error {
	var msg FolderMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	f, err := p.catalog.CreateFolder(ctx, catalog.CreateRequest{
		OwnerID:   strings.TrimSpace(msg.UserID),
		ParentID:  msg.ParentID,
		Metadata:  msg.FolderMetadata,
		Bucketing: msg.Bucketing,
	})
	if err != nil {
		return permanentFolderErr(err)
	}
	p.logger.Info("folder created",
		zap.String("folder_id", f.ID),
		zap.String("user_id", f.OwnerID),
		zap.String("profile_state", string(f.ProfileState)),
	)
	return nil
}

// MetadataProcessor handles update_folder_metadata.
type MetadataProcessor struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// NewMetadataProcessor creates the metadata edit processor.
func NewMetadataProcessor(svc *catalog.Service, logger *zap.Logger) *MetadataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataProcessor{catalog: svc, logger: logger}
}

// TaskType implements Processor.
func (p *MetadataProcessor) TaskType() string { return TaskUpdateFolderMetadata }

// Process implements Processor.
func (p *MetadataProcessor) Process(ctx context.Context, payload []byte) error {
	var msg MetadataMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	if strings.TrimSpace(msg.FolderID) == "" {
		return Permanent(fmt.Errorf("%w: folder_id is required", folders.ErrInvalidInput))
	}
	f, err := p.catalog.UpdateMetadata(ctx, msg.FolderID, msg.Metadata)
	if err != nil {
		return permanentFolderErr(err)
	}
	p.logger.Info("folder metadata updated", zap.String("folder_id", f.ID), zap.Int64("version", f.Version))
	return nil
}

// Remover undoes a filing decision.
type Remover interface {
	RemoveFromFolder(ctx context.Context, folderID, contentID, userID string) error
}

// RemovalProcessor handles remove_from_folder.
type RemovalProcessor struct {
	remover Remover
	logger  *zap.Logger
}

// NewRemovalProcessor creates the manual removal processor.
func NewRemovalProcessor(r Remover, logger *zap.Logger) *RemovalProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemovalProcessor{remover: r, logger: logger}
}

// TaskType implements Processor.
func (p *RemovalProcessor) TaskType() string { return TaskRemoveFromFolder }

// Process implements Processor. A link that is already gone is treated as
// done, so redelivered removals are harmless.
func (p *RemovalProcessor) Process(ctx context.Context, payload []byte) error {
	var msg RemovalMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	if msg.UserID == "" || msg.FolderID == "" || msg.ContentID == "" {
		return Permanent(fmt.Errorf("%w: user_id, folder_id and content_id are required", folders.ErrInvalidInput))
	}
	err := p.remover.RemoveFromFolder(ctx, msg.FolderID, msg.ContentID, msg.UserID)
	if errors.Is(err, folders.ErrFolderItemNotFound) {
		p.logger.Info("folder item already removed",
			zap.String("folder_id", msg.FolderID),
			zap.String("content_id", msg.ContentID),
		)
		return nil
	}
	return err
}

// Refresher recomputes one user's interest profile.
type Refresher interface {
	Refresh(ctx context.Context, userID string, now time.Time) (learning.RefreshResult, error)
}

// UserProfileProcessor handles user_profile_refresh.
type UserProfileProcessor struct {
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserProfileProcessor creates the user profile refresh processor.
func NewUserProfileProcessor(r Refresher, logger *zap.Logger) *UserProfileProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserProfileProcessor{refresher: r, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// TaskType implements Processor.
func (p *UserProfileProcessor) TaskType() string { return TaskUserProfileRefresh }

// Process implements Processor.
func (p *UserProfileProcessor) Process(ctx context.Context, payload []byte) error {
	var msg UserRefreshMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return Permanent(fmt.Errorf("%w: user_id is required", folders.ErrInvalidInput))
	}
	res, err := p.refresher.Refresh(ctx, msg.UserID, p.now())
	if errors.Is(err, folders.ErrUserNotFound) {
		return Permanent(err)
	}
	if err != nil {
		return err
	}
	p.logger.Info("user profile refreshed",
		zap.String("user_id", res.UserID),
		zap.Bool("updated", res.Updated),
		zap.Int("items", res.Items),
		zap.String("reason", res.Reason),
	)
	return nil
}
