package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/crosve/Csphere/internal/folders"
	"go.uber.org/zap"
)

// ErrInvalidImport is returned for unreadable or invalid import files.
var ErrInvalidImport = errors.New("invalid folder import file")

// ImportFile is the TOML layout accepted by ImportFolders:
//
//	[[folder]]
//	name = "Music"
//	description = "songs, albums and playlists"
//	keywords = ["song", "album", "playlist"]
//	url_patterns = ['spotify\.com', 'soundcloud\.com']
//	bucketing = true
type ImportFile struct {
	Folders []ImportFolder `toml:"folder"`
}

// ImportFolder is one folder definition.
type ImportFolder struct {
	folders.FolderMetadata
	Bucketing *bool `toml:"bucketing"`
}

// LoadImportFile parses and validates path. Every folder is checked before
// anything is written.
func LoadImportFile(path string) (*ImportFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	var file ImportFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImport, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalidImport, path, undecoded)
	}

	seen := make(map[string]bool, len(file.Folders))
	for i, f := range file.Folders {
		meta, err := validate(f.FolderMetadata)
		if err != nil {
			return nil, fmt.Errorf("%w: folder %d: %v", ErrInvalidImport, i+1, err)
		}
		if seen[meta.Name] {
			return nil, fmt.Errorf("%w: duplicate folder %q", ErrInvalidImport, meta.Name)
		}
		seen[meta.Name] = true
	}
	return &file, nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Created []*folders.Folder
	Updated []*folders.Folder
}

// ImportFolders creates the folders of file for ownerID. A folder whose
// name already exists has its metadata (and bucketing flag, when given)
// updated instead.
func (s *Service) ImportFolders(ctx context.Context, ownerID string, file *ImportFile) (*ImportResult, error) {
	res := &ImportResult{}
	for _, def := range file.Folders {
		existing, err := s.findByName(ctx, ownerID, def.Name)
		if err != nil {
			return res, err
		}

		if existing == nil {
			f, err := s.CreateFolder(ctx, CreateRequest{
				OwnerID:   ownerID,
				Metadata:  def.FolderMetadata,
				Bucketing: def.Bucketing,
			})
			if err != nil {
				return res, fmt.Errorf("creating folder %q: %w", def.Name, err)
			}
			res.Created = append(res.Created, f)
			continue
		}

		f, err := s.UpdateMetadata(ctx, existing.ID, def.FolderMetadata)
		if err != nil {
			return res, fmt.Errorf("updating folder %q: %w", def.Name, err)
		}
		if def.Bucketing != nil && *def.Bucketing != f.BucketingEnabled {
			if f, err = s.SetBucketing(ctx, f.ID, *def.Bucketing); err != nil {
				return res, fmt.Errorf("updating folder %q: %w", def.Name, err)
			}
		}
		res.Updated = append(res.Updated, f)
	}

	s.logger.Info("folders imported",
		zap.String("owner_id", ownerID),
		zap.Int("created", len(res.Created)),
		zap.Int("updated", len(res.Updated)),
	)
	return res, nil
}

// ImportPath loads path and imports it for ownerID.
func (s *Service) ImportPath(ctx context.Context, ownerID, path string) (*ImportResult, error) {
	file, err := LoadImportFile(path)
	if err != nil {
		return nil, err
	}
	return s.ImportFolders(ctx, ownerID, file)
}
