package dds

import (
	"context"
	"fmt"

	"dds-go/internal/model"
)

// The version lifecycle of a DataFile is append-only: saving a file whose
// upload reference differs from its current version's produces the next
// numbered version; nothing else ever changes a persisted version except
// its tombstone flag.

// currentOf returns the highest-numbered non-deleted persisted version,
// or nil when none exists.
func currentOf(versions []*model.FileVersion) *model.FileVersion {
	var current *model.FileVersion
	for _, v := range versions {
		if v.IsDeleted {
			continue
		}
		if current == nil || v.VersionNumber > current.VersionNumber {
			current = v
		}
	}
	return current
}

// CurrentVersion returns the current version of a data file: its
// highest-numbered non-deleted persisted version, or a freshly built
// unsaved one when nothing has persisted yet. A tombstoned file has no
// current version.
func (s *Service) CurrentVersion(ctx context.Context, dataFileID string) (*model.FileVersion, error) {
	file, err := s.database.FindDataFileByID(ctx, dataFileID)
	if err != nil {
		return nil, fmt.Errorf("finding data file: %w", err)
	}
	if file == nil || file.IsDeleted {
		return nil, fmt.Errorf("data file %s: %w", dataFileID, ErrNotFound)
	}

	versions, err := s.database.FindFileVersionsForFile(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("finding file versions: %w", err)
	}
	if current := currentOf(versions); current != nil {
		return current, nil
	}

	// Nothing persisted: the pending version is the current version.
	return &model.FileVersion{
		DataFileID: file.ID,
		UploadID:   file.UploadID,
		Label:      file.Label,
	}, nil
}

// CreateDataFileRequest carries the fields for a new data file.
type CreateDataFileRequest struct {
	ProjectID string
	ParentID  *string
	Name      string
	Label     string
	UploadID  string
}

// CreateDataFile persists a new data file together with its first version.
func (s *Service) CreateDataFile(ctx context.Context, req CreateDataFileRequest) (*model.DataFile, error) {
	file := &model.DataFile{
		ProjectID: req.ProjectID,
		ParentID:  req.ParentID,
		Name:      req.Name,
		Label:     req.Label,
		UploadID:  req.UploadID,
	}
	if req.ParentID != nil {
		// A child always inherits its parent's project.
		parent, err := s.database.FindDataFileByID(ctx, *req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("finding parent: %w", err)
		}
		if parent == nil {
			ve := NewValidationError()
			ve.Add("parent", "must exist")
			return nil, ve
		}
		file.ProjectID = parent.ProjectID
	}
	if err := s.SaveDataFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// AttachUploadToFile points a data file at a different upload and saves it,
// which triggers a new version when the upload actually changed.
func (s *Service) AttachUploadToFile(ctx context.Context, dataFileID, uploadID string) (*model.DataFile, error) {
	file, err := s.database.FindDataFileByID(ctx, dataFileID)
	if err != nil {
		return nil, fmt.Errorf("finding data file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("data file %s: %w", dataFileID, ErrNotFound)
	}

	file.UploadID = uploadID
	if err := s.SaveDataFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// MoveDataFile re-parents a data file. The file's project is derived from
// the new parent; a nil parent moves the file to the project root, keeping
// its project.
func (s *Service) MoveDataFile(ctx context.Context, dataFileID string, parentID *string) (*model.DataFile, error) {
	file, err := s.database.FindDataFileByID(ctx, dataFileID)
	if err != nil {
		return nil, fmt.Errorf("finding data file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("data file %s: %w", dataFileID, ErrNotFound)
	}

	file.ParentID = parentID
	if parentID != nil {
		parent, err := s.database.FindDataFileByID(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("finding parent: %w", err)
		}
		if parent == nil {
			ve := NewValidationError()
			ve.Add("parent", "must exist")
			return nil, ve
		}
		file.ProjectID = parent.ProjectID
	}
	if err := s.SaveDataFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// SaveDataFile validates and persists a data file, running the version
// lifecycle: a new file or a changed upload reference yields the next
// numbered version, and the current version's attributes are kept in step
// with the file's without dirtying an unchanged persisted version.
func (s *Service) SaveDataFile(ctx context.Context, file *model.DataFile) error {
	var stored *model.DataFile
	if file.ID != "" {
		var err error
		stored, err = s.database.FindDataFileByID(ctx, file.ID)
		if err != nil {
			return fmt.Errorf("finding data file: %w", err)
		}
	}

	if stored != nil && parentChanged(stored, file) && file.ParentID != nil {
		// Project follows the parent; direct project changes are caught below.
		parent, err := s.database.FindDataFileByID(ctx, *file.ParentID)
		if err != nil {
			return fmt.Errorf("finding parent: %w", err)
		}
		if parent != nil {
			file.ProjectID = parent.ProjectID
		}
	}

	if err := s.validateDataFile(ctx, file, stored); err != nil {
		return err
	}

	now := s.clock.Now()
	action := model.ActionUpdate
	if stored == nil {
		if file.ID == "" {
			file.ID = s.idgen.New()
		}
		file.CreatedAt = now
		action = model.ActionCreate
	}
	file.UpdatedAt = now

	versions, err := s.database.FindFileVersionsForFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("finding file versions: %w", err)
	}
	current := currentOf(versions)

	audits := []*model.AuditRecord{s.newAudit(ctx, TypeDataFile, file.ID, action)}

	var version *model.FileVersion
	switch {
	case current == nil || current.UploadID != file.UploadID:
		// new_file_version_needed: synthesize the pending version, copying
		// the file's authoritative upload and label.
		version = &model.FileVersion{
			ID:         s.idgen.New(),
			DataFileID: file.ID,
			UploadID:   file.UploadID,
			Label:      file.Label,
			CreatedAt:  now,
		}
		audits = append(audits, s.newAudit(ctx, TypeFileVersion, version.ID, model.ActionCreate))
	case current.Label != file.Label:
		current.Label = file.Label
		version = current
		audits = append(audits, s.newAudit(ctx, TypeFileVersion, current.ID, model.ActionUpdate))
	}

	if err := s.database.SaveDataFile(ctx, file, version, audits); err != nil {
		return fmt.Errorf("saving data file: %w", err)
	}

	if version != nil && !version.Persisted() {
		// The store assigned the number; reflect it for the caller.
		s.logger.Info("file version created", "data_file", file.ID, "version", version.VersionNumber)
	}
	return nil
}

// DeleteDataFile tombstones a data file and cascades the flag to every one
// of its versions atomically. Deleting an already-deleted file is a no-op.
func (s *Service) DeleteDataFile(ctx context.Context, dataFileID string) error {
	file, err := s.database.FindDataFileByID(ctx, dataFileID)
	if err != nil {
		return fmt.Errorf("finding data file: %w", err)
	}
	if file == nil {
		return fmt.Errorf("data file %s: %w", dataFileID, ErrNotFound)
	}
	if file.IsDeleted {
		return nil
	}

	versions, err := s.database.FindFileVersionsForFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("finding file versions: %w", err)
	}

	file.IsDeleted = true
	file.UpdatedAt = s.clock.Now()
	audits := []*model.AuditRecord{s.newAudit(ctx, TypeDataFile, file.ID, model.ActionDelete)}
	for _, v := range versions {
		if !v.IsDeleted {
			audits = append(audits, s.newAudit(ctx, TypeFileVersion, v.ID, model.ActionDelete))
		}
	}

	if err := s.database.DeleteDataFile(ctx, file, audits); err != nil {
		return fmt.Errorf("deleting data file: %w", err)
	}
	s.logger.Info("data file deleted", "data_file", file.ID, "versions", len(versions))
	return nil
}

// Ancestors returns the file's project and its chain of parent folders,
// outermost first.
func (s *Service) Ancestors(ctx context.Context, dataFileID string) (*model.Project, []*model.DataFile, error) {
	file, err := s.database.FindDataFileByID(ctx, dataFileID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding data file: %w", err)
	}
	if file == nil {
		return nil, nil, fmt.Errorf("data file %s: %w", dataFileID, ErrNotFound)
	}

	project, err := s.database.FindProjectByID(ctx, file.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding project: %w", err)
	}

	var chain []*model.DataFile
	for parentID := file.ParentID; parentID != nil; {
		parent, err := s.database.FindDataFileByID(ctx, *parentID)
		if err != nil {
			return nil, nil, fmt.Errorf("finding ancestor: %w", err)
		}
		if parent == nil {
			break
		}
		chain = append([]*model.DataFile{parent}, chain...)
		parentID = parent.ParentID
	}
	return project, chain, nil
}

func parentChanged(stored, file *model.DataFile) bool {
	switch {
	case stored.ParentID == nil && file.ParentID == nil:
		return false
	case stored.ParentID == nil || file.ParentID == nil:
		return true
	default:
		return *stored.ParentID != *file.ParentID
	}
}

// validateDataFile applies presence and upload-state validations. A
// tombstoned file rejects every mutation, so no live version can ever
// appear under it; a stored project may never be changed directly.
func (s *Service) validateDataFile(ctx context.Context, file, stored *model.DataFile) error {
	ve := NewValidationError()

	if stored != nil && stored.IsDeleted {
		ve.Add("file", "is deleted")
		return ve
	}

	if stored != nil && !parentChanged(stored, file) && stored.ProjectID != file.ProjectID {
		ve.Add("project", "cannot be changed")
	}

	if !file.IsDeleted {
		if file.Name == "" {
			ve.Add("name", "must be present")
		}
		if file.ProjectID == "" {
			ve.Add("project_id", "must be present")
		}
		if file.UploadID == "" {
			ve.Add("upload_id", "must be present")
		} else {
			upload, err := s.database.FindUploadByID(ctx, file.UploadID)
			if err != nil {
				return fmt.Errorf("finding upload: %w", err)
			}
			switch {
			case upload == nil:
				ve.Add("upload", "must exist")
			case upload.HasError():
				ve.Add("upload", "cannot have an error")
			case !upload.IsCompleted():
				ve.Add("upload", "must be completed successfully")
			}
		}
	}

	if ve.Any() {
		return ve
	}
	return nil
}
