package dds

import (
	"context"
	"fmt"

	"dds-go/internal/model"
)

// Service is the storage/versioning/provenance engine. The API layer and
// the reconciliation job both drive it; everything else (routing, authz,
// search indexing) lives outside and calls in.
type Service struct {
	database Database
	gateway  StorageGateway
	graph    GraphStore
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	// defaultAuthServiceType, when non-empty, is the concrete type assigned
	// to untyped legacy authentication_service rows during reconciliation.
	defaultAuthServiceType string
}

// NewService creates a Service with the provided dependencies.
func NewService(database Database, gateway StorageGateway, graph GraphStore, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		database: database,
		gateway:  gateway,
		graph:    graph,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// SetDefaultAuthServiceType registers the concrete type used to repair
// untyped authentication_service rows. Empty disables the repair rule.
func (s *Service) SetDefaultAuthServiceType(serviceType string) {
	s.defaultAuthServiceType = serviceType
}

// CreateUploadRequest carries the client-supplied metadata for a new upload.
type CreateUploadRequest struct {
	ProjectID            string
	StorageProviderID    string
	Name                 string
	ContentType          string
	Size                 int64
	FingerprintValue     string
	FingerprintAlgorithm string
}

// CreateUpload allocates a destination with the storage provider and
// persists the upload record in pending state. The returned instruction
// tells the client how to transfer the bytes.
func (s *Service) CreateUpload(ctx context.Context, req CreateUploadRequest) (*model.Upload, *TransferInstruction, error) {
	project, err := s.database.FindProjectByID(ctx, req.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding project: %w", err)
	}
	if project == nil || project.IsDeleted {
		ve := NewValidationError()
		ve.Add("project", "must exist")
		return nil, nil, ve
	}

	provider, err := s.database.FindStorageProviderByID(ctx, req.StorageProviderID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding storage provider: %w", err)
	}
	if provider == nil {
		ve := NewValidationError()
		ve.Add("storage_provider", "must exist")
		return nil, nil, ve
	}
	if provider.IsDeprecated {
		ve := NewValidationError()
		ve.Add("storage_provider", "is deprecated and not accepting new uploads")
		return nil, nil, ve
	}

	upload := &model.Upload{
		ID:                   s.idgen.New(),
		ProjectID:            project.ID,
		StorageProviderID:    provider.ID,
		Name:                 req.Name,
		ContentType:          req.ContentType,
		Size:                 req.Size,
		FingerprintValue:     req.FingerprintValue,
		FingerprintAlgorithm: req.FingerprintAlgorithm,
		CreatedAt:            s.clock.Now(),
	}
	upload.StorageKey = fmt.Sprintf("%s/%s", project.ID, upload.ID)

	instruction, err := s.gateway.Allocate(ctx, provider, upload)
	if err != nil {
		return nil, nil, fmt.Errorf("allocating upload destination: %w", err)
	}

	audit := s.newAudit(ctx, TypeUpload, upload.ID, model.ActionCreate)
	if err := s.database.CreateUpload(ctx, upload, audit); err != nil {
		return nil, nil, fmt.Errorf("creating upload: %w", err)
	}

	s.logger.Info("upload created", "upload", upload.ID, "provider", provider.Name)
	return upload, instruction, nil
}

// ReportUploadComplete records the client's completion report. The backend
// is probed for the object; a missing or mismatched object marks the upload
// errored, while an unreachable backend propagates as a
// *StorageUnavailableError without changing the upload.
func (s *Service) ReportUploadComplete(ctx context.Context, uploadID string) (*model.Upload, error) {
	upload, err := s.database.FindUploadByID(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("finding upload: %w", err)
	}
	if upload == nil {
		return nil, fmt.Errorf("upload %s: %w", uploadID, ErrNotFound)
	}
	if upload.IsCompleted() {
		// Completion reports are idempotent.
		return upload, nil
	}

	provider, err := s.database.FindStorageProviderByID(ctx, upload.StorageProviderID)
	if err != nil {
		return nil, fmt.Errorf("finding storage provider: %w", err)
	}

	verifyErr := s.gateway.VerifyUpload(ctx, provider, upload)
	if IsStorageUnavailable(verifyErr) {
		return nil, verifyErr
	}

	now := s.clock.Now()
	if verifyErr != nil {
		upload.ErrorAt = &now
		upload.ErrorMessage = verifyErr.Error()
		s.logger.Warn("upload failed verification", "upload", upload.ID, "reason", verifyErr.Error())
	} else {
		upload.CompletedAt = &now
		upload.ErrorAt = nil
		upload.ErrorMessage = ""
	}

	audit := s.newAudit(ctx, TypeUpload, upload.ID, model.ActionUpdate)
	if err := s.database.UpdateUploadState(ctx, upload, audit); err != nil {
		return nil, fmt.Errorf("updating upload state: %w", err)
	}

	if upload.IsCompleted() {
		// Record the fingerprint now if the client reported one; silently
		// skipped for blank digests and unrecognized algorithms.
		if _, err := s.EnsureFingerprint(ctx, upload); err != nil {
			return nil, fmt.Errorf("recording fingerprint: %w", err)
		}
		s.logger.Info("upload completed", "upload", upload.ID)
	}
	return upload, nil
}

// TemporaryDownloadURL returns a signed read URL for a file version's
// content, with the owning file's name encoded into the URL.
func (s *Service) TemporaryDownloadURL(ctx context.Context, fileVersionID string) (string, error) {
	version, err := s.database.FindFileVersionByID(ctx, fileVersionID)
	if err != nil {
		return "", fmt.Errorf("finding file version: %w", err)
	}
	if version == nil {
		return "", fmt.Errorf("file version %s: %w", fileVersionID, ErrNotFound)
	}

	file, err := s.database.FindDataFileByID(ctx, version.DataFileID)
	if err != nil {
		return "", fmt.Errorf("finding data file: %w", err)
	}

	upload, err := s.database.FindUploadByID(ctx, version.UploadID)
	if err != nil {
		return "", fmt.Errorf("finding upload: %w", err)
	}

	provider, err := s.database.FindStorageProviderByID(ctx, upload.StorageProviderID)
	if err != nil {
		return "", fmt.Errorf("finding storage provider: %w", err)
	}

	url, err := s.gateway.TemporaryURL(ctx, provider, upload, file.Name)
	if err != nil {
		return "", fmt.Errorf("signing download url: %w", err)
	}
	return url, nil
}
