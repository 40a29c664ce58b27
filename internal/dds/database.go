package dds

import (
	"context"

	"dds-go/internal/model"
)

// Entity type names used in audit records, provenance endpoints and graph
// nodes. Relational rows and graph nodes are keyed by the same
// (type, id) pair so the two stores can be cross-referenced.
const (
	TypeProject     = "project"
	TypeDataFile    = "data_file"
	TypeFileVersion = "file_version"
	TypeUpload      = "upload"
	TypeFingerprint = "fingerprint"
	TypeAgent       = "agent"
	TypeActivity    = "activity"
	TypeRelation    = "prov_relation"
	TypeAuthService = "authentication_service"
)

// Database provides the relational store. Finders return (nil, nil) when no
// record matches. Mutating methods that accept audit records persist them in
// the same transaction as the mutation, so the audit log is exactly as
// complete as the data it describes.
type Database interface {
	// Project operations

	CreateProject(ctx context.Context, project *model.Project, audit *model.AuditRecord) error
	FindProjectByID(ctx context.Context, id string) (*model.Project, error)

	// Storage provider operations

	CreateStorageProvider(ctx context.Context, provider *model.StorageProvider) error
	FindStorageProviderByID(ctx context.Context, id string) (*model.StorageProvider, error)

	// ListStorageProviders returns all providers; deprecated ones are
	// included only when includeDeprecated is true.
	ListStorageProviders(ctx context.Context, includeDeprecated bool) ([]*model.StorageProvider, error)

	// Upload operations

	CreateUpload(ctx context.Context, upload *model.Upload, audit *model.AuditRecord) error
	FindUploadByID(ctx context.Context, id string) (*model.Upload, error)

	// UpdateUploadState persists the completion/error fields of an upload.
	UpdateUploadState(ctx context.Context, upload *model.Upload, audit *model.AuditRecord) error

	// ListCompletedUploadsNeedingFingerprint returns completed uploads with
	// a non-blank client-reported digest and no Fingerprint row. Algorithm
	// recognition is the caller's concern.
	ListCompletedUploadsNeedingFingerprint(ctx context.Context) ([]*model.Upload, error)

	// Fingerprint operations

	CreateFingerprint(ctx context.Context, fp *model.Fingerprint, audit *model.AuditRecord) error
	FindFingerprintByUploadID(ctx context.Context, uploadID string) (*model.Fingerprint, error)

	// Data file operations

	FindDataFileByID(ctx context.Context, id string) (*model.DataFile, error)

	// SaveDataFile persists the file row (insert or update) together with at
	// most one current FileVersion and the audit records, atomically. A
	// version with VersionNumber zero is new: the implementation assigns
	// max(version_number)+1 within the same transaction. A version with a
	// number already set is the persisted current version and only its
	// label may be updated.
	SaveDataFile(ctx context.Context, file *model.DataFile, version *model.FileVersion, audits []*model.AuditRecord) error

	// DeleteDataFile tombstones the file and every one of its versions in
	// one transaction.
	DeleteDataFile(ctx context.Context, file *model.DataFile, audits []*model.AuditRecord) error

	// ListDataFilesWithoutVersions returns live files with zero versions.
	ListDataFilesWithoutVersions(ctx context.Context) ([]*model.DataFile, error)

	// ListDataFilesWithVersionMismatch returns live files whose current
	// (highest-numbered, non-deleted) version references a different upload
	// than the file itself.
	ListDataFilesWithVersionMismatch(ctx context.Context) ([]*model.DataFile, error)

	// File version operations

	FindFileVersionByID(ctx context.Context, id string) (*model.FileVersion, error)

	// FindFileVersionsForFile returns all versions ordered by version number.
	FindFileVersionsForFile(ctx context.Context, dataFileID string) ([]*model.FileVersion, error)

	// Agent and activity operations

	CreateAgent(ctx context.Context, agent *model.Agent, audit *model.AuditRecord) error
	FindAgentByID(ctx context.Context, id string) (*model.Agent, error)
	FindAgentByUsername(ctx context.Context, username string) (*model.Agent, error)
	CreateActivity(ctx context.Context, activity *model.Activity, audit *model.AuditRecord) error
	FindActivityByID(ctx context.Context, id string) (*model.Activity, error)

	// Provenance relation operations

	CreateProvRelation(ctx context.Context, rel *model.ProvRelation, audit *model.AuditRecord) error
	FindProvRelationByID(ctx context.Context, id string) (*model.ProvRelation, error)

	// DeleteProvRelation tombstones the relation row.
	DeleteProvRelation(ctx context.Context, rel *model.ProvRelation, audit *model.AuditRecord) error

	// ListProvRelations returns all live relation rows.
	ListProvRelations(ctx context.Context) ([]*model.ProvRelation, error)

	// Audit operations

	// FindCreationAudit returns the audit record for an entity's creation,
	// resolved via the (entity_type, entity_id, action) index.
	FindCreationAudit(ctx context.Context, entityType, entityID string) (*model.AuditRecord, error)

	// Authentication service operations

	CreateAuthenticationService(ctx context.Context, svc *model.AuthenticationService) error
	FindAuthenticationServiceByServiceID(ctx context.Context, serviceID string) (*model.AuthenticationService, error)
	ListUntypedAuthenticationServices(ctx context.Context) ([]*model.AuthenticationService, error)
	AssignAuthenticationServiceType(ctx context.Context, id, serviceType string) error

	// Close closes the database connection.
	Close() error
}
