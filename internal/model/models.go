package model

import "time"

// Project is the top-level container that owns files and uploads.
type Project struct {
	ID          string // UUID
	Name        string
	Description string
	IsDeleted   bool
	CreatedAt   time.Time
}

// DataFile is a named node in a project's file/folder tree. It owns an
// ordered sequence of FileVersions; its UploadID always points at the
// content of the current version.
type DataFile struct {
	ID        string  // UUID
	ProjectID string  // Foreign key to Project; immutable once set
	ParentID  *string // Foreign key to parent folder DataFile; nil = project root
	Name      string
	Label     string
	UploadID  string // Foreign key to the current Upload
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileVersion is an immutable, numbered snapshot of a DataFile's content
// reference. Once persisted, only IsDeleted may change.
type FileVersion struct {
	ID            string // UUID; empty until persisted
	DataFileID    string // Foreign key to DataFile
	VersionNumber int    // Assigned on save, starting at 1, never reused
	UploadID      string // Foreign key to Upload
	Label         string
	IsDeleted     bool
	CreatedAt     time.Time
}

// Persisted reports whether the version has been saved; unsaved versions
// are the "pending" version of their DataFile.
func (v *FileVersion) Persisted() bool { return v.VersionNumber > 0 }

// Upload is a content-transfer record bound to one StorageProvider.
// Clients transfer bytes directly against a signed URL; the engine only
// tracks the completion state.
type Upload struct {
	ID                   string // UUID
	ProjectID            string
	StorageProviderID    string
	Name                 string // Client-supplied file name
	ContentType          string
	Size                 int64
	StorageKey           string // Object key within the provider
	FingerprintValue     string // Client-reported digest; may be blank
	FingerprintAlgorithm string // Raw label as reported; normalized on fingerprint creation
	CompletedAt          *time.Time
	ErrorAt              *time.Time
	ErrorMessage         string
	CreatedAt            time.Time
}

// IsCompleted reports whether the backend has acknowledged the transfer.
func (u *Upload) IsCompleted() bool { return u.CompletedAt != nil }

// HasError reports whether the transfer was marked as failed.
func (u *Upload) HasError() bool { return u.ErrorAt != nil }

// Fingerprint is a normalized (algorithm, digest) pair bound 1:1 to an Upload.
type Fingerprint struct {
	ID        string // UUID
	UploadID  string // Foreign key to Upload; unique
	Algorithm string // Lower-cased, member of the supported set
	Value     string
	CreatedAt time.Time
}

// StorageProvider is the configuration for one backend object store.
// Deprecated providers remain readable but are not offered for new uploads.
type StorageProvider struct {
	ID                 string // UUID
	Name               string
	URLRoot            string // Base URL clients transfer against
	AuthURI            string
	Bucket             string // Object-store bucket or container
	ChunkHashAlgorithm string
	IsDeprecated       bool
	CreatedAt          time.Time
}

// AgentKind discriminates the closed Agent variant.
type AgentKind string

const (
	AgentUser     AgentKind = "user"
	AgentSoftware AgentKind = "software_agent"
)

// Agent is a provenance actor: a person or a piece of software.
type Agent struct {
	ID          string // UUID
	Kind        AgentKind
	Username    string // Users only
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	IsDeleted   bool
	CreatedAt   time.Time
}

// Activity is a provenance event that agents participate in.
type Activity struct {
	ID          string // UUID
	Name        string
	Description string
	StartedOn   *time.Time
	EndedOn     *time.Time
	IsDeleted   bool
	CreatedAt   time.Time
}

// RelationKind names a PROV-O relation type.
type RelationKind string

const (
	WasAssociatedWith RelationKind = "was_associated_with"
	WasAttributedTo   RelationKind = "was_attributed_to"
	WasInvalidatedBy  RelationKind = "was_invalidated_by"
	WasGeneratedBy    RelationKind = "was_generated_by"
	Used              RelationKind = "used"
	WasDerivedFrom    RelationKind = "was_derived_from"
)

// RelationKinds lists every PROV relation kind the system records.
var RelationKinds = []RelationKind{
	WasAssociatedWith,
	WasAttributedTo,
	WasInvalidatedBy,
	WasGeneratedBy,
	Used,
	WasDerivedFrom,
}

// ProvRelation is a typed provenance relation between two records. The
// relational row is the system of record; the mirrored graph edge is a
// derived index repaired by reconciliation when it drifts.
type ProvRelation struct {
	ID        string // UUID
	Kind      RelationKind
	FromType  string // Entity type name of the relation source
	FromID    string
	ToType    string
	ToID      string
	IsDeleted bool
	CreatedAt time.Time
}

// AuditRecord is an immutable log entry for a tracked-entity mutation.
// PrincipalID is empty when the mutation ran outside any audit scope.
type AuditRecord struct {
	ID          string // UUID
	EntityType  string
	EntityID    string
	Action      string // "create", "update" or "delete"
	PrincipalID string // Agent ID; empty = unattributable
	RecordedAt  time.Time
}

// Audit actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// AuthenticationService is a configured identity backend. Type is the
// concrete service kind; legacy rows may carry an empty Type until the
// reconciliation pass assigns the registered default.
type AuthenticationService struct {
	ID                 string // UUID
	ServiceID          string // Stable external identifier
	Name               string
	BaseURI            string
	LoginInitiationURI string
	LoginResponseType  string
	ClientID           string
	Type               string // "", "duke" or "openid"
	CreatedAt          time.Time
}
