package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dds-go/internal/dds"
	"dds-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the dds.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// DB exposes the underlying connection for migrations.
func (s *SQLiteDatabase) DB() *sql.DB { return s.db }

func (s *SQLiteDatabase) Close() error { return s.db.Close() }

// inTx runs fn inside a transaction, committing on nil error.
func (s *SQLiteDatabase) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, rec *model.AuditRecord) error {
	if rec == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_records (id, entity_type, entity_id, action, principal_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityType, rec.EntityID, rec.Action, rec.PrincipalID, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// Project operations

func (s *SQLiteDatabase) CreateProject(ctx context.Context, project *model.Project, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, description, is_deleted, created_at) VALUES (?, ?, ?, ?, ?)`,
			project.ID, project.Name, project.Description, project.IsDeleted, project.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindProjectByID(ctx context.Context, id string) (*model.Project, error) {
	p := &model.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_deleted, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.IsDeleted, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding project: %w", err)
	}
	return p, nil
}

// Storage provider operations

func (s *SQLiteDatabase) CreateStorageProvider(ctx context.Context, provider *model.StorageProvider) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO storage_providers (id, name, url_root, auth_uri, bucket, chunk_hash_algorithm, is_deprecated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		provider.ID, provider.Name, provider.URLRoot, provider.AuthURI, provider.Bucket,
		provider.ChunkHashAlgorithm, provider.IsDeprecated, provider.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting storage provider: %w", err)
	}
	return nil
}

const providerColumns = `id, name, url_root, auth_uri, bucket, chunk_hash_algorithm, is_deprecated, created_at`

func scanProvider(row interface{ Scan(...any) error }) (*model.StorageProvider, error) {
	p := &model.StorageProvider{}
	err := row.Scan(&p.ID, &p.Name, &p.URLRoot, &p.AuthURI, &p.Bucket,
		&p.ChunkHashAlgorithm, &p.IsDeprecated, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteDatabase) FindStorageProviderByID(ctx context.Context, id string) (*model.StorageProvider, error) {
	p, err := scanProvider(s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM storage_providers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding storage provider: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ListStorageProviders(ctx context.Context, includeDeprecated bool) ([]*model.StorageProvider, error) {
	query := `SELECT ` + providerColumns + ` FROM storage_providers`
	if !includeDeprecated {
		query += ` WHERE is_deprecated = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing storage providers: %w", err)
	}
	defer rows.Close()

	var providers []*model.StorageProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning storage provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// Upload operations

const uploadColumns = `id, project_id, storage_provider_id, name, content_type, size, storage_key,
	fingerprint_value, fingerprint_algorithm, completed_at, error_at, error_message, created_at`

func scanUpload(row interface{ Scan(...any) error }) (*model.Upload, error) {
	u := &model.Upload{}
	var completedAt, errorAt sql.NullTime
	err := row.Scan(&u.ID, &u.ProjectID, &u.StorageProviderID, &u.Name, &u.ContentType, &u.Size,
		&u.StorageKey, &u.FingerprintValue, &u.FingerprintAlgorithm, &completedAt, &errorAt,
		&u.ErrorMessage, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		u.CompletedAt = &completedAt.Time
	}
	if errorAt.Valid {
		u.ErrorAt = &errorAt.Time
	}
	return u, nil
}

func (s *SQLiteDatabase) CreateUpload(ctx context.Context, upload *model.Upload, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO uploads (id, project_id, storage_provider_id, name, content_type, size, storage_key,
			 fingerprint_value, fingerprint_algorithm, completed_at, error_at, error_message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			upload.ID, upload.ProjectID, upload.StorageProviderID, upload.Name, upload.ContentType,
			upload.Size, upload.StorageKey, upload.FingerprintValue, upload.FingerprintAlgorithm,
			nullableTime(upload.CompletedAt), nullableTime(upload.ErrorAt), upload.ErrorMessage, upload.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting upload: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindUploadByID(ctx context.Context, id string) (*model.Upload, error) {
	u, err := scanUpload(s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding upload: %w", err)
	}
	return u, nil
}

func (s *SQLiteDatabase) UpdateUploadState(ctx context.Context, upload *model.Upload, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE uploads SET completed_at = ?, error_at = ?, error_message = ? WHERE id = ?`,
			nullableTime(upload.CompletedAt), nullableTime(upload.ErrorAt), upload.ErrorMessage, upload.ID)
		if err != nil {
			return fmt.Errorf("updating upload: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) ListCompletedUploadsNeedingFingerprint(ctx context.Context) ([]*model.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads u
		 WHERE u.completed_at IS NOT NULL
		   AND u.error_at IS NULL
		   AND u.fingerprint_value <> ''
		   AND NOT EXISTS (SELECT 1 FROM fingerprints f WHERE f.upload_id = u.id)
		 ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing uploads needing fingerprint: %w", err)
	}
	defer rows.Close()

	var uploads []*model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Fingerprint operations

func (s *SQLiteDatabase) CreateFingerprint(ctx context.Context, fp *model.Fingerprint, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprints (id, upload_id, algorithm, value, created_at) VALUES (?, ?, ?, ?, ?)`,
			fp.ID, fp.UploadID, fp.Algorithm, fp.Value, fp.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting fingerprint: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindFingerprintByUploadID(ctx context.Context, uploadID string) (*model.Fingerprint, error) {
	fp := &model.Fingerprint{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, upload_id, algorithm, value, created_at FROM fingerprints WHERE upload_id = ?`, uploadID).
		Scan(&fp.ID, &fp.UploadID, &fp.Algorithm, &fp.Value, &fp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding fingerprint: %w", err)
	}
	return fp, nil
}

// Data file operations

const dataFileColumns = `id, project_id, parent_id, name, label, upload_id, is_deleted, created_at, updated_at`

func scanDataFile(row interface{ Scan(...any) error }) (*model.DataFile, error) {
	f := &model.DataFile{}
	var parentID sql.NullString
	err := row.Scan(&f.ID, &f.ProjectID, &parentID, &f.Name, &f.Label, &f.UploadID,
		&f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	return f, nil
}

func (s *SQLiteDatabase) FindDataFileByID(ctx context.Context, id string) (*model.DataFile, error) {
	f, err := scanDataFile(s.db.QueryRowContext(ctx,
		`SELECT `+dataFileColumns+` FROM data_files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding data file: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) SaveDataFile(ctx context.Context, file *model.DataFile, version *model.FileVersion, audits []*model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE data_files SET project_id = ?, parent_id = ?, name = ?, label = ?, upload_id = ?,
			 is_deleted = ?, updated_at = ? WHERE id = ?`,
			file.ProjectID, file.ParentID, file.Name, file.Label, file.UploadID,
			file.IsDeleted, file.UpdatedAt, file.ID)
		if err != nil {
			return fmt.Errorf("updating data file: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking update: %w", err)
		}
		if affected == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO data_files (id, project_id, parent_id, name, label, upload_id, is_deleted, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				file.ID, file.ProjectID, file.ParentID, file.Name, file.Label, file.UploadID,
				file.IsDeleted, file.CreatedAt, file.UpdatedAt)
			if err != nil {
				return fmt.Errorf("inserting data file: %w", err)
			}
		}

		if version != nil {
			if version.VersionNumber == 0 {
				// Assign the next number inside the transaction so racing
				// savers can never produce duplicate version numbers.
				err := tx.QueryRowContext(ctx,
					`SELECT COALESCE(MAX(version_number), 0) + 1 FROM file_versions WHERE data_file_id = ?`,
					file.ID).Scan(&version.VersionNumber)
				if err != nil {
					return fmt.Errorf("assigning version number: %w", err)
				}
				_, err = tx.ExecContext(ctx,
					`INSERT INTO file_versions (id, data_file_id, version_number, upload_id, label, is_deleted, created_at)
					 VALUES (?, ?, ?, ?, ?, ?, ?)`,
					version.ID, version.DataFileID, version.VersionNumber, version.UploadID,
					version.Label, version.IsDeleted, version.CreatedAt)
				if err != nil {
					return fmt.Errorf("inserting file version: %w", err)
				}
			} else {
				// A persisted version only ever changes its label here;
				// number and upload reference are fixed.
				_, err := tx.ExecContext(ctx,
					`UPDATE file_versions SET label = ? WHERE id = ?`,
					version.Label, version.ID)
				if err != nil {
					return fmt.Errorf("updating file version: %w", err)
				}
			}
		}

		for _, a := range audits {
			if err := insertAudit(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) DeleteDataFile(ctx context.Context, file *model.DataFile, audits []*model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE data_files SET is_deleted = 1, updated_at = ? WHERE id = ?`,
			file.UpdatedAt, file.ID)
		if err != nil {
			return fmt.Errorf("deleting data file: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE file_versions SET is_deleted = 1 WHERE data_file_id = ?`, file.ID)
		if err != nil {
			return fmt.Errorf("deleting file versions: %w", err)
		}
		for _, a := range audits {
			if err := insertAudit(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) ListDataFilesWithoutVersions(ctx context.Context) ([]*model.DataFile, error) {
	return s.listDataFiles(ctx,
		`SELECT `+dataFileColumns+` FROM data_files df
		 WHERE df.is_deleted = 0
		   AND NOT EXISTS (SELECT 1 FROM file_versions v WHERE v.data_file_id = df.id)
		 ORDER BY df.created_at`)
}

func (s *SQLiteDatabase) ListDataFilesWithVersionMismatch(ctx context.Context) ([]*model.DataFile, error) {
	return s.listDataFiles(ctx,
		`SELECT `+dataFileColumns+` FROM data_files df
		 WHERE df.is_deleted = 0
		   AND EXISTS (SELECT 1 FROM file_versions v WHERE v.data_file_id = df.id)
		   AND df.upload_id <> (
		       SELECT v.upload_id FROM file_versions v
		       WHERE v.data_file_id = df.id AND v.is_deleted = 0
		       ORDER BY v.version_number DESC LIMIT 1)
		 ORDER BY df.created_at`)
}

func (s *SQLiteDatabase) listDataFiles(ctx context.Context, query string) ([]*model.DataFile, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing data files: %w", err)
	}
	defer rows.Close()

	var files []*model.DataFile
	for rows.Next() {
		f, err := scanDataFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning data file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// File version operations

const versionColumns = `id, data_file_id, version_number, upload_id, label, is_deleted, created_at`

func scanFileVersion(row interface{ Scan(...any) error }) (*model.FileVersion, error) {
	v := &model.FileVersion{}
	err := row.Scan(&v.ID, &v.DataFileID, &v.VersionNumber, &v.UploadID, &v.Label, &v.IsDeleted, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLiteDatabase) FindFileVersionByID(ctx context.Context, id string) (*model.FileVersion, error) {
	v, err := scanFileVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding file version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) FindFileVersionsForFile(ctx context.Context, dataFileID string) ([]*model.FileVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE data_file_id = ? ORDER BY version_number`,
		dataFileID)
	if err != nil {
		return nil, fmt.Errorf("listing file versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.FileVersion
	for rows.Next() {
		v, err := scanFileVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Agent and activity operations

const agentColumns = `id, kind, username, email, display_name, first_name, last_name, is_deleted, created_at`

func scanAgent(row interface{ Scan(...any) error }) (*model.Agent, error) {
	a := &model.Agent{}
	err := row.Scan(&a.ID, &a.Kind, &a.Username, &a.Email, &a.DisplayName,
		&a.FirstName, &a.LastName, &a.IsDeleted, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteDatabase) CreateAgent(ctx context.Context, agent *model.Agent, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, kind, username, email, display_name, first_name, last_name, is_deleted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			agent.ID, agent.Kind, agent.Username, agent.Email, agent.DisplayName,
			agent.FirstName, agent.LastName, agent.IsDeleted, agent.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting agent: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindAgentByID(ctx context.Context, id string) (*model.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding agent: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) FindAgentByUsername(ctx context.Context, username string) (*model.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE username = ? AND kind = ?`, username, model.AgentUser))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding agent by username: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) CreateActivity(ctx context.Context, activity *model.Activity, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO activities (id, name, description, started_on, ended_on, is_deleted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			activity.ID, activity.Name, activity.Description,
			nullableTime(activity.StartedOn), nullableTime(activity.EndedOn),
			activity.IsDeleted, activity.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting activity: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindActivityByID(ctx context.Context, id string) (*model.Activity, error) {
	a := &model.Activity{}
	var startedOn, endedOn sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, started_on, ended_on, is_deleted, created_at FROM activities WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Description, &startedOn, &endedOn, &a.IsDeleted, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding activity: %w", err)
	}
	if startedOn.Valid {
		a.StartedOn = &startedOn.Time
	}
	if endedOn.Valid {
		a.EndedOn = &endedOn.Time
	}
	return a, nil
}

// Provenance relation operations

const relationColumns = `id, kind, from_type, from_id, to_type, to_id, is_deleted, created_at`

func scanRelation(row interface{ Scan(...any) error }) (*model.ProvRelation, error) {
	r := &model.ProvRelation{}
	err := row.Scan(&r.ID, &r.Kind, &r.FromType, &r.FromID, &r.ToType, &r.ToID, &r.IsDeleted, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteDatabase) CreateProvRelation(ctx context.Context, rel *model.ProvRelation, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO prov_relations (id, kind, from_type, from_id, to_type, to_id, is_deleted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rel.ID, rel.Kind, rel.FromType, rel.FromID, rel.ToType, rel.ToID, rel.IsDeleted, rel.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting relation: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) FindProvRelationByID(ctx context.Context, id string) (*model.ProvRelation, error) {
	r, err := scanRelation(s.db.QueryRowContext(ctx,
		`SELECT `+relationColumns+` FROM prov_relations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding relation: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) DeleteProvRelation(ctx context.Context, rel *model.ProvRelation, audit *model.AuditRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE prov_relations SET is_deleted = 1 WHERE id = ?`, rel.ID)
		if err != nil {
			return fmt.Errorf("deleting relation: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) ListProvRelations(ctx context.Context) ([]*model.ProvRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationColumns+` FROM prov_relations WHERE is_deleted = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()

	var rels []*model.ProvRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// Audit operations

func (s *SQLiteDatabase) FindCreationAudit(ctx context.Context, entityType, entityID string) (*model.AuditRecord, error) {
	rec := &model.AuditRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, action, principal_id, recorded_at
		 FROM audit_records
		 WHERE entity_type = ? AND entity_id = ? AND action = ?
		 ORDER BY recorded_at LIMIT 1`,
		entityType, entityID, model.ActionCreate).
		Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.Action, &rec.PrincipalID, &rec.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding creation audit: %w", err)
	}
	return rec, nil
}

// Authentication service operations

const authServiceColumns = `id, service_id, name, base_uri, login_initiation_uri, login_response_type, client_id, type, created_at`

func scanAuthService(row interface{ Scan(...any) error }) (*model.AuthenticationService, error) {
	a := &model.AuthenticationService{}
	err := row.Scan(&a.ID, &a.ServiceID, &a.Name, &a.BaseURI, &a.LoginInitiationURI,
		&a.LoginResponseType, &a.ClientID, &a.Type, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteDatabase) CreateAuthenticationService(ctx context.Context, svc *model.AuthenticationService) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authentication_services (id, service_id, name, base_uri, login_initiation_uri,
		 login_response_type, client_id, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.ServiceID, svc.Name, svc.BaseURI, svc.LoginInitiationURI,
		svc.LoginResponseType, svc.ClientID, svc.Type, svc.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting authentication service: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindAuthenticationServiceByServiceID(ctx context.Context, serviceID string) (*model.AuthenticationService, error) {
	a, err := scanAuthService(s.db.QueryRowContext(ctx,
		`SELECT `+authServiceColumns+` FROM authentication_services WHERE service_id = ?`, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding authentication service: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListUntypedAuthenticationServices(ctx context.Context) ([]*model.AuthenticationService, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+authServiceColumns+` FROM authentication_services WHERE type = '' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing untyped authentication services: %w", err)
	}
	defer rows.Close()

	var services []*model.AuthenticationService
	for rows.Next() {
		a, err := scanAuthService(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning authentication service: %w", err)
		}
		services = append(services, a)
	}
	return services, rows.Err()
}

func (s *SQLiteDatabase) AssignAuthenticationServiceType(ctx context.Context, id, serviceType string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE authentication_services SET type = ? WHERE id = ? AND type = ''`, serviceType, id)
	if err != nil {
		return fmt.Errorf("assigning authentication service type: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var _ dds.Database = (*SQLiteDatabase)(nil)
