package dds_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dds-go/internal/dds"
	"dds-go/internal/graph"
	"dds-go/internal/model"
	"dds-go/internal/storage"
	"dds-go/internal/testutil"
)

// fixture wires a Service against in-memory stores. Tests drive drift and
// outages through the gateway and graph handles.
type fixture struct {
	svc     *dds.Service
	db      dds.Database
	gateway *storage.MemoryGateway
	graph   *graph.MemoryGraph
	clock   *testutil.StubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	gw := storage.NewMemoryGateway()
	gr := graph.NewMemoryGraph()
	clock := testutil.FixedClock()
	svc := dds.NewService(db, gw, gr, dds.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	return &fixture{svc: svc, db: db, gateway: gw, graph: gr, clock: clock}
}

func (f *fixture) seedProject(t *testing.T, name string) *model.Project {
	t.Helper()
	project, err := f.svc.CreateProject(context.Background(), name, "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return project
}

func (f *fixture) seedProvider(t *testing.T) *model.StorageProvider {
	t.Helper()
	provider, err := f.svc.CreateStorageProvider(context.Background(), &model.StorageProvider{
		Name:    "swift-east",
		Bucket:  "dds-content",
		URLRoot: "https://storage.example.org",
	})
	if err != nil {
		t.Fatalf("CreateStorageProvider() error = %v", err)
	}
	return provider
}

// completedUpload creates an upload, simulates the client transfer and
// reports it complete.
func (f *fixture) completedUpload(t *testing.T, project *model.Project, provider *model.StorageProvider, name string) *model.Upload {
	t.Helper()
	ctx := context.Background()

	upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
		ProjectID:         project.ID,
		StorageProviderID: provider.ID,
		Name:              name,
		Size:              42,
	})
	if err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}
	f.gateway.PutObject(upload.StorageKey, 42)

	upload, err = f.svc.ReportUploadComplete(ctx, upload.ID)
	if err != nil {
		t.Fatalf("ReportUploadComplete() error = %v", err)
	}
	if !upload.IsCompleted() {
		t.Fatalf("upload %s did not complete: %s", upload.ID, upload.ErrorMessage)
	}
	return upload
}

func TestService_CreateUpload(t *testing.T) {
	t.Run("allocates destination and persists pending upload", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, instruction, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "reads.fastq",
			ContentType:       "application/octet-stream",
			Size:              1024,
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}

		if upload.StorageKey != project.ID+"/"+upload.ID {
			t.Errorf("StorageKey = %q, want %q", upload.StorageKey, project.ID+"/"+upload.ID)
		}
		if upload.IsCompleted() || upload.HasError() {
			t.Error("new upload should be pending")
		}
		if instruction.HTTPVerb != "PUT" {
			t.Errorf("HTTPVerb = %q, want PUT", instruction.HTTPVerb)
		}
		if !strings.Contains(instruction.URL, upload.StorageKey) {
			t.Errorf("URL %q does not reference storage key %q", instruction.URL, upload.StorageKey)
		}

		stored, err := f.db.FindUploadByID(ctx, upload.ID)
		if err != nil {
			t.Fatalf("FindUploadByID() error = %v", err)
		}
		if stored == nil {
			t.Fatal("upload was not persisted")
		}
	})

	t.Run("rejects missing project", func(t *testing.T) {
		f := newFixture(t)
		provider := f.seedProvider(t)

		_, _, err := f.svc.CreateUpload(context.Background(), dds.CreateUploadRequest{
			ProjectID:         "nope",
			StorageProviderID: provider.ID,
			Name:              "x",
		})
		if !dds.IsValidation(err) {
			t.Fatalf("CreateUpload() error = %v, want validation error", err)
		}
	})

	t.Run("rejects deprecated provider", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")

		provider, err := f.svc.CreateStorageProvider(ctx, &model.StorageProvider{
			Name:         "old-swift",
			Bucket:       "legacy",
			IsDeprecated: true,
		})
		if err != nil {
			t.Fatalf("CreateStorageProvider() error = %v", err)
		}

		_, _, err = f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "x",
		})
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("CreateUpload() error = %v, want validation error", err)
		}
		if len(ve.Fields["storage_provider"]) == 0 {
			t.Errorf("validation fields = %v, want storage_provider message", ve.Fields)
		}
	})
}

func TestService_ReportUploadComplete(t *testing.T) {
	t.Run("verifies object and records fingerprint", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:            project.ID,
			StorageProviderID:    provider.ID,
			Name:                 "reads.fastq",
			Size:                 42,
			FingerprintValue:     "d41d8cd98f00b204e9800998ecf8427e",
			FingerprintAlgorithm: "md5",
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
		f.gateway.PutObject(upload.StorageKey, 42)

		upload, err = f.svc.ReportUploadComplete(ctx, upload.ID)
		if err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}
		if !upload.IsCompleted() {
			t.Fatal("upload should be completed")
		}

		fp, err := f.db.FindFingerprintByUploadID(ctx, upload.ID)
		if err != nil {
			t.Fatalf("FindFingerprintByUploadID() error = %v", err)
		}
		if fp == nil {
			t.Fatal("fingerprint was not recorded")
		}
		if fp.Algorithm != "md5" {
			t.Errorf("Algorithm = %q, want md5", fp.Algorithm)
		}
	})

	t.Run("missing object marks upload errored", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "reads.fastq",
			Size:              42,
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
		// No PutObject: the client never transferred anything.

		upload, err = f.svc.ReportUploadComplete(ctx, upload.ID)
		if err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}
		if !upload.HasError() {
			t.Fatal("upload should be errored")
		}
		if upload.IsCompleted() {
			t.Error("errored upload should not be completed")
		}
		if upload.ErrorMessage == "" {
			t.Error("ErrorMessage should describe the failure")
		}
	})

	t.Run("size mismatch marks upload errored", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "reads.fastq",
			Size:              42,
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
		f.gateway.PutObject(upload.StorageKey, 41)

		upload, err = f.svc.ReportUploadComplete(ctx, upload.ID)
		if err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}
		if !upload.HasError() {
			t.Fatal("upload should be errored")
		}
	})

	t.Run("unreachable backend leaves upload untouched", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "reads.fastq",
			Size:              42,
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
		f.gateway.SetUnavailable(errors.New("connection refused"))

		_, err = f.svc.ReportUploadComplete(ctx, upload.ID)
		if !dds.IsStorageUnavailable(err) {
			t.Fatalf("ReportUploadComplete() error = %v, want StorageUnavailableError", err)
		}

		stored, err := f.db.FindUploadByID(ctx, upload.ID)
		if err != nil {
			t.Fatalf("FindUploadByID() error = %v", err)
		}
		if stored.IsCompleted() || stored.HasError() {
			t.Error("upload state must not change on backend outage")
		}
	})

	t.Run("completion is idempotent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "reads.fastq")

		completedAt := *upload.CompletedAt
		f.clock.Advance(1000)

		again, err := f.svc.ReportUploadComplete(ctx, upload.ID)
		if err != nil {
			t.Fatalf("second ReportUploadComplete() error = %v", err)
		}
		if !again.CompletedAt.Equal(completedAt) {
			t.Errorf("CompletedAt changed on repeat report: %v != %v", again.CompletedAt, completedAt)
		}
	})
}

func TestService_TemporaryDownloadURL(t *testing.T) {
	t.Run("signs URL with the file name", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "reads.fastq")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		version, err := f.svc.CurrentVersion(ctx, file.ID)
		if err != nil {
			t.Fatalf("CurrentVersion() error = %v", err)
		}

		url, err := f.svc.TemporaryDownloadURL(ctx, version.ID)
		if err != nil {
			t.Fatalf("TemporaryDownloadURL() error = %v", err)
		}
		if !strings.Contains(url, "reads.fastq") {
			t.Errorf("URL %q does not carry the file name", url)
		}
		if !strings.Contains(url, upload.StorageKey) {
			t.Errorf("URL %q does not reference the storage key", url)
		}
	})

	t.Run("unknown version is not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.TemporaryDownloadURL(context.Background(), "nope")
		if !errors.Is(err, dds.ErrNotFound) {
			t.Fatalf("TemporaryDownloadURL() error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_RegisterAuthService(t *testing.T) {
	t.Run("rejects duplicate service id", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.svc.RegisterAuthService(ctx, &model.AuthenticationService{
			ServiceID: "duke-shib",
			Name:      "Duke Shibboleth",
			Type:      "duke",
		})
		if err != nil {
			t.Fatalf("RegisterAuthService() error = %v", err)
		}

		_, err = f.svc.RegisterAuthService(ctx, &model.AuthenticationService{
			ServiceID: "duke-shib",
			Name:      "Duplicate",
		})
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("RegisterAuthService() error = %v, want validation error", err)
		}
		if len(ve.Fields["service_id"]) == 0 {
			t.Errorf("validation fields = %v, want service_id message", ve.Fields)
		}
	})
}
