package dds_test

import (
	"context"
	"errors"
	"testing"

	"dds-go/internal/dds"
	"dds-go/internal/model"
)

func TestService_CreateDataFile(t *testing.T) {
	t.Run("creates file with version 1", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "reads.fastq")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			Label:     "initial",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		version, err := f.svc.CurrentVersion(ctx, file.ID)
		if err != nil {
			t.Fatalf("CurrentVersion() error = %v", err)
		}
		if version.VersionNumber != 1 {
			t.Errorf("VersionNumber = %d, want 1", version.VersionNumber)
		}
		if version.UploadID != upload.ID {
			t.Errorf("UploadID = %q, want %q", version.UploadID, upload.ID)
		}
		if version.Label != "initial" {
			t.Errorf("Label = %q, want initial", version.Label)
		}
	})

	t.Run("child inherits project from parent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		other := f.seedProject(t, "beacon")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "a")

		parent, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "folder",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() parent error = %v", err)
		}

		// The request names the wrong project; the parent wins.
		child, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: other.ID,
			ParentID:  &parent.ID,
			Name:      "nested.txt",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() child error = %v", err)
		}
		if child.ProjectID != project.ID {
			t.Errorf("child ProjectID = %q, want parent's %q", child.ProjectID, project.ID)
		}
	})

	t.Run("rejects pending upload", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:         project.ID,
			StorageProviderID: provider.ID,
			Name:              "reads.fastq",
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}

		_, err = f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("CreateDataFile() error = %v, want validation error", err)
		}
		want := "must be completed successfully"
		if got := ve.Fields["upload"]; len(got) != 1 || got[0] != want {
			t.Errorf("upload messages = %v, want [%q]", got, want)
		}
	})

	t.Run("rejects errored upload", func(t *testing.T) {
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
		// Complete without transferring: verification fails.
		if _, err := f.svc.ReportUploadComplete(ctx, upload.ID); err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}

		_, err = f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("CreateDataFile() error = %v, want validation error", err)
		}
		want := "cannot have an error"
		if got := ve.Fields["upload"]; len(got) != 1 || got[0] != want {
			t.Errorf("upload messages = %v, want [%q]", got, want)
		}
	})
}

func TestService_AttachUploadToFile(t *testing.T) {
	t.Run("new upload produces the next version", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		first := f.completedUpload(t, project, provider, "v1")
		second := f.completedUpload(t, project, provider, "v2")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  first.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		if _, err := f.svc.AttachUploadToFile(ctx, file.ID, second.ID); err != nil {
			t.Fatalf("AttachUploadToFile() error = %v", err)
		}

		version, err := f.svc.CurrentVersion(ctx, file.ID)
		if err != nil {
			t.Fatalf("CurrentVersion() error = %v", err)
		}
		if version.VersionNumber != 2 {
			t.Errorf("VersionNumber = %d, want 2", version.VersionNumber)
		}
		if version.UploadID != second.ID {
			t.Errorf("UploadID = %q, want %q", version.UploadID, second.ID)
		}

		versions, err := f.db.FindFileVersionsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindFileVersionsForFile() error = %v", err)
		}
		if len(versions) != 2 {
			t.Fatalf("version count = %d, want 2", len(versions))
		}
		if versions[0].UploadID != first.ID {
			t.Error("version 1 must keep its original upload reference")
		}
	})

	t.Run("same upload does not produce a version", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		if _, err := f.svc.AttachUploadToFile(ctx, file.ID, upload.ID); err != nil {
			t.Fatalf("AttachUploadToFile() error = %v", err)
		}

		versions, err := f.db.FindFileVersionsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindFileVersionsForFile() error = %v", err)
		}
		if len(versions) != 1 {
			t.Errorf("version count = %d, want 1", len(versions))
		}
	})

	t.Run("tombstoned file rejects new uploads", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		first := f.completedUpload(t, project, provider, "v1")
		second := f.completedUpload(t, project, provider, "v2")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  first.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}
		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("DeleteDataFile() error = %v", err)
		}

		_, err = f.svc.AttachUploadToFile(ctx, file.ID, second.ID)
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("AttachUploadToFile() error = %v, want validation error", err)
		}
		want := "is deleted"
		if got := ve.Fields["file"]; len(got) != 1 || got[0] != want {
			t.Errorf("file messages = %v, want [%q]", got, want)
		}

		// No live version may appear under the tombstone.
		versions, err := f.db.FindFileVersionsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindFileVersionsForFile() error = %v", err)
		}
		if len(versions) != 1 {
			t.Fatalf("version count = %d, want 1", len(versions))
		}
		if !versions[0].IsDeleted {
			t.Error("version 1 should remain tombstoned")
		}
	})
}

func TestService_SaveDataFile(t *testing.T) {
	t.Run("label change updates current version in place", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			Label:     "old",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		file.Label = "new"
		if err := f.svc.SaveDataFile(ctx, file); err != nil {
			t.Fatalf("SaveDataFile() error = %v", err)
		}

		versions, err := f.db.FindFileVersionsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindFileVersionsForFile() error = %v", err)
		}
		if len(versions) != 1 {
			t.Fatalf("version count = %d, want 1", len(versions))
		}
		if versions[0].Label != "new" {
			t.Errorf("Label = %q, want new", versions[0].Label)
		}
	})

	t.Run("direct project change is rejected", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		other := f.seedProject(t, "beacon")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		file.ProjectID = other.ID
		err = f.svc.SaveDataFile(ctx, file)
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("SaveDataFile() error = %v, want validation error", err)
		}
		want := "cannot be changed"
		if got := ve.Fields["project"]; len(got) != 1 || got[0] != want {
			t.Errorf("project messages = %v, want [%q]", got, want)
		}
	})

	t.Run("tombstoned file rejects label changes", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			Label:     "old",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}
		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("DeleteDataFile() error = %v", err)
		}

		file.Label = "new"
		err = f.svc.SaveDataFile(ctx, file)
		var ve *dds.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("SaveDataFile() error = %v, want validation error", err)
		}
		want := "is deleted"
		if got := ve.Fields["file"]; len(got) != 1 || got[0] != want {
			t.Errorf("file messages = %v, want [%q]", got, want)
		}
	})
}

func TestService_MoveDataFile(t *testing.T) {
	t.Run("re-derives project from new parent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		other := f.seedProject(t, "beacon")
		provider := f.seedProvider(t)
		uploadA := f.completedUpload(t, project, provider, "a")
		uploadB := f.completedUpload(t, other, provider, "b")

		folder, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: other.ID,
			Name:      "folder",
			UploadID:  uploadB.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() folder error = %v", err)
		}
		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  uploadA.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() file error = %v", err)
		}

		moved, err := f.svc.MoveDataFile(ctx, file.ID, &folder.ID)
		if err != nil {
			t.Fatalf("MoveDataFile() error = %v", err)
		}
		if moved.ProjectID != other.ID {
			t.Errorf("ProjectID = %q, want %q", moved.ProjectID, other.ID)
		}

		gotProject, chain, err := f.svc.Ancestors(ctx, file.ID)
		if err != nil {
			t.Fatalf("Ancestors() error = %v", err)
		}
		if gotProject.ID != other.ID {
			t.Errorf("ancestor project = %q, want %q", gotProject.ID, other.ID)
		}
		if len(chain) != 1 || chain[0].ID != folder.ID {
			t.Errorf("ancestor chain = %v, want [%s]", chain, folder.ID)
		}
	})

	t.Run("nil parent moves to project root", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "a")

		folder, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "folder",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() folder error = %v", err)
		}
		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			ParentID:  &folder.ID,
			Name:      "nested.txt",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() file error = %v", err)
		}

		moved, err := f.svc.MoveDataFile(ctx, file.ID, nil)
		if err != nil {
			t.Fatalf("MoveDataFile() error = %v", err)
		}
		if moved.ParentID != nil {
			t.Errorf("ParentID = %v, want nil", *moved.ParentID)
		}
		if moved.ProjectID != project.ID {
			t.Errorf("ProjectID = %q, want unchanged %q", moved.ProjectID, project.ID)
		}
	})
}

func TestService_DeleteDataFile(t *testing.T) {
	t.Run("cascades tombstone to every version", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		first := f.completedUpload(t, project, provider, "v1")
		second := f.completedUpload(t, project, provider, "v2")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  first.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}
		if _, err := f.svc.AttachUploadToFile(ctx, file.ID, second.ID); err != nil {
			t.Fatalf("AttachUploadToFile() error = %v", err)
		}

		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("DeleteDataFile() error = %v", err)
		}

		stored, err := f.db.FindDataFileByID(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindDataFileByID() error = %v", err)
		}
		if !stored.IsDeleted {
			t.Error("file should be tombstoned")
		}

		versions, err := f.db.FindFileVersionsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("FindFileVersionsForFile() error = %v", err)
		}
		if len(versions) != 2 {
			t.Fatalf("version count = %d, want 2", len(versions))
		}
		for _, v := range versions {
			if !v.IsDeleted {
				t.Errorf("version %d should be tombstoned", v.VersionNumber)
			}
		}
	})

	t.Run("deleting twice is a no-op", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}

		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("first DeleteDataFile() error = %v", err)
		}
		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("second DeleteDataFile() error = %v", err)
		}
	})
}

func TestService_CurrentVersion(t *testing.T) {
	t.Run("synthesizes pending version when none is persisted", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		// Simulate a crash after the file row landed but before its version:
		// write the row directly, bypassing the lifecycle.
		file := &model.DataFile{
			ID:        "df-drift",
			ProjectID: project.ID,
			Name:      "reads.fastq",
			Label:     "drifted",
			UploadID:  upload.ID,
			CreatedAt: f.clock.Now(),
			UpdatedAt: f.clock.Now(),
		}
		if err := f.db.SaveDataFile(ctx, file, nil, nil); err != nil {
			t.Fatalf("SaveDataFile() error = %v", err)
		}

		version, err := f.svc.CurrentVersion(ctx, file.ID)
		if err != nil {
			t.Fatalf("CurrentVersion() error = %v", err)
		}
		if version.Persisted() {
			t.Errorf("pending version should not be persisted, got number %d", version.VersionNumber)
		}
		if version.UploadID != upload.ID {
			t.Errorf("UploadID = %q, want %q", version.UploadID, upload.ID)
		}
		if version.Label != "drifted" {
			t.Errorf("Label = %q, want drifted", version.Label)
		}
	})

	t.Run("tombstoned file is not found", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)
		upload := f.completedUpload(t, project, provider, "v1")

		file, err := f.svc.CreateDataFile(ctx, dds.CreateDataFileRequest{
			ProjectID: project.ID,
			Name:      "reads.fastq",
			UploadID:  upload.ID,
		})
		if err != nil {
			t.Fatalf("CreateDataFile() error = %v", err)
		}
		if err := f.svc.DeleteDataFile(ctx, file.ID); err != nil {
			t.Fatalf("DeleteDataFile() error = %v", err)
		}

		// Every version is tombstoned; no pending version may be synthesized.
		_, err = f.svc.CurrentVersion(ctx, file.ID)
		if !errors.Is(err, dds.ErrNotFound) {
			t.Fatalf("CurrentVersion() error = %v, want ErrNotFound", err)
		}
	})
}
