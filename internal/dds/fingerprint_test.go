package dds_test

import (
	"context"
	"errors"
	"testing"

	"dds-go/internal/dds"
)

func TestNormalizeAlgorithm(t *testing.T) {
	tests := []struct {
		label   string
		want    string
		wantErr bool
	}{
		{label: "md5", want: "md5"},
		{label: "MD5", want: "md5"},
		{label: "  sha256 ", want: "sha256"},
		{label: "sha512", want: "sha512"},
		{label: "md5000", wantErr: true},
		{label: "", wantErr: true},
		{label: "crc32", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := dds.NormalizeAlgorithm(tt.label)
			if tt.wantErr {
				if !errors.Is(err, dds.ErrUnsupportedAlgorithm) {
					t.Fatalf("NormalizeAlgorithm(%q) error = %v, want ErrUnsupportedAlgorithm", tt.label, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeAlgorithm(%q) error = %v", tt.label, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeAlgorithm(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestService_EnsureFingerprint(t *testing.T) {
	newCompleted := func(t *testing.T, f *fixture, digest, algorithm string) string {
		t.Helper()
		ctx := context.Background()
		project := f.seedProject(t, "atlas")
		provider := f.seedProvider(t)

		upload, _, err := f.svc.CreateUpload(ctx, dds.CreateUploadRequest{
			ProjectID:            project.ID,
			StorageProviderID:    provider.ID,
			Name:                 "reads.fastq",
			Size:                 42,
			FingerprintValue:     digest,
			FingerprintAlgorithm: algorithm,
		})
		if err != nil {
			t.Fatalf("CreateUpload() error = %v", err)
		}
		f.gateway.PutObject(upload.StorageKey, 42)
		return upload.ID
	}

	t.Run("records normalized fingerprint on completion", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		uploadID := newCompleted(t, f, "d41d8cd98f00b204e9800998ecf8427e", "MD5")

		if _, err := f.svc.ReportUploadComplete(ctx, uploadID); err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}

		fp, err := f.db.FindFingerprintByUploadID(ctx, uploadID)
		if err != nil {
			t.Fatalf("FindFingerprintByUploadID() error = %v", err)
		}
		if fp == nil {
			t.Fatal("fingerprint was not recorded")
		}
		if fp.Algorithm != "md5" {
			t.Errorf("Algorithm = %q, want md5 (normalized)", fp.Algorithm)
		}
		if fp.Value != "d41d8cd98f00b204e9800998ecf8427e" {
			t.Errorf("Value = %q, want reported digest", fp.Value)
		}
	})

	t.Run("unrecognized algorithm is skipped without error", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		uploadID := newCompleted(t, f, "abc123", "md5000")

		upload, err := f.svc.ReportUploadComplete(ctx, uploadID)
		if err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}
		if !upload.IsCompleted() {
			t.Fatal("upload should still complete")
		}

		fp, err := f.db.FindFingerprintByUploadID(ctx, uploadID)
		if err != nil {
			t.Fatalf("FindFingerprintByUploadID() error = %v", err)
		}
		if fp != nil {
			t.Errorf("fingerprint = %v, want none for unrecognized algorithm", fp)
		}
	})

	t.Run("blank digest is skipped", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		uploadID := newCompleted(t, f, "", "md5")

		if _, err := f.svc.ReportUploadComplete(ctx, uploadID); err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}

		fp, err := f.db.FindFingerprintByUploadID(ctx, uploadID)
		if err != nil {
			t.Fatalf("FindFingerprintByUploadID() error = %v", err)
		}
		if fp != nil {
			t.Errorf("fingerprint = %v, want none for blank digest", fp)
		}
	})

	t.Run("never creates a second fingerprint", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		uploadID := newCompleted(t, f, "abc123", "sha1")

		if _, err := f.svc.ReportUploadComplete(ctx, uploadID); err != nil {
			t.Fatalf("ReportUploadComplete() error = %v", err)
		}

		upload, err := f.db.FindUploadByID(ctx, uploadID)
		if err != nil {
			t.Fatalf("FindUploadByID() error = %v", err)
		}
		created, err := f.svc.EnsureFingerprint(ctx, upload)
		if err != nil {
			t.Fatalf("EnsureFingerprint() error = %v", err)
		}
		if created {
			t.Error("EnsureFingerprint() created a duplicate row")
		}
	})

	t.Run("incomplete upload is skipped", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		uploadID := newCompleted(t, f, "abc123", "sha1")

		upload, err := f.db.FindUploadByID(ctx, uploadID)
		if err != nil {
			t.Fatalf("FindUploadByID() error = %v", err)
		}
		created, err := f.svc.EnsureFingerprint(ctx, upload)
		if err != nil {
			t.Fatalf("EnsureFingerprint() error = %v", err)
		}
		if created {
			t.Error("EnsureFingerprint() must not act on an incomplete upload")
		}
	})
}
