package dds

import (
	"context"
	"fmt"
	"strings"

	"dds-go/internal/model"
)

// supportedAlgorithms is the closed set of fingerprint algorithms. Matching
// is case-insensitive; extend the set here.
var supportedAlgorithms = map[string]bool{
	"md5":    true,
	"sha1":   true,
	"sha256": true,
	"sha512": true,
}

// NormalizeAlgorithm lower-cases a raw algorithm label and checks it
// against the supported set.
func NormalizeAlgorithm(label string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if !supportedAlgorithms[normalized] {
		return "", fmt.Errorf("%q: %w", label, ErrUnsupportedAlgorithm)
	}
	return normalized, nil
}

// EnsureFingerprint persists at most one Fingerprint for a completed
// upload, from its client-reported digest. It reports whether a row was
// created. Blank digests, unrecognized algorithms and uploads that already
// carry a Fingerprint are silent no-ops: backfill runs call this over
// arbitrary upload sets and must stay idempotent.
func (s *Service) EnsureFingerprint(ctx context.Context, upload *model.Upload) (bool, error) {
	if !upload.IsCompleted() || upload.FingerprintValue == "" {
		return false, nil
	}

	algorithm, err := NormalizeAlgorithm(upload.FingerprintAlgorithm)
	if err != nil {
		return false, nil
	}

	existing, err := s.database.FindFingerprintByUploadID(ctx, upload.ID)
	if err != nil {
		return false, fmt.Errorf("finding fingerprint: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	fp := &model.Fingerprint{
		ID:        s.idgen.New(),
		UploadID:  upload.ID,
		Algorithm: algorithm,
		Value:     upload.FingerprintValue,
		CreatedAt: s.clock.Now(),
	}
	audit := s.newAudit(ctx, TypeFingerprint, fp.ID, model.ActionCreate)
	if err := s.database.CreateFingerprint(ctx, fp, audit); err != nil {
		return false, fmt.Errorf("creating fingerprint: %w", err)
	}

	s.logger.Debug("fingerprint recorded", "upload", upload.ID, "algorithm", algorithm)
	return true, nil
}
