package dds

import (
	"context"
	"fmt"

	"dds-go/internal/model"
)

// Reconciliation count keys.
const (
	CountFileVersionsCreated = "file_versions_created"
	CountFingerprintsCreated = "fingerprints_created"
	CountAuthServicesTyped   = "auth_services_typed"
	CountGraphEdgesCreated   = "graph_edges_created"
	CountGraphEdgesDeleted   = "graph_edges_deleted"
)

// RunReconciliation sweeps for drift between file-version state, upload
// state, fingerprint state and the provenance graph, and repairs it. Every
// rule is idempotent and independent: a second run over converged data
// changes zero records. Drift is the expected steady-state workload here,
// not an error; only storage faults abort the pass.
func (s *Service) RunReconciliation(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{
		CountFileVersionsCreated: 0,
		CountFingerprintsCreated: 0,
		CountAuthServicesTyped:   0,
		CountGraphEdgesCreated:   0,
		CountGraphEdgesDeleted:   0,
	}

	n, err := s.reconcileFileVersions(ctx)
	if err != nil {
		return counts, fmt.Errorf("reconciling file versions: %w", err)
	}
	counts[CountFileVersionsCreated] = n

	n, err = s.reconcileFingerprints(ctx)
	if err != nil {
		return counts, fmt.Errorf("reconciling fingerprints: %w", err)
	}
	counts[CountFingerprintsCreated] = n

	n, err = s.reconcileAuthServiceTypes(ctx)
	if err != nil {
		return counts, fmt.Errorf("reconciling authentication services: %w", err)
	}
	counts[CountAuthServicesTyped] = n

	created, deleted, err := s.reconcileGraph(ctx)
	if err != nil {
		return counts, fmt.Errorf("reconciling provenance graph: %w", err)
	}
	counts[CountGraphEdgesCreated] = created
	counts[CountGraphEdgesDeleted] = deleted

	s.logger.Info("reconciliation complete",
		"file_versions_created", counts[CountFileVersionsCreated],
		"fingerprints_created", counts[CountFingerprintsCreated],
		"auth_services_typed", counts[CountAuthServicesTyped],
		"graph_edges_created", counts[CountGraphEdgesCreated],
		"graph_edges_deleted", counts[CountGraphEdgesDeleted])
	return counts, nil
}

// reconcileFileVersions repairs files with zero versions and files whose
// current version's upload no longer matches the file's own: saving the
// file re-runs the lifecycle, which synthesizes the missing version. Each
// repair is attributed to the creator of the file's current version when
// that is derivable from the audit log, else left unattributed.
func (s *Service) reconcileFileVersions(ctx context.Context) (int, error) {
	missing, err := s.database.ListDataFilesWithoutVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing files without versions: %w", err)
	}
	repaired, err := s.repairDataFiles(ctx, missing, "missing version")
	if err != nil {
		return repaired, err
	}

	mismatched, err := s.database.ListDataFilesWithVersionMismatch(ctx)
	if err != nil {
		return repaired, fmt.Errorf("listing files with upload mismatch: %w", err)
	}
	n, err := s.repairDataFiles(ctx, mismatched, "upload mismatch")
	return repaired + n, err
}

// repairDataFiles re-saves each drifted file, re-running the version
// lifecycle so the missing version is synthesized. drift names the rule
// that flagged the file.
func (s *Service) repairDataFiles(ctx context.Context, files []*model.DataFile, drift string) (int, error) {
	count := 0
	for _, file := range files {
		rctx, err := s.attributionContext(ctx, file)
		if err != nil {
			return count, err
		}
		if err := s.SaveDataFile(rctx, file); err != nil {
			if IsValidation(err) {
				// A file pointing at an incomplete or errored upload cannot
				// be converged; leave it for the operator.
				s.logger.Warn("skipping unrepairable data file", "data_file", file.ID, "drift", drift, "reason", err.Error())
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// attributionContext keys the repair to the creator of the file's current
// version, when the audit log knows one.
func (s *Service) attributionContext(ctx context.Context, file *model.DataFile) (context.Context, error) {
	versions, err := s.database.FindFileVersionsForFile(ctx, file.ID)
	if err != nil {
		return ctx, fmt.Errorf("finding file versions: %w", err)
	}
	current := currentOf(versions)
	if current == nil {
		// Fall back to the file's own creation audit.
		creator, err := s.Creator(ctx, TypeDataFile, file.ID)
		if err != nil {
			return ctx, err
		}
		if creator != nil {
			return WithPrincipal(ctx, creator), nil
		}
		return ctx, nil
	}
	creator, err := s.Creator(ctx, TypeFileVersion, current.ID)
	if err != nil {
		return ctx, err
	}
	if creator != nil {
		return WithPrincipal(ctx, creator), nil
	}
	return ctx, nil
}

// reconcileFingerprints backfills Fingerprint rows for completed uploads
// carrying a recognized, non-blank digest. Unrecognized algorithms and
// uploads that already have a Fingerprint are skipped silently.
func (s *Service) reconcileFingerprints(ctx context.Context) (int, error) {
	uploads, err := s.database.ListCompletedUploadsNeedingFingerprint(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing uploads: %w", err)
	}

	count := 0
	for _, upload := range uploads {
		created, err := s.EnsureFingerprint(ctx, upload)
		if err != nil {
			return count, err
		}
		if created {
			count++
		}
	}
	return count, nil
}

// reconcileAuthServiceTypes assigns the registered default concrete type to
// untyped legacy authentication_service rows. With no default registered
// the rule is a no-op.
func (s *Service) reconcileAuthServiceTypes(ctx context.Context) (int, error) {
	if s.defaultAuthServiceType == "" {
		return 0, nil
	}

	rows, err := s.database.ListUntypedAuthenticationServices(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing untyped services: %w", err)
	}

	count := 0
	for _, svc := range rows {
		if err := s.database.AssignAuthenticationServiceType(ctx, svc.ID, s.defaultAuthServiceType); err != nil {
			return count, fmt.Errorf("assigning service type: %w", err)
		}
		count++
	}
	if count > 0 {
		s.logger.Info("untyped authentication services changed", "count", count, "type", s.defaultAuthServiceType)
	}
	return count, nil
}

// reconcileGraph re-derives the expected edge set from live relation rows:
// edges missing from the graph are created, edges with no live backing row
// are deleted. Row state always wins; the graph is a projection.
func (s *Service) reconcileGraph(ctx context.Context) (created, deleted int, err error) {
	rels, err := s.database.ListProvRelations(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing relations: %w", err)
	}

	expected := make(map[GraphEdge]bool, len(rels))
	for _, rel := range rels {
		edge := edgeFor(rel)
		expected[edge] = true

		exists, err := s.graph.HasEdge(ctx, edge)
		if err != nil {
			return created, deleted, fmt.Errorf("probing edge: %w", err)
		}
		if exists {
			continue
		}
		if err := s.graph.EnsureNode(ctx, edge.From); err != nil {
			return created, deleted, fmt.Errorf("ensuring node: %w", err)
		}
		if err := s.graph.EnsureNode(ctx, edge.To); err != nil {
			return created, deleted, fmt.Errorf("ensuring node: %w", err)
		}
		if err := s.graph.CreateEdge(ctx, edge); err != nil {
			return created, deleted, fmt.Errorf("creating edge: %w", err)
		}
		created++
	}

	edges, err := s.graph.ListEdges(ctx)
	if err != nil {
		return created, deleted, fmt.Errorf("listing edges: %w", err)
	}
	for _, edge := range edges {
		if expected[edge] {
			continue
		}
		if err := s.graph.DeleteEdge(ctx, edge); err != nil {
			return created, deleted, fmt.Errorf("deleting orphaned edge: %w", err)
		}
		deleted++
	}
	return created, deleted, nil
}
