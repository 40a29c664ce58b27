package dds

import (
	"context"
	"fmt"

	"dds-go/internal/model"
)

// relationEndpoints fixes the allowed endpoint types per PROV relation
// kind. "entity" stands for any content-bearing record (currently file
// versions and activities are the only non-entity endpoints).
type endpointRule struct {
	from map[string]bool
	to   map[string]bool
}

var entityTypes = map[string]bool{
	TypeFileVersion: true,
	TypeDataFile:    true,
	TypeUpload:      true,
}

var relationRules = map[model.RelationKind]endpointRule{
	model.WasAssociatedWith: {
		from: map[string]bool{TypeAgent: true},
		to:   map[string]bool{TypeActivity: true},
	},
	model.WasAttributedTo: {
		from: entityTypes,
		to:   map[string]bool{TypeAgent: true},
	},
	model.WasInvalidatedBy: {
		from: entityTypes,
		to:   map[string]bool{TypeActivity: true},
	},
	model.WasGeneratedBy: {
		from: entityTypes,
		to:   map[string]bool{TypeActivity: true},
	},
	model.Used: {
		from: map[string]bool{TypeActivity: true},
		to:   entityTypes,
	},
	model.WasDerivedFrom: {
		from: entityTypes,
		to:   entityTypes,
	},
}

// RecordRelation creates a provenance relation row and mirrors it into the
// graph store. The relational row is the system of record: a failed graph
// write is logged and left for reconciliation to repair, never rolled back.
func (s *Service) RecordRelation(ctx context.Context, kind model.RelationKind, from, to GraphNode) (*model.ProvRelation, error) {
	rule, ok := relationRules[kind]
	if !ok {
		ve := NewValidationError()
		ve.Add("kind", fmt.Sprintf("%q is not a known relation kind", kind))
		return nil, ve
	}

	ve := NewValidationError()
	if !rule.from[from.Type] {
		ve.Add("from", fmt.Sprintf("%s cannot be the source of %s", from.Type, kind))
	}
	if !rule.to[to.Type] {
		ve.Add("to", fmt.Sprintf("%s cannot be the target of %s", to.Type, kind))
	}
	if ve.Any() {
		return nil, ve
	}

	rel := &model.ProvRelation{
		ID:        s.idgen.New(),
		Kind:      kind,
		FromType:  from.Type,
		FromID:    from.ID,
		ToType:    to.Type,
		ToID:      to.ID,
		CreatedAt: s.clock.Now(),
	}
	audit := s.newAudit(ctx, TypeRelation, rel.ID, model.ActionCreate)
	if err := s.database.CreateProvRelation(ctx, rel, audit); err != nil {
		return nil, fmt.Errorf("creating relation: %w", err)
	}

	s.mirrorEdge(ctx, rel)
	return rel, nil
}

// DeleteRelation tombstones a relation row and removes its mirrored edge.
func (s *Service) DeleteRelation(ctx context.Context, relationID string) error {
	rel, err := s.database.FindProvRelationByID(ctx, relationID)
	if err != nil {
		return fmt.Errorf("finding relation: %w", err)
	}
	if rel == nil {
		return fmt.Errorf("relation %s: %w", relationID, ErrNotFound)
	}
	if rel.IsDeleted {
		return nil
	}

	rel.IsDeleted = true
	audit := s.newAudit(ctx, TypeRelation, rel.ID, model.ActionDelete)
	if err := s.database.DeleteProvRelation(ctx, rel, audit); err != nil {
		return fmt.Errorf("deleting relation: %w", err)
	}

	if err := s.graph.DeleteEdge(ctx, edgeFor(rel)); err != nil {
		// Drift; the reconciliation pass will remove the orphaned edge.
		s.logger.Warn("graph edge delete failed", "relation", rel.ID, "error", err.Error())
	}
	return nil
}

// mirrorEdge writes the graph projection of a relation row: both endpoint
// nodes on first reference, then the typed edge. There is no two-phase
// commit between the two stores; a failed write here is drift for the
// reconciliation pass.
func (s *Service) mirrorEdge(ctx context.Context, rel *model.ProvRelation) {
	edge := edgeFor(rel)
	if err := s.graph.EnsureNode(ctx, edge.From); err != nil {
		s.logger.Warn("graph node write failed", "relation", rel.ID, "error", err.Error())
		return
	}
	if err := s.graph.EnsureNode(ctx, edge.To); err != nil {
		s.logger.Warn("graph node write failed", "relation", rel.ID, "error", err.Error())
		return
	}
	if err := s.graph.CreateEdge(ctx, edge); err != nil {
		s.logger.Warn("graph edge write failed", "relation", rel.ID, "error", err.Error())
	}
}

// edgeFor derives the expected graph edge for a relation row.
func edgeFor(rel *model.ProvRelation) GraphEdge {
	return GraphEdge{
		Kind: string(rel.Kind),
		From: GraphNode{Type: rel.FromType, ID: rel.FromID},
		To:   GraphNode{Type: rel.ToType, ID: rel.ToID},
	}
}
