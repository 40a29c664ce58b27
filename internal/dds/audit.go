package dds

import (
	"context"
	"fmt"

	"dds-go/internal/model"
)

// The audit principal travels in the context rather than in process-wide
// state: the innermost WithPrincipal wins for the duration of its scope and
// is released automatically when the scope exits, even on error. Mutations
// outside any scope are recorded unattributed, which is legitimate.

type principalKey struct{}

// WithPrincipal returns a context whose mutations are attributed to agent.
func WithPrincipal(ctx context.Context, agent *model.Agent) context.Context {
	return context.WithValue(ctx, principalKey{}, agent)
}

// PrincipalFrom returns the acting agent for ctx, or nil if the mutation
// is unattributed.
func PrincipalFrom(ctx context.Context) *model.Agent {
	agent, _ := ctx.Value(principalKey{}).(*model.Agent)
	return agent
}

// newAudit builds an AuditRecord for a mutation, attributed to the
// principal in ctx when one is present.
func (s *Service) newAudit(ctx context.Context, entityType, entityID, action string) *model.AuditRecord {
	rec := &model.AuditRecord{
		ID:         s.idgen.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		RecordedAt: s.clock.Now(),
	}
	if agent := PrincipalFrom(ctx); agent != nil {
		rec.PrincipalID = agent.ID
	}
	return rec
}

// Creator derives the agent that created an entity from its creation audit
// record. A missing audit record or an unattributed one yields nil, nil:
// the creator is then simply unknown.
func (s *Service) Creator(ctx context.Context, entityType, entityID string) (*model.Agent, error) {
	rec, err := s.database.FindCreationAudit(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("finding creation audit: %w", err)
	}
	if rec == nil || rec.PrincipalID == "" {
		return nil, nil
	}
	agent, err := s.database.FindAgentByID(ctx, rec.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("finding creator agent: %w", err)
	}
	return agent, nil
}
