package dds

import (
	"context"
	"fmt"
	"strings"

	"dds-go/internal/model"
)

// Registry operations cover the records the engine depends on but does not
// manage the lifecycle of: projects, agents, activities, storage providers
// and authentication services. The CLI and the API layer create these;
// uploads and file versions then reference them.

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	verr := NewValidationError()
	if strings.TrimSpace(name) == "" {
		verr.Add("name", "must be present")
	}
	if verr.Any() {
		return nil, verr
	}

	project := &model.Project{
		ID:          s.idgen.New(),
		Name:        name,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	audit := s.newAudit(ctx, TypeProject, project.ID, model.ActionCreate)
	if err := s.database.CreateProject(ctx, project, audit); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return project, nil
}

// CreateAgent persists a new provenance agent and mirrors its graph node.
func (s *Service) CreateAgent(ctx context.Context, agent *model.Agent) (*model.Agent, error) {
	verr := NewValidationError()
	if agent.Kind != model.AgentUser && agent.Kind != model.AgentSoftware {
		verr.Add("kind", "must be user or software_agent")
	}
	if agent.Kind == model.AgentUser && strings.TrimSpace(agent.Username) == "" {
		verr.Add("username", "must be present")
	}
	if strings.TrimSpace(agent.DisplayName) == "" {
		verr.Add("display_name", "must be present")
	}
	if verr.Any() {
		return nil, verr
	}

	agent.ID = s.idgen.New()
	agent.CreatedAt = s.clock.Now()
	audit := s.newAudit(ctx, TypeAgent, agent.ID, model.ActionCreate)
	if err := s.database.CreateAgent(ctx, agent, audit); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	s.mirrorNode(ctx, TypeAgent, agent.ID)
	return agent, nil
}

// CreateActivity persists a new provenance activity and mirrors its graph node.
func (s *Service) CreateActivity(ctx context.Context, activity *model.Activity) (*model.Activity, error) {
	verr := NewValidationError()
	if strings.TrimSpace(activity.Name) == "" {
		verr.Add("name", "must be present")
	}
	if verr.Any() {
		return nil, verr
	}

	activity.ID = s.idgen.New()
	activity.CreatedAt = s.clock.Now()
	audit := s.newAudit(ctx, TypeActivity, activity.ID, model.ActionCreate)
	if err := s.database.CreateActivity(ctx, activity, audit); err != nil {
		return nil, fmt.Errorf("creating activity: %w", err)
	}
	s.mirrorNode(ctx, TypeActivity, activity.ID)
	return activity, nil
}

// CreateStorageProvider registers a backend object store.
func (s *Service) CreateStorageProvider(ctx context.Context, provider *model.StorageProvider) (*model.StorageProvider, error) {
	verr := NewValidationError()
	if strings.TrimSpace(provider.Name) == "" {
		verr.Add("name", "must be present")
	}
	if strings.TrimSpace(provider.Bucket) == "" {
		verr.Add("bucket", "must be present")
	}
	if verr.Any() {
		return nil, verr
	}

	provider.ID = s.idgen.New()
	provider.CreatedAt = s.clock.Now()
	if err := s.database.CreateStorageProvider(ctx, provider); err != nil {
		return nil, fmt.Errorf("creating storage provider: %w", err)
	}
	return provider, nil
}

// ListStorageProviders returns registered providers, optionally including
// deprecated ones.
func (s *Service) ListStorageProviders(ctx context.Context, includeDeprecated bool) ([]*model.StorageProvider, error) {
	providers, err := s.database.ListStorageProviders(ctx, includeDeprecated)
	if err != nil {
		return nil, fmt.Errorf("listing storage providers: %w", err)
	}
	return providers, nil
}

// RegisterAuthService stores an identity backend. ServiceID must be unique;
// the type discriminator is validated by the caller (see internal/auth).
func (s *Service) RegisterAuthService(ctx context.Context, svc *model.AuthenticationService) (*model.AuthenticationService, error) {
	verr := NewValidationError()
	if strings.TrimSpace(svc.ServiceID) == "" {
		verr.Add("service_id", "must be present")
	}
	if strings.TrimSpace(svc.Name) == "" {
		verr.Add("name", "must be present")
	}
	if verr.Any() {
		return nil, verr
	}

	existing, err := s.database.FindAuthenticationServiceByServiceID(ctx, svc.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("finding authentication service: %w", err)
	}
	if existing != nil {
		verr.Add("service_id", "has already been taken")
		return nil, verr
	}

	svc.ID = s.idgen.New()
	svc.CreatedAt = s.clock.Now()
	if err := s.database.CreateAuthenticationService(ctx, svc); err != nil {
		return nil, fmt.Errorf("creating authentication service: %w", err)
	}
	return svc, nil
}

// mirrorNode projects a relational record into the graph store. Failures
// are logged, not returned: the row is the system of record and the next
// reconciliation pass recreates missing nodes alongside their edges.
func (s *Service) mirrorNode(ctx context.Context, entityType, id string) {
	if err := s.graph.EnsureNode(ctx, GraphNode{Type: entityType, ID: id}); err != nil {
		s.logger.Warn("graph node mirror failed", "type", entityType, "id", id, "error", err)
	}
}
