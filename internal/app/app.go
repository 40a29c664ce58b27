package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dds-go/internal/auth"
	"dds-go/internal/config"
	"dds-go/internal/database"
	"dds-go/internal/database/migrations"
	"dds-go/internal/dds"
	"dds-go/internal/graph"
	"dds-go/internal/model"
	"dds-go/internal/storage"
)

// DDSApp is the application layer between the CLI and the engine Service.
// It constructs all dependencies from config, resolves principals onto the
// context, and manages store lifecycles on Close.
type DDSApp struct {
	cfg     *config.Config
	db      dds.Database
	gateway dds.StorageGateway
	graph   dds.GraphStore
	service *dds.Service
	logFile *os.File
}

// NewDDSApp creates a fully wired DDSApp from the given config.
// operation identifies the CLI command being run (e.g. "Reconcile", "UploadCreate").
// The caller must call Close when done.
func NewDDSApp(ctx context.Context, cfg *config.Config, operation string) (*DDSApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	// On-disk databases are migrated explicitly; refuse to run against a
	// stale schema. In-memory databases get the full schema at open.
	if cfg.Database.Type == "sqlite" {
		sqldb, ok := db.(*database.SQLiteDatabase)
		if !ok {
			db.Close()
			return nil, fmt.Errorf("sqlite database has unexpected type %T", db)
		}
		if err := migrations.CheckStatus(sqldb.DB()); err != nil {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	gw, err := storage.NewGatewayFromConfig(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating storage gateway: %w", err)
	}

	gr, err := graph.NewGraphFromConfig(cfg.Graph)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating graph store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		gr.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := dds.NewService(db, gw, gr, &slogAdapter{l: logger}, dds.RealClock{}, dds.UUIDGenerator{})
	if cfg.Auth.DefaultServiceType != "" {
		if err := auth.ValidateType(cfg.Auth.DefaultServiceType); err != nil {
			db.Close()
			gr.Close()
			logFile.Close()
			return nil, fmt.Errorf("configured default_service_type: %w", err)
		}
		svc.SetDefaultAuthServiceType(cfg.Auth.DefaultServiceType)
	}

	return &DDSApp{
		cfg:     cfg,
		db:      db,
		gateway: gw,
		graph:   gr,
		service: svc,
		logFile: logFile,
	}, nil
}

// Service exposes the engine for operations the app does not wrap.
func (a *DDSApp) Service() *dds.Service { return a.service }

// AsPrincipal resolves an agent by id and returns a context whose
// mutations are attributed to it. An empty id returns ctx unchanged.
func (a *DDSApp) AsPrincipal(ctx context.Context, agentID string) (context.Context, error) {
	if agentID == "" {
		return ctx, nil
	}
	agent, err := a.db.FindAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("finding agent: %w", err)
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, dds.ErrNotFound)
	}
	return dds.WithPrincipal(ctx, agent), nil
}

// Authenticate resolves an access token against the configured duke
// authentication service and returns a context attributed to the user.
// Unknown users are registered on first login.
func (a *DDSApp) Authenticate(ctx context.Context, token string) (context.Context, *model.Agent, error) {
	if a.cfg.Auth.ServiceID == "" {
		return nil, nil, fmt.Errorf("no authentication service configured")
	}
	svc, err := a.db.FindAuthenticationServiceByServiceID(ctx, a.cfg.Auth.ServiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding authentication service: %w", err)
	}
	if svc == nil {
		return nil, nil, fmt.Errorf("authentication service %s: %w", a.cfg.Auth.ServiceID, dds.ErrNotFound)
	}

	duke := auth.NewDukeService(svc, a.cfg.Auth.Secret)
	agent, err := duke.UserForAccessToken(ctx, a.db, token)
	if err != nil {
		return nil, nil, err
	}

	if agent.ID == "" {
		agent, err = a.service.CreateAgent(ctx, agent)
		if err != nil {
			return nil, nil, fmt.Errorf("registering user: %w", err)
		}
	}
	return dds.WithPrincipal(ctx, agent), agent, nil
}

// MigrateUp brings an on-disk database to the latest schema version.
// It opens its own connection so it can run before NewDDSApp succeeds.
func MigrateUp(cfg *config.Config) error {
	if cfg.Database.Type != "sqlite" {
		return fmt.Errorf("migrations only apply to sqlite databases")
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.NewSQLiteDatabase(filepath.Join(cfg.Database.DataDir, "dds.db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db.DB()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Close releases the database, graph connection and log file.
func (a *DDSApp) Close() error {
	var firstErr error

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if err := a.graph.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing graph store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
