package graph

import (
	"context"
	"fmt"
	"strings"

	"dds-go/internal/dds"
	"dds-go/internal/model"

	surrealdb "github.com/surrealdb/surrealdb.go"
)

// SurrealGraph stores provenance nodes and edges in SurrealDB. Nodes live
// in the prov_node table keyed by their relational (type, id) pair; edges
// are RELATE records in one table per relation kind, carrying the endpoint
// identifiers as plain fields so they can be listed without dereferencing
// record links.
type SurrealGraph struct {
	db *surrealdb.DB
}

// NewSurrealGraph connects, authenticates and selects the namespace and
// database from config.
func NewSurrealGraph(url, namespace, database, username, password string) (*SurrealGraph, error) {
	db, err := surrealdb.New(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to surrealdb: %w", err)
	}

	if username != "" {
		if _, err := db.Signin(map[string]any{"user": username, "pass": password}); err != nil {
			db.Close()
			return nil, fmt.Errorf("authenticating with surrealdb: %w", err)
		}
	}
	if _, err := db.Use(namespace, database); err != nil {
		db.Close()
		return nil, fmt.Errorf("selecting surrealdb namespace: %w", err)
	}

	return &SurrealGraph{db: db}, nil
}

func (g *SurrealGraph) Close() error {
	g.db.Close()
	return nil
}

// nodeThing returns the record id for a node. UUID hyphens are stripped so
// the id is a plain identifier.
func nodeThing(n dds.GraphNode) string {
	return "prov_node:" + n.Type + "_" + strings.ReplaceAll(n.ID, "-", "")
}

func (g *SurrealGraph) EnsureNode(_ context.Context, node dds.GraphNode) error {
	_, err := g.db.Update(nodeThing(node), map[string]any{
		"model_type": node.Type,
		"model_id":   node.ID,
	})
	if err != nil {
		return fmt.Errorf("ensuring graph node: %w", err)
	}
	return nil
}

func (g *SurrealGraph) CreateEdge(ctx context.Context, edge dds.GraphEdge) error {
	exists, err := g.HasEdge(ctx, edge)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf(
		"RELATE %s->%s->%s SET from_type = $from_type, from_id = $from_id, to_type = $to_type, to_id = $to_id",
		nodeThing(edge.From), edge.Kind, nodeThing(edge.To))
	_, err = g.db.Query(stmt, map[string]any{
		"from_type": edge.From.Type,
		"from_id":   edge.From.ID,
		"to_type":   edge.To.Type,
		"to_id":     edge.To.ID,
	})
	if err != nil {
		return fmt.Errorf("creating graph edge: %w", err)
	}
	return nil
}

func (g *SurrealGraph) DeleteEdge(_ context.Context, edge dds.GraphEdge) error {
	stmt := fmt.Sprintf("DELETE %s WHERE in = %s AND out = %s",
		edge.Kind, nodeThing(edge.From), nodeThing(edge.To))
	if _, err := g.db.Query(stmt, nil); err != nil {
		return fmt.Errorf("deleting graph edge: %w", err)
	}
	return nil
}

func (g *SurrealGraph) HasEdge(_ context.Context, edge dds.GraphEdge) (bool, error) {
	stmt := fmt.Sprintf("SELECT from_id FROM %s WHERE in = %s AND out = %s",
		edge.Kind, nodeThing(edge.From), nodeThing(edge.To))
	resp, err := g.db.Query(stmt, nil)
	if err != nil {
		return false, fmt.Errorf("probing graph edge: %w", err)
	}
	return len(responseRows(resp)) > 0, nil
}

func (g *SurrealGraph) ListEdges(_ context.Context) ([]dds.GraphEdge, error) {
	var edges []dds.GraphEdge
	for _, kind := range model.RelationKinds {
		resp, err := g.db.Query("SELECT from_type, from_id, to_type, to_id FROM "+string(kind), nil)
		if err != nil {
			return nil, fmt.Errorf("listing %s edges: %w", kind, err)
		}
		for _, row := range responseRows(resp) {
			edges = append(edges, dds.GraphEdge{
				Kind: string(kind),
				From: dds.GraphNode{Type: stringField(row, "from_type"), ID: stringField(row, "from_id")},
				To:   dds.GraphNode{Type: stringField(row, "to_type"), ID: stringField(row, "to_id")},
			})
		}
	}
	return edges, nil
}

// responseRows flattens a query response into its row maps. The client
// returns untyped results: either the rows directly or a list of per-query
// results each carrying a "result" list.
func responseRows(resp any) []map[string]any {
	var rows []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if inner, ok := t["result"]; ok {
				walk(inner)
				return
			}
			rows = append(rows, t)
		}
	}
	walk(resp)
	return rows
}

func stringField(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

var _ dds.GraphStore = (*SurrealGraph)(nil)
