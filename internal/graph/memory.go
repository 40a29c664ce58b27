package graph

import (
	"context"
	"sync"

	"dds-go/internal/dds"
)

// MemoryGraph is an in-memory GraphStore for tests. Tests can inject a
// failure to exercise the best-effort mirroring path.
// Safe for concurrent use.
type MemoryGraph struct {
	mu      sync.Mutex
	nodes   map[dds.GraphNode]bool
	edges   map[dds.GraphEdge]bool
	failing error
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[dds.GraphNode]bool),
		edges: make(map[dds.GraphEdge]bool),
	}
}

// SetFailing makes every subsequent write fail with cause; nil restores
// service.
func (g *MemoryGraph) SetFailing(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = cause
}

// EdgeCount returns the number of edges in the store.
func (g *MemoryGraph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

func (g *MemoryGraph) EnsureNode(_ context.Context, node dds.GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return g.failing
	}
	g.nodes[node] = true
	return nil
}

func (g *MemoryGraph) CreateEdge(_ context.Context, edge dds.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return g.failing
	}
	g.nodes[edge.From] = true
	g.nodes[edge.To] = true
	g.edges[edge] = true
	return nil
}

func (g *MemoryGraph) DeleteEdge(_ context.Context, edge dds.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return g.failing
	}
	delete(g.edges, edge)
	return nil
}

func (g *MemoryGraph) HasEdge(_ context.Context, edge dds.GraphEdge) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return false, g.failing
	}
	return g.edges[edge], nil
}

func (g *MemoryGraph) ListEdges(_ context.Context) ([]dds.GraphEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing != nil {
		return nil, g.failing
	}
	edges := make([]dds.GraphEdge, 0, len(g.edges))
	for e := range g.edges {
		edges = append(edges, e)
	}
	return edges, nil
}

func (g *MemoryGraph) Close() error { return nil }

var _ dds.GraphStore = (*MemoryGraph)(nil)
