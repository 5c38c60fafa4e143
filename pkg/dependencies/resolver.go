package dependencies

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Option adjusts a single resolution
type Option func(*options)

type options struct {
	direction storage.Direction
	maxNodes  int
}

// WithDirection selects which side of each edge the walk follows
func WithDirection(d storage.Direction) Option {
	return func(o *options) { o.direction = d }
}

// WithMaxNodes caps the result size; 0 means unlimited
func WithMaxNodes(n int) Option {
	return func(o *options) { o.maxNodes = n }
}

// Resolver computes transitive closures over the dependency edge set.
// It only reads from storage and is safe for concurrent use.
type Resolver struct {
	edges    storage.EdgeReader
	defaults options
	metrics  *observability.Metrics
	group    singleflight.Group
}

// NewResolver creates a resolver. opts become the defaults for every call
// and can be overridden per call.
func NewResolver(edges storage.EdgeReader, metrics *observability.Metrics, opts ...Option) *Resolver {
	r := &Resolver{
		edges:   edges,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(&r.defaults)
	}
	return r
}

func (r *Resolver) options(opts []Option) options {
	o := r.defaults
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FullHierarchy returns every entity reachable from seeds. Seeds come
// first in the order supplied (duplicates keep their first position),
// followed by newly discovered entities in breadth-first order, each
// node's edges taken in insertion order. Entities are never expanded
// twice, so cycles terminate. Unknown seeds are returned as isolated
// nodes.
func (r *Resolver) FullHierarchy(ctx context.Context, seeds []collab.EntityID, opts ...Option) ([]collab.EntityID, error) {
	const op = "dependencies.FullHierarchy"

	o := r.options(opts)
	seeds, err := normalizeSeeds(op, seeds)
	if err != nil {
		r.metrics.ObserveHierarchy(o.direction.String(), 0, err)
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.Int("collab.seeds", len(seeds)),
		attribute.String("collab.direction", o.direction.String()),
	)

	if err := ctx.Err(); err != nil {
		err = collab.Wrap(collab.KindInternal, op, err)
		r.metrics.ObserveHierarchy(o.direction.String(), 0, err)
		return nil, err
	}

	// The shared walk outlives any single caller; each caller still stops
	// waiting when its own context ends.
	walkCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey(seeds, o), func() (interface{}, error) {
		return r.walk(walkCtx, op, seeds, o, nil)
	})

	var (
		v      interface{}
		shared bool
	)
	select {
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	case <-ctx.Done():
		err = collab.Wrap(collab.KindInternal, op, ctx.Err())
	}
	r.metrics.ObserveHierarchy(o.direction.String(), resultLen(v), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := v.([]collab.EntityID)
	span.SetAttributes(
		attribute.Int("collab.hierarchy_size", len(result)),
		attribute.Bool("collab.shared", shared),
	)

	// The slice may be shared with other callers of the same flight
	out := make([]collab.EntityID, len(result))
	copy(out, result)
	return out, nil
}

// Graph returns the sub-graph reached from seeds: the FullHierarchy nodes
// in the same order plus every edge the walk traversed.
func (r *Resolver) Graph(ctx context.Context, seeds []collab.EntityID, opts ...Option) (*DependencyGraph, error) {
	const op = "dependencies.Graph"

	o := r.options(opts)
	seeds, err := normalizeSeeds(op, seeds)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, op)
	defer span.End()

	graph := NewDependencyGraph()
	nodes, err := r.walk(ctx, op, seeds, o, graph.AddEdge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, id := range nodes {
		graph.AddNode(id)
	}
	graph.seeds = seeds
	return graph, nil
}

// walk is a breadth-first traversal. The result slice doubles as the queue.
func (r *Resolver) walk(ctx context.Context, op string, seeds []collab.EntityID, o options, onEdge func(collab.DependencyEdge)) ([]collab.EntityID, error) {
	if o.maxNodes > 0 && len(seeds) > o.maxNodes {
		return nil, tooLarge(op, o.maxNodes)
	}

	visited := make(map[collab.EntityID]struct{}, len(seeds))
	order := make([]collab.EntityID, 0, len(seeds))
	for _, id := range seeds {
		visited[id] = struct{}{}
		order = append(order, id)
	}

	for i := 0; i < len(order); i++ {
		if err := ctx.Err(); err != nil {
			return nil, collab.Wrap(collab.KindInternal, op, err)
		}

		current := order[i]
		edges, err := r.edges.EdgesFrom(ctx, current, o.direction)
		if err != nil {
			return nil, collab.Wrap(collab.KindInternal, op, fmt.Errorf("failed to read edges of %s: %w", current, err))
		}

		for _, edge := range edges {
			if onEdge != nil {
				onEdge(edge)
			}
			next := neighbor(edge, current, o.direction)
			if _, seen := visited[next]; seen {
				continue
			}
			if o.maxNodes > 0 && len(order) >= o.maxNodes {
				return nil, tooLarge(op, o.maxNodes)
			}
			visited[next] = struct{}{}
			order = append(order, next)
		}
	}

	return order, nil
}

func neighbor(edge collab.DependencyEdge, from collab.EntityID, dir storage.Direction) collab.EntityID {
	switch dir {
	case storage.DirectionDependencies:
		return edge.Dependency
	case storage.DirectionDependents:
		return edge.Dependent
	default:
		if edge.Dependent == from {
			return edge.Dependency
		}
		return edge.Dependent
	}
}

func normalizeSeeds(op string, seeds []collab.EntityID) ([]collab.EntityID, error) {
	if len(seeds) == 0 {
		return nil, collab.E(collab.KindInvalidArgument, op, "at least one seed id is required")
	}

	seen := make(map[collab.EntityID]struct{}, len(seeds))
	out := make([]collab.EntityID, 0, len(seeds))
	for _, id := range seeds {
		if id == "" {
			return nil, collab.E(collab.KindInvalidArgument, op, "seed ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func tooLarge(op string, max int) error {
	return collab.E(collab.KindInvalidArgument, op, fmt.Sprintf("hierarchy exceeds %d entities", max))
}

// flightKey identifies identical requests. Ids are length prefixed so no
// two distinct seed lists share a key.
func flightKey(seeds []collab.EntityID, o options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d", o.direction, o.maxNodes)
	for _, id := range seeds {
		fmt.Fprintf(&b, "/%d:%s", len(id), id)
	}
	return b.String()
}

func resultLen(v interface{}) int {
	if ids, ok := v.([]collab.EntityID); ok {
		return len(ids)
	}
	return 0
}
