// Package dependencies resolves the transitive hierarchy of entities linked
// by dependency edges.
//
// Resolver.FullHierarchy walks the edge set breadth first from a list of
// seeds and returns every reachable entity exactly once. Seeds lead the
// result in the order supplied; cycles and self-loops terminate because no
// entity is expanded twice. Resolver.Graph returns the same walk as a
// DependencyGraph for cycle detection and topological ordering.
//
//	resolver := dependencies.NewResolver(repo, metrics)
//	ids, err := resolver.FullHierarchy(ctx, []collab.EntityID{"P2"})
//	// ids == [P2 P1] when P2 depends on P1
//
// The walk follows dependent -> dependency by default. WithDirection
// selects dependents or both sides instead.
package dependencies
