package dependencies

import (
	"context"
	"fmt"
	"testing"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/storage/memory"
)

// treeStore builds a complete tree where every node depends on fanout
// children, depth levels deep. The root is "n0".
func treeStore(b *testing.B, fanout, depth int) (*memory.Store, int) {
	b.Helper()
	store := memory.New()
	ctx := context.Background()

	level := []string{"n0"}
	nodes := 1
	for d := 0; d < depth; d++ {
		var next []string
		for _, parent := range level {
			for c := 0; c < fanout; c++ {
				child := fmt.Sprintf("n%d", nodes)
				nodes++
				if _, err := store.InsertEdgeIfAbsent(ctx, edge(child, parent)); err != nil {
					b.Fatalf("Failed to insert edge: %v", err)
				}
				next = append(next, child)
			}
		}
		level = next
	}
	return store, nodes
}

func BenchmarkFullHierarchyTree(b *testing.B) {
	for _, tc := range []struct{ fanout, depth int }{{2, 6}, {4, 5}, {10, 3}} {
		store, nodes := treeStore(b, tc.fanout, tc.depth)
		r := NewResolver(store, nil)

		b.Run(fmt.Sprintf("fanout=%d/depth=%d", tc.fanout, tc.depth), func(b *testing.B) {
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				got, err := r.FullHierarchy(ctx, ids("n0"))
				if err != nil {
					b.Fatalf("FullHierarchy failed: %v", err)
				}
				if len(got) != nodes {
					b.Fatalf("expected %d nodes, got %d", nodes, len(got))
				}
			}
		})
	}
}

func BenchmarkFullHierarchyCycle(b *testing.B) {
	const size = 1000
	store := memory.New()
	ctx := context.Background()
	for i := 0; i < size; i++ {
		from := collab.EntityID(fmt.Sprintf("c%d", i))
		to := collab.EntityID(fmt.Sprintf("c%d", (i+1)%size))
		if _, err := store.InsertEdgeIfAbsent(ctx, collab.DependencyEdge{Dependency: to, Dependent: from}); err != nil {
			b.Fatalf("Failed to insert edge: %v", err)
		}
	}
	r := NewResolver(store, nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.FullHierarchy(ctx, ids("c0")); err != nil {
			b.Fatalf("FullHierarchy failed: %v", err)
		}
	}
}

func BenchmarkGraph(b *testing.B) {
	store, _ := treeStore(b, 4, 4)
	r := NewResolver(store, nil)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Graph(ctx, ids("n0")); err != nil {
			b.Fatalf("Graph failed: %v", err)
		}
	}
}
