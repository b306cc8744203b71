package cluster

import (
	"sort"
	"testing"
)

func TestDensityClustersGroupsSimilarVectors(t *testing.T) {
	// Two tight groups along different axes.
	vecs := [][]float32{
		{1, 0, 0},
		{0.99, 0.1, 0},
		{0, 1, 0},
		{0.05, 0.99, 0},
	}

	clusters := densityClusters(vecs, 0.15, 1)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %v", len(clusters), clusters)
	}
	assertMembers(t, clusters[0], []int{0, 1})
	assertMembers(t, clusters[1], []int{2, 3})
}

func TestDensityClustersSingletons(t *testing.T) {
	// Orthogonal vectors with a tight radius: every point stands alone.
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	clusters := densityClusters(vecs, 0.15, 1)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want 3: %v", len(clusters), clusters)
	}
}

func TestDensityClustersCoverage(t *testing.T) {
	vecs := [][]float32{
		{1, 0}, {0.9, 0.3}, {0, 1}, {0.7, 0.7}, {-1, 0},
	}

	clusters := densityClusters(vecs, 0.2, 1)
	seen := make(map[int]int)
	for _, c := range clusters {
		if len(c) == 0 {
			t.Fatal("empty cluster returned")
		}
		for _, idx := range c {
			seen[idx]++
		}
	}
	if len(seen) != len(vecs) {
		t.Fatalf("clusters cover %d of %d points", len(seen), len(vecs))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Errorf("point %d appears in %d clusters", idx, n)
		}
	}
}

func TestDensityClustersNoiseBecomesSingleton(t *testing.T) {
	// minPts 2: the isolated third point is noise, returned as its own cluster.
	vecs := [][]float32{
		{1, 0},
		{0.995, 0.05},
		{0, 1},
	}

	clusters := densityClusters(vecs, 0.1, 2)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %v", len(clusters), clusters)
	}

	var sizes []int
	for _, c := range clusters {
		sizes = append(sizes, len(c))
	}
	sort.Ints(sizes)
	if sizes[0] != 1 || sizes[1] != 2 {
		t.Errorf("cluster sizes %v, want [1 2]", sizes)
	}
}

func TestDensityClustersEmptyInput(t *testing.T) {
	if got := densityClusters(nil, 0.15, 1); got != nil {
		t.Errorf("densityClusters(nil) = %v, want nil", got)
	}
}

func assertMembers(t *testing.T, got, want []int) {
	t.Helper()
	g := append([]int(nil), got...)
	sort.Ints(g)
	if len(g) != len(want) {
		t.Fatalf("cluster members %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("cluster members %v, want %v", g, want)
		}
	}
}
