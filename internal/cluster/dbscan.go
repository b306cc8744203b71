package cluster

import "github.com/mmorrisj/SoftPower-Analytics-sub002/internal/embed"

const (
	labelUnvisited = 0
	labelNoise     = -1
)

// densityClusters runs DBSCAN over the vectors using cosine distance
// (1 − cosine similarity) and returns index groups. Points the density pass
// leaves as noise come back as clusters of one: a singleton event is valid,
// never dropped.
func densityClusters(vecs [][]float32, eps float64, minPts int) [][]int {
	n := len(vecs)
	if n == 0 {
		return nil
	}
	if minPts < 1 {
		minPts = 1
	}

	labels := make([]int, n) // 0 unvisited, -1 noise, >0 cluster id
	next := 0

	for i := 0; i < n; i++ {
		if labels[i] != labelUnvisited {
			continue
		}
		neighbors := regionQuery(vecs, i, eps)
		if len(neighbors) < minPts {
			labels[i] = labelNoise
			continue
		}
		next++
		expandCluster(vecs, labels, i, neighbors, next, eps, minPts)
	}

	byID := make(map[int][]int)
	var order []int
	for i, label := range labels {
		if label == labelNoise {
			// Cluster-of-one.
			next++
			label = next
		}
		if _, ok := byID[label]; !ok {
			order = append(order, label)
		}
		byID[label] = append(byID[label], i)
	}

	clusters := make([][]int, 0, len(order))
	for _, id := range order {
		clusters = append(clusters, byID[id])
	}
	return clusters
}

func expandCluster(vecs [][]float32, labels []int, seed int, neighbors []int, id int, eps float64, minPts int) {
	labels[seed] = id
	queue := append([]int(nil), neighbors...)

	for qi := 0; qi < len(queue); qi++ {
		p := queue[qi]
		if labels[p] == labelNoise {
			labels[p] = id // border point
		}
		if labels[p] != labelUnvisited {
			continue
		}
		labels[p] = id

		more := regionQuery(vecs, p, eps)
		if len(more) >= minPts {
			queue = append(queue, more...)
		}
	}
}

// regionQuery returns all points within eps cosine distance of point i,
// including i itself.
func regionQuery(vecs [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range vecs {
		if 1-embed.Cosine(vecs[i], vecs[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
