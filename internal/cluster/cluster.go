package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"districtevo/internal/model"
)

var ErrNoClusters = errors.New("clustering found no clusters")

const (
	kmeansRestarts    = 10
	kmeansIterations  = 100
	meanShiftMaxIter  = 300
	bandwidthQuantile = 0.3
)

// Point is a building position.
type Point struct {
	ID model.BuildingID
	X  float64
	Y  float64
}

func (p Point) vec() []float64 {
	return []float64{p.X, p.Y}
}

// Clusters maps a cluster number to its member buildings. Numbers run from
// 0 without gaps and every cluster holds at least two buildings.
type Clusters map[int][]model.BuildingID

// Sorted returns the clusters ordered by cluster number.
func (c Clusters) Sorted() [][]model.BuildingID {
	keys := make([]int, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([][]model.BuildingID, 0, len(keys))
	for _, k := range keys {
		out = append(out, c[k])
	}
	return out
}

// KMeans partitions points into k groups with Lloyd's algorithm. A run that
// leaves a cluster empty is restarted from new random centers up to ten
// times.
func KMeans(points []Point, k int, rng *rand.Rand) (Clusters, error) {
	if k <= 0 {
		return nil, fmt.Errorf("cluster count must be > 0")
	}
	if len(points) < k {
		return nil, fmt.Errorf("%w: %d points for %d clusters", ErrNoClusters, len(points), k)
	}
	for try := 0; try <= kmeansRestarts; try++ {
		labels, ok := lloyd(points, k, rng)
		if !ok {
			continue
		}
		return finalize(points, labels), nil
	}
	return nil, fmt.Errorf("%w: k-means left empty clusters after %d restarts", ErrNoClusters, kmeansRestarts)
}

func lloyd(points []Point, k int, rng *rand.Rand) ([]int, bool) {
	centers := make([][]float64, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centers[i] = points[idx].vec()
	}
	labels := make([]int, len(points))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := iter == 0
		for i, p := range points {
			if best := nearest(p.vec(), centers); best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		xs := make([][]float64, k)
		ys := make([][]float64, k)
		for i, p := range points {
			xs[labels[i]] = append(xs[labels[i]], p.X)
			ys[labels[i]] = append(ys[labels[i]], p.Y)
		}
		for c := range centers {
			if len(xs[c]) == 0 {
				return nil, false
			}
			centers[c] = []float64{stat.Mean(xs[c], nil), stat.Mean(ys[c], nil)}
		}
		if !changed {
			break
		}
	}
	return labels, true
}

func nearest(v []float64, centers [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centers {
		if d := floats.Distance(v, c, 2); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// MeanShift groups points around the density peaks of a flat kernel whose
// bandwidth is estimated from the data.
func MeanShift(points []Point) (Clusters, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrNoClusters)
	}
	bandwidth := EstimateBandwidth(points)
	if bandwidth <= 0 {
		labels := make([]int, len(points))
		return finalize(points, labels), nil
	}

	type peak struct {
		center []float64
		size   int
	}
	peaks := make([]peak, 0, len(points))
	for _, seed := range points {
		center := seed.vec()
		for iter := 0; iter < meanShiftMaxIter; iter++ {
			var xs, ys []float64
			for _, p := range points {
				if floats.Distance(center, p.vec(), 2) <= bandwidth {
					xs = append(xs, p.X)
					ys = append(ys, p.Y)
				}
			}
			if len(xs) == 0 {
				break
			}
			next := []float64{stat.Mean(xs, nil), stat.Mean(ys, nil)}
			shift := floats.Distance(center, next, 2)
			center = next
			if shift < 1e-3*bandwidth {
				break
			}
		}
		size := 0
		for _, p := range points {
			if floats.Distance(center, p.vec(), 2) <= bandwidth {
				size++
			}
		}
		peaks = append(peaks, peak{center: center, size: size})
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].size > peaks[j].size })

	centers := make([][]float64, 0, len(peaks))
	for _, p := range peaks {
		unique := true
		for _, c := range centers {
			if floats.Distance(p.center, c, 2) < bandwidth {
				unique = false
				break
			}
		}
		if unique {
			centers = append(centers, p.center)
		}
	}
	labels := make([]int, len(points))
	for i, p := range points {
		labels[i] = nearest(p.vec(), centers)
	}
	return finalize(points, labels), nil
}

// EstimateBandwidth is the mean distance of every point to its nearest
// neighbours within the 0.3 quantile of the point set.
func EstimateBandwidth(points []Point) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	k := int(float64(n) * bandwidthQuantile)
	if k < 1 {
		k = 1
	}
	dists := make([]float64, 0, n)
	for _, p := range points {
		row := make([]float64, 0, n-1)
		for _, q := range points {
			if p.ID == q.ID {
				continue
			}
			row = append(row, floats.Distance(p.vec(), q.vec(), 2))
		}
		sort.Float64s(row)
		if k > len(row) {
			k = len(row)
		}
		dists = append(dists, row[k-1])
	}
	return stat.Mean(dists, nil)
}

// finalize groups points by label, drops single-building clusters and
// renumbers the rest from 0 in label order.
func finalize(points []Point, labels []int) Clusters {
	groups := make(map[int][]model.BuildingID)
	for i, p := range points {
		groups[labels[i]] = append(groups[labels[i]], p.ID)
	}
	keys := make([]int, 0, len(groups))
	for k, members := range groups {
		if len(members) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	out := make(Clusters, len(keys))
	for i, k := range keys {
		out[i] = model.SortedBuildingIDs(groups[k])
	}
	return out
}
