package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"districtevo/internal/model"
)

func blobs() []Point {
	return []Point{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: 1, Y: 0},
		{ID: 3, X: 0, Y: 1},
		{ID: 4, X: 100, Y: 100},
		{ID: 5, X: 101, Y: 100},
		{ID: 6, X: 100, Y: 101},
		{ID: 7, X: 500, Y: -300},
	}
}

func TestKMeansShape(t *testing.T) {
	clusters, err := KMeans(blobs(), 3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	seen := map[model.BuildingID]bool{}
	for i := 0; i < len(clusters); i++ {
		members, ok := clusters[i]
		require.True(t, ok, "cluster numbers must run from 0 without gaps")
		require.GreaterOrEqual(t, len(members), 2)
		for _, id := range members {
			require.False(t, seen[id], "building %d in two clusters", id)
			seen[id] = true
		}
	}
}

func TestFinalizeDropsSingletonsAndRenumbers(t *testing.T) {
	points := blobs()
	labels := []int{4, 4, 4, 9, 9, 9, 2}
	clusters := finalize(points, labels)
	require.Len(t, clusters, 2)
	require.Equal(t, []model.BuildingID{1, 2, 3}, clusters[0])
	require.Equal(t, []model.BuildingID{4, 5, 6}, clusters[1])
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	clusters, err := KMeans(blobs()[:6], 2, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	require.Equal(t, [][]model.BuildingID{{1, 2, 3}, {4, 5, 6}}, sortedGroups(clusters))
}

func TestKMeansRejectsTooFewPoints(t *testing.T) {
	_, err := KMeans(blobs()[:2], 3, rand.New(rand.NewSource(3)))
	require.ErrorIs(t, err, ErrNoClusters)

	_, err = KMeans(blobs(), 0, rand.New(rand.NewSource(3)))
	require.Error(t, err)
}

func TestMeanShiftFindsDensePeaks(t *testing.T) {
	clusters, err := MeanShift(blobs())
	require.NoError(t, err)
	require.Equal(t, [][]model.BuildingID{{1, 2, 3}, {4, 5, 6}}, sortedGroups(clusters))
}

func TestEstimateBandwidth(t *testing.T) {
	require.Zero(t, EstimateBandwidth([]Point{{ID: 1}}))
	require.InDelta(t, 1.0, EstimateBandwidth([]Point{{ID: 1}, {ID: 2, X: 1}}), 1e-9)
}

func sortedGroups(c Clusters) [][]model.BuildingID {
	groups := c.Sorted()
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			if groups[j][0] < groups[i][0] {
				groups[i], groups[j] = groups[j], groups[i]
			}
		}
	}
	return groups
}
