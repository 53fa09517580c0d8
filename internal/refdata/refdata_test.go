package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"districtevo/internal/model"
)

const sampleDistrict = `
name: sample
buildings:
  - id: 1
    position: {x: 0, y: 0}
    pv_area: 40
    heat_load: 25000
    peak_space_power: 20000
    esys: {boi: 30000}
  - id: 2
    position: {x: 10, y: 0}
    pv_area: 5
    heat_load: 12000
    peak_space_power: 9000
    esys: {boi: 20000}
  - id: 3
    position: {x: 30, y: 40}
    pv_area: 0
    esys: {}
lhn:
  - [1, 2]
`

func TestNewCatalogShape(t *testing.T) {
	cat := NewCatalog(DefaultMaxima())
	require.NoError(t, cat.Validate())

	boi := cat.Sizes(model.Boiler)
	require.Equal(t, 10000.0, boi[0])
	require.Equal(t, 1000000.0, boi[len(boi)-1])

	chp := cat.Sizes(model.CHP)
	require.Equal(t, []float64{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000, 10000, 15000}, chp[:11])
	require.Equal(t, 50000.0, chp[len(chp)-1])

	bat := cat.Sizes(model.Battery)
	require.Len(t, bat, 20)
	require.Equal(t, float64(JoulePerKWh), bat[0])
}

func TestCatalogValidateRejectsUnsorted(t *testing.T) {
	cat := NewCatalog(DefaultMaxima())
	cat[model.ThermalStorage] = []float64{200, 100}
	require.ErrorIs(t, cat.Validate(), ErrMalformedCatalog)

	delete(cat, model.ThermalStorage)
	require.ErrorIs(t, cat.Validate(), ErrMalformedCatalog)
}

func TestSizeFiltersFallBack(t *testing.T) {
	values := []float64{10, 20, 30}

	out, ok := AtLeast(values, 15)
	require.True(t, ok)
	require.Equal(t, []float64{20, 30}, out)

	out, ok = AtLeast(values, 100)
	require.False(t, ok)
	require.Equal(t, []float64{30}, out)

	out, ok = AtMost(values, 20)
	require.True(t, ok)
	require.Equal(t, []float64{10, 20}, out)

	out, ok = AtMost(values, 1)
	require.False(t, ok)
	require.Equal(t, []float64{10}, out)
}

func TestPVChoicesAndClamp(t *testing.T) {
	require.Equal(t, []float64{8, 9, 10}, PVChoices(8, 1, 10.5))
	require.Empty(t, PVChoices(8, 1, 7.9))

	require.Equal(t, 10.0, ClampPV(25, 8, 1, 10.5))
	require.Equal(t, 0.0, ClampPV(25, 8, 1, 5))
	require.Equal(t, 4.0, ClampPV(4, 8, 1, 5))
}

func TestParseDistrictAndReference(t *testing.T) {
	d, err := ParseDistrict([]byte(sampleDistrict), "yaml")
	require.NoError(t, err)
	require.Equal(t, []model.BuildingID{1, 2, 3}, d.BuildingIDs())

	ref, err := d.Reference()
	require.NoError(t, err)
	require.Equal(t, 40.0, ref.PVAreaLimit[1])
	load, ok := ref.HeatLoadOf(2)
	require.True(t, ok)
	require.Equal(t, 12000.0, load)
	_, ok = ref.HeatLoadOf(3)
	require.False(t, ok)

	c := d.InitialCandidate("init")
	require.Equal(t, model.Topology{{1, 2}}, c.LHN)
	require.Equal(t, 30000.0, c.Get(1, model.Boiler))
}

func TestParseDistrictRejectsOverlappingNetworks(t *testing.T) {
	_, err := ParseDistrict([]byte(`{"buildings":[{"id":1},{"id":2}],"lhn":[[1,2],[2,1]]}`), "json")
	require.Error(t, err)
}

func TestLoadDistrictJSONByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "district.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"buildings":[{"id":7,"pv_area":12,"position":{"x":1,"y":2}}]}`), 0o644))

	d, err := LoadDistrict(path)
	require.NoError(t, err)
	require.Len(t, d.Buildings, 1)
	require.Equal(t, Position{X: 1, Y: 2}, d.Buildings[0].Position)
}

func TestRankByDistance(t *testing.T) {
	ref := &Reference{Positions: map[model.BuildingID]Position{
		1: {X: 0, Y: 0},
		2: {X: 3, Y: 4},
		3: {X: 1, Y: 0},
		4: {X: 100, Y: 0},
	}}

	ranked := ref.RankByDistance([]model.BuildingID{1}, []model.BuildingID{2, 3, 4}, 0)
	require.Len(t, ranked, 3)
	require.Equal(t, model.BuildingID(3), ranked[0].ID)
	require.Equal(t, model.BuildingID(2), ranked[1].ID)
	require.InDelta(t, 5.0, ranked[1].Distance, 1e-9)

	capped := ref.RankByDistance([]model.BuildingID{1}, []model.BuildingID{2, 3, 4}, 5)
	require.Len(t, capped, 1)

	multi := ref.RankByDistance([]model.BuildingID{1, 4}, []model.BuildingID{2}, 0)
	require.InDelta(t, 5.0, multi[0].Distance, 1e-9)
}
