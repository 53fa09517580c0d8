package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"districtevo/internal/model"
)

// BuildingSpec is one building entry of a district file.
type BuildingSpec struct {
	ID             model.BuildingID `json:"id" yaml:"id"`
	Position       Position         `json:"position" yaml:"position"`
	PVArea         float64          `json:"pv_area" yaml:"pv_area"`
	HeatLoad       *float64         `json:"heat_load,omitempty" yaml:"heat_load,omitempty"`
	PeakSpacePower *float64         `json:"peak_space_power,omitempty" yaml:"peak_space_power,omitempty"`
	Esys           model.EsysConfig `json:"esys" yaml:"esys"`
}

// District is the initial state of a city district plus its sizing bounds.
type District struct {
	Name              string               `json:"name" yaml:"name"`
	Buildings         []BuildingSpec       `json:"buildings" yaml:"buildings"`
	LHN               [][]model.BuildingID `json:"lhn,omitempty" yaml:"lhn,omitempty"`
	Maxima            *Maxima              `json:"maxima,omitempty" yaml:"maxima,omitempty"`
	ScaleMaximaToPeak bool                 `json:"scale_maxima_to_peak" yaml:"scale_maxima_to_peak"`
}

// LoadDistrict reads a district file. Files ending in .json are decoded as
// JSON, everything else as YAML.
func LoadDistrict(path string) (District, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return District{}, fmt.Errorf("reading district file: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return ParseDistrict(data, format)
}

func ParseDistrict(data []byte, format string) (District, error) {
	var d District
	switch format {
	case "json":
		if err := json.Unmarshal(data, &d); err != nil {
			return District{}, fmt.Errorf("parsing district file: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return District{}, fmt.Errorf("parsing district file: %w", err)
		}
	default:
		return District{}, fmt.Errorf("unsupported district format: %s", format)
	}
	if err := d.validate(); err != nil {
		return District{}, err
	}
	return d, nil
}

func (d District) validate() error {
	if len(d.Buildings) == 0 {
		return fmt.Errorf("district has no buildings")
	}
	seen := make(map[model.BuildingID]struct{}, len(d.Buildings))
	for _, b := range d.Buildings {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate building id %d", b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.PVArea < 0 {
			return fmt.Errorf("building %d: pv area must be >= 0", b.ID)
		}
	}
	member := make(map[model.BuildingID]struct{})
	for i, subnet := range d.LHN {
		for _, id := range subnet {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("lhn %d references unknown building %d", i, id)
			}
			if _, dup := member[id]; dup {
				return fmt.Errorf("building %d belongs to more than one lhn", id)
			}
			member[id] = struct{}{}
		}
	}
	return nil
}

func (d District) BuildingIDs() []model.BuildingID {
	ids := make([]model.BuildingID, 0, len(d.Buildings))
	for _, b := range d.Buildings {
		ids = append(ids, b.ID)
	}
	return model.SortedBuildingIDs(ids)
}

// Reference builds the read-only lookup tables of the district.
func (d District) Reference() (*Reference, error) {
	ref := &Reference{
		PVAreaLimit: make(map[model.BuildingID]float64, len(d.Buildings)),
		Positions:   make(map[model.BuildingID]Position, len(d.Buildings)),
	}
	for _, b := range d.Buildings {
		ref.PVAreaLimit[b.ID] = b.PVArea
		ref.Positions[b.ID] = b.Position
		if b.HeatLoad != nil {
			if ref.HeatLoad == nil {
				ref.HeatLoad = make(map[model.BuildingID]float64, len(d.Buildings))
			}
			ref.HeatLoad[b.ID] = *b.HeatLoad
		}
		if b.PeakSpacePower != nil {
			if ref.PeakSpacePower == nil {
				ref.PeakSpacePower = make(map[model.BuildingID]float64, len(d.Buildings))
			}
			ref.PeakSpacePower[b.ID] = *b.PeakSpacePower
		}
	}
	maxima := DefaultMaxima()
	if d.Maxima != nil {
		maxima = *d.Maxima
	}
	if d.ScaleMaximaToPeak {
		maxima = maxima.ScaleToPeak(ref.TotalPeakSpacePower())
	}
	ref.Catalog = NewCatalog(maxima)
	if err := ref.Validate(d.BuildingIDs()); err != nil {
		return nil, err
	}
	return ref, nil
}

// InitialCandidate returns the district's current state as a candidate.
func (d District) InitialCandidate(id string) *model.Candidate {
	buildings := make(map[model.BuildingID]model.EsysConfig, len(d.Buildings))
	for _, b := range d.Buildings {
		buildings[b.ID] = b.Esys
	}
	lhn := make(model.Topology, 0, len(d.LHN))
	for _, subnet := range d.LHN {
		lhn = append(lhn, model.Subnet(subnet))
	}
	return model.NewCandidate(id, buildings, lhn)
}
