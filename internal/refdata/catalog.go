package refdata

import (
	"errors"
	"fmt"
	"math"

	"districtevo/internal/model"
)

// JoulePerKWh converts battery capacities from kWh to J.
const JoulePerKWh = 3600 * 1000

var ErrMalformedCatalog = errors.New("malformed size catalog")

// SizeCatalog maps each sized component to its ascending list of allowed
// capacities. PV is sized from the roof area range, not from the catalog.
type SizeCatalog map[model.Component][]float64

// Maxima are the upper bounds used to build the default catalog.
type Maxima struct {
	Boiler    float64 `json:"boiler" yaml:"boiler"`
	Storage   float64 `json:"storage" yaml:"storage"`
	CHP       float64 `json:"chp" yaml:"chp"`
	HPAW      float64 `json:"hp_aw" yaml:"hp_aw"`
	HPWW      float64 `json:"hp_ww" yaml:"hp_ww"`
	Heater    float64 `json:"eh" yaml:"eh"`
	BatteryKW float64 `json:"bat_kwh" yaml:"bat_kwh"`
}

func DefaultMaxima() Maxima {
	return Maxima{
		Boiler:    1000000,
		Storage:   10000,
		CHP:       50000,
		HPAW:      50000,
		HPWW:      50000,
		Heater:    50000,
		BatteryKW: 20,
	}
}

// ScaleToPeak derives the boiler and CHP maxima from the district's peak
// space heating power: five times the rounded peak for boilers and half of it
// for CHP units.
func (m Maxima) ScaleToPeak(peakSpacePower float64) Maxima {
	if peakSpacePower <= 0 {
		return m
	}
	m.Boiler = 5 * math.Round(peakSpacePower/10000) * 10000
	m.CHP = math.Round(peakSpacePower/2/10000) * 10000
	if m.Boiler < 10000 {
		m.Boiler = 10000
	}
	if m.CHP < 10000 {
		m.CHP = 10000
	}
	return m
}

// NewCatalog builds the discrete size lists: boilers in 10 kW steps, storage
// in 100 l steps, CHP in 1 kW steps below 10 kW and 5 kW steps above, heat
// pumps and heaters in 5 kW steps, batteries in 1 kWh steps.
func NewCatalog(m Maxima) SizeCatalog {
	chp := steps(1000, 9000, 1000)
	chp = append(chp, steps(10000, m.CHP, 5000)...)
	return SizeCatalog{
		model.Boiler:             steps(10000, m.Boiler, 10000),
		model.ThermalStorage:     steps(100, m.Storage, 100),
		model.CHP:                chp,
		model.HeatPumpAirWater:   steps(5000, m.HPAW, 5000),
		model.HeatPumpWaterWater: steps(5000, m.HPWW, 5000),
		model.ElectricHeater:     steps(5000, m.Heater, 5000),
		model.Battery:            steps(JoulePerKWh, m.BatteryKW*JoulePerKWh, JoulePerKWh),
	}
}

func steps(from, to, step float64) []float64 {
	out := make([]float64, 0)
	for v := from; v <= to+step/1e6; v += step {
		out = append(out, v)
	}
	return out
}

// Validate checks that every sized component has a nonempty, strictly
// ascending list of positive capacities.
func (c SizeCatalog) Validate() error {
	for _, comp := range model.Components() {
		if comp == model.PV {
			continue
		}
		values, ok := c[comp]
		if !ok || len(values) == 0 {
			return fmt.Errorf("%w: no sizes for %s", ErrMalformedCatalog, comp)
		}
		for i, v := range values {
			if v <= 0 {
				return fmt.Errorf("%w: %s size %v must be > 0", ErrMalformedCatalog, comp, v)
			}
			if i > 0 && v <= values[i-1] {
				return fmt.Errorf("%w: %s sizes must be strictly ascending", ErrMalformedCatalog, comp)
			}
		}
	}
	return nil
}

func (c SizeCatalog) Sizes(comp model.Component) []float64 {
	return c[comp]
}
