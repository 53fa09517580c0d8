package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version"`
	CodecVersion  int `json:"codec_version" yaml:"codec_version"`
}

// BuildingID identifies a building node of the district.
type BuildingID int

type Component string

const (
	Boiler             Component = "boi"
	CHP                Component = "chp"
	HeatPumpAirWater   Component = "hp_aw"
	HeatPumpWaterWater Component = "hp_ww"
	ElectricHeater     Component = "eh"
	ThermalStorage     Component = "tes"
	PV                 Component = "pv"
	Battery            Component = "bat"
)

var canonicalComponents = []Component{Boiler, CHP, HeatPumpAirWater, HeatPumpWaterWater, ElectricHeater, ThermalStorage, PV, Battery}

// Components lists every component in canonical order.
func Components() []Component {
	return append([]Component(nil), canonicalComponents...)
}

// ThermalComponents lists the devices that count as a building's own
// thermal supply.
func ThermalComponents() []Component {
	return []Component{Boiler, CHP, HeatPumpAirWater, HeatPumpWaterWater, ElectricHeater}
}

// EsysConfig holds the installed capacities of one building. Zero means the
// component is absent. Units: W for boi/chp/hp/eh, litres for tes, m2 for pv
// and J for bat.
type EsysConfig struct {
	Boi  float64 `json:"boi" yaml:"boi" csv:"boi"`
	CHP  float64 `json:"chp" yaml:"chp" csv:"chp"`
	HPAW float64 `json:"hp_aw" yaml:"hp_aw" csv:"hp_aw"`
	HPWW float64 `json:"hp_ww" yaml:"hp_ww" csv:"hp_ww"`
	EH   float64 `json:"eh" yaml:"eh" csv:"eh"`
	TES  float64 `json:"tes" yaml:"tes" csv:"tes"`
	PV   float64 `json:"pv" yaml:"pv" csv:"pv"`
	Bat  float64 `json:"bat" yaml:"bat" csv:"bat"`
}

func (e EsysConfig) Get(c Component) float64 {
	switch c {
	case Boiler:
		return e.Boi
	case CHP:
		return e.CHP
	case HeatPumpAirWater:
		return e.HPAW
	case HeatPumpWaterWater:
		return e.HPWW
	case ElectricHeater:
		return e.EH
	case ThermalStorage:
		return e.TES
	case PV:
		return e.PV
	case Battery:
		return e.Bat
	default:
		return 0
	}
}

// Set writes one capacity and enforces the device exclusions: a heat pump
// clears the other heat pump and the CHP, a CHP clears both heat pumps.
// It returns the components that were cleared as a side effect.
func (e *EsysConfig) Set(c Component, value float64) []Component {
	if value < 0 {
		value = 0
	}
	var cleared []Component
	drop := func(other Component, field *float64) {
		if *field != 0 {
			*field = 0
			cleared = append(cleared, other)
		}
	}
	switch c {
	case Boiler:
		e.Boi = value
	case CHP:
		e.CHP = value
		if value > 0 {
			drop(HeatPumpAirWater, &e.HPAW)
			drop(HeatPumpWaterWater, &e.HPWW)
		}
	case HeatPumpAirWater:
		e.HPAW = value
		if value > 0 {
			drop(HeatPumpWaterWater, &e.HPWW)
			drop(CHP, &e.CHP)
		}
	case HeatPumpWaterWater:
		e.HPWW = value
		if value > 0 {
			drop(HeatPumpAirWater, &e.HPAW)
			drop(CHP, &e.CHP)
		}
	case ElectricHeater:
		e.EH = value
	case ThermalStorage:
		e.TES = value
	case PV:
		e.PV = value
	case Battery:
		e.Bat = value
	}
	return cleared
}

func (e EsysConfig) HasHeatPump() bool {
	return e.HPAW > 0 || e.HPWW > 0
}

// HasThermalSupply reports whether the building has any own heat producer.
func (e EsysConfig) HasThermalSupply() bool {
	return e.Boi > 0 || e.CHP > 0 || e.HPAW > 0 || e.HPWW > 0 || e.EH > 0
}

// CanFeed reports whether the building can feed a heating network.
func (e EsysConfig) CanFeed() bool {
	return e.Boi > 0 || e.CHP > 0 || e.EH > 0
}

// ClearThermal zeroes every thermal field. The battery is dropped as well
// when no PV remains to charge it.
func (e *EsysConfig) ClearThermal() {
	e.Boi = 0
	e.CHP = 0
	e.HPAW = 0
	e.HPWW = 0
	e.EH = 0
	e.TES = 0
	if e.PV == 0 {
		e.Bat = 0
	}
}

// ActiveComponents lists the nonzero components in canonical order.
func (e EsysConfig) ActiveComponents() []Component {
	out := make([]Component, 0, len(canonicalComponents))
	for _, c := range canonicalComponents {
		if e.Get(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Subnet is one local heating network: an ordered list of member buildings.
type Subnet []BuildingID

func (s Subnet) Contains(id BuildingID) bool {
	for _, member := range s {
		if member == id {
			return true
		}
	}
	return false
}

func (s Subnet) Clone() Subnet {
	return append(Subnet(nil), s...)
}

// Topology is the ordered list of disjoint heating subnetworks.
type Topology []Subnet

func (t Topology) Clone() Topology {
	if t == nil {
		return Topology{}
	}
	out := make(Topology, len(t))
	for i, s := range t {
		out[i] = s.Clone()
	}
	return out
}
