package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Candidate is one district-wide configuration: per-building energy systems
// plus the local heating network topology.
type Candidate struct {
	ID        string
	Buildings map[BuildingID]EsysConfig
	LHN       Topology
	Fitness   Fitness
}

func NewCandidate(id string, buildings map[BuildingID]EsysConfig, lhn Topology) *Candidate {
	c := &Candidate{
		ID:        id,
		Buildings: make(map[BuildingID]EsysConfig, len(buildings)),
		LHN:       lhn.Clone(),
	}
	for bid, cfg := range buildings {
		c.Buildings[bid] = cfg
	}
	return c
}

func (c *Candidate) Clone() *Candidate {
	out := NewCandidate(c.ID, c.Buildings, c.LHN)
	out.Fitness = c.Fitness.Clone()
	return out
}

func (c *Candidate) InvalidateFitness() {
	c.Fitness.Invalidate()
}

func (c *Candidate) Config(id BuildingID) (EsysConfig, bool) {
	cfg, ok := c.Buildings[id]
	return cfg, ok
}

// SetConfig replaces the whole energy system of one building.
func (c *Candidate) SetConfig(id BuildingID, cfg EsysConfig) {
	c.Buildings[id] = cfg
	c.InvalidateFitness()
}

func (c *Candidate) Get(id BuildingID, comp Component) float64 {
	return c.Buildings[id].Get(comp)
}

// Set writes one capacity through EsysConfig.Set and reports the components
// cleared by the device exclusions.
func (c *Candidate) Set(id BuildingID, comp Component, value float64) []Component {
	cfg := c.Buildings[id]
	cleared := cfg.Set(comp, value)
	c.Buildings[id] = cfg
	c.InvalidateFitness()
	return cleared
}

// BuildingIDs returns every building id in ascending order.
func (c *Candidate) BuildingIDs() []BuildingID {
	ids := make([]BuildingID, 0, len(c.Buildings))
	for id := range c.Buildings {
		ids = append(ids, id)
	}
	return SortedBuildingIDs(ids)
}

func (c *Candidate) SubnetIndex(id BuildingID) (int, bool) {
	for i, subnet := range c.LHN {
		if subnet.Contains(id) {
			return i, true
		}
	}
	return -1, false
}

func (c *Candidate) IsConnected(id BuildingID) bool {
	_, ok := c.SubnetIndex(id)
	return ok
}

func (c *Candidate) ConnectedIDs() []BuildingID {
	ids := make([]BuildingID, 0)
	for _, subnet := range c.LHN {
		ids = append(ids, subnet...)
	}
	return SortedBuildingIDs(ids)
}

func (c *Candidate) StandAloneIDs() []BuildingID {
	out := make([]BuildingID, 0, len(c.Buildings))
	for _, id := range c.BuildingIDs() {
		if !c.IsConnected(id) {
			out = append(out, id)
		}
	}
	return out
}

func (c *Candidate) HasThermalSupply(id BuildingID) bool {
	return c.Buildings[id].HasThermalSupply()
}

func (c *Candidate) IsFeeder(id BuildingID) bool {
	return c.IsConnected(id) && c.Buildings[id].CanFeed()
}

// Feeders lists the members of subnet idx that can feed the network.
func (c *Candidate) Feeders(idx int) []BuildingID {
	if idx < 0 || idx >= len(c.LHN) {
		return nil
	}
	out := make([]BuildingID, 0)
	for _, id := range c.LHN[idx] {
		if c.Buildings[id].CanFeed() {
			out = append(out, id)
		}
	}
	return out
}

// Suppliers lists the members of subnet idx with any own thermal device.
func (c *Candidate) Suppliers(idx int) []BuildingID {
	if idx < 0 || idx >= len(c.LHN) {
		return nil
	}
	out := make([]BuildingID, 0)
	for _, id := range c.LHN[idx] {
		if c.Buildings[id].HasThermalSupply() {
			out = append(out, id)
		}
	}
	return out
}

// Unsupplied lists the members of subnet idx without any own thermal device.
func (c *Candidate) Unsupplied(idx int) []BuildingID {
	if idx < 0 || idx >= len(c.LHN) {
		return nil
	}
	out := make([]BuildingID, 0)
	for _, id := range c.LHN[idx] {
		if !c.Buildings[id].HasThermalSupply() {
			out = append(out, id)
		}
	}
	return out
}

func (c *Candidate) AddSubnet(members Subnet) {
	c.LHN = append(c.LHN, members.Clone())
	c.InvalidateFitness()
}

func (c *Candidate) RemoveSubnet(idx int) Subnet {
	if idx < 0 || idx >= len(c.LHN) {
		return nil
	}
	removed := c.LHN[idx]
	c.LHN = append(c.LHN[:idx:idx], c.LHN[idx+1:]...)
	c.InvalidateFitness()
	return removed
}

func (c *Candidate) AppendToSubnet(idx int, ids ...BuildingID) {
	if idx < 0 || idx >= len(c.LHN) {
		return
	}
	c.LHN[idx] = append(c.LHN[idx], ids...)
	c.InvalidateFitness()
}

// RemoveFromSubnet drops id from subnet idx and reports whether it was a
// member.
func (c *Candidate) RemoveFromSubnet(idx int, id BuildingID) bool {
	if idx < 0 || idx >= len(c.LHN) {
		return false
	}
	subnet := c.LHN[idx]
	for i, member := range subnet {
		if member == id {
			c.LHN[idx] = append(subnet[:i:i], subnet[i+1:]...)
			c.InvalidateFitness()
			return true
		}
	}
	return false
}

// Fingerprint is a stable hash of the energy systems and the topology.
// Subnet member order and subnet order do not change it.
func (c *Candidate) Fingerprint() string {
	parts := make([]string, 0, len(c.Buildings)+len(c.LHN))
	for _, id := range c.BuildingIDs() {
		cfg := c.Buildings[id]
		values := make([]string, 0, len(canonicalComponents))
		for _, comp := range canonicalComponents {
			values = append(values, strconv.FormatFloat(cfg.Get(comp), 'g', -1, 64))
		}
		parts = append(parts, fmt.Sprintf("b:%d=%s", id, strings.Join(values, ",")))
	}
	nets := make([]string, 0, len(c.LHN))
	for _, subnet := range c.LHN {
		members := SortedBuildingIDs(subnet)
		ids := make([]string, len(members))
		for i, id := range members {
			ids[i] = strconv.Itoa(int(id))
		}
		nets = append(nets, strings.Join(ids, ","))
	}
	sort.Strings(nets)
	for _, net := range nets {
		parts = append(parts, "lhn:"+net)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}
