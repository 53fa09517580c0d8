package evo

import (
	"context"
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"

	"districtevo/internal/cluster"
	"districtevo/internal/esys"
	"districtevo/internal/model"
	"districtevo/internal/refdata"
	"districtevo/internal/repair"
)

// LHNSettings are the probabilities of the heating network edits.
type LHNSettings struct {
	MaxDist      float64    `json:"max_dist" yaml:"max_dist"`
	EditProb     float64    `json:"prob_lhn_mut" yaml:"prob_lhn_mut"`
	ModeProb     float64    `json:"prob_lhn" yaml:"prob_lhn"`
	SingleFeeder float64    `json:"single_feeder" yaml:"single_feeder"`
	SingleDelete float64    `json:"single_delete" yaml:"single_delete"`
	SingleGrow   float64    `json:"single_grow" yaml:"single_grow"`
	SingleNode   float64    `json:"single_node" yaml:"single_node"`
	ClosestNode  float64    `json:"closest_node" yaml:"closest_node"`
	NewNodeOff   float64    `json:"new_node_off" yaml:"new_node_off"`
	GrowMethods  [3]float64 `json:"grow_methods" yaml:"grow_methods"`
}

func DefaultLHNSettings() LHNSettings {
	return LHNSettings{
		EditProb:     0.8,
		ModeProb:     0.3,
		SingleFeeder: 0.7,
		SingleDelete: 0.7,
		SingleGrow:   0.5,
		SingleNode:   0.7,
		ClosestNode:  0.7,
		NewNodeOff:   0.9,
		GrowMethods:  [3]float64{0.5, 0.3, 0.2},
	}
}

// Env bundles the collaborators shared by the district operators.
type Env struct {
	Gen     *esys.Generator
	Repair  *repair.Repairer
	Options esys.OptionSet
	LHN     LHNSettings
	Log     *logrus.Logger
}

func (e *Env) logger() *logrus.Logger {
	if e.Log != nil {
		return e.Log
	}
	return e.Gen.Log
}

func (e *Env) skip(op string, subnet int, msg string) {
	e.logger().WithFields(logrus.Fields{
		"operator": op,
		"subnet":   subnet,
	}).Debug(msg)
}

func chance(rng *rand.Rand, p float64) bool {
	return rng.Float64() < p
}

// randInt draws uniformly from [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func sample(rng *rand.Rand, ids []model.BuildingID, k int) []model.BuildingID {
	if k > len(ids) {
		k = len(ids)
	}
	out := make([]model.BuildingID, 0, k)
	for _, i := range rng.Perm(len(ids))[:k] {
		out = append(out, ids[i])
	}
	return out
}

func choose(rng *rand.Rand, ids []model.BuildingID) model.BuildingID {
	return ids[rng.Intn(len(ids))]
}

// pickIndex draws an index by cumulative weight.
func pickIndex(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return len(weights) - 1
	}
	pick := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if pick <= acc {
			return i
		}
	}
	return len(weights) - 1
}

func (e *Env) heatLoadSum(ids []model.BuildingID) float64 {
	total := 0.0
	for _, id := range ids {
		if load, ok := e.Gen.Ref.HeatLoadOf(id); ok {
			total += load
		}
	}
	return total
}

func (e *Env) highestPeak(ids []model.BuildingID, rng *rand.Rand) model.BuildingID {
	best := model.BuildingID(0)
	bestPeak := -1.0
	for _, id := range ids {
		peak, ok := e.Gen.Ref.PeakSpacePowerOf(id)
		if ok && peak > bestPeak {
			best, bestPeak = id, peak
		}
	}
	if bestPeak < 0 {
		return choose(rng, ids)
	}
	return best
}

// singleFeeder installs one feeder among members. With othersOff the
// remaining members lose their own supply and the feeder is sized for the
// heat load of the whole group.
func (e *Env) singleFeeder(c *model.Candidate, members []model.BuildingID, highest, othersOff bool, rng *rand.Rand) {
	feeder := choose(rng, members)
	if highest {
		feeder = e.highestPeak(members, rng)
	}
	floor := 0.0
	if othersOff {
		floor = e.heatLoadSum(members)
	}
	e.Gen.SwitchWith(c, feeder, esys.FeederSwitch(e.Gen.Settings.Tech), floor, rng)
	if othersOff {
		for _, id := range members {
			if id != feeder {
				e.Gen.SetThermalOff(c, id)
			}
		}
	}
}

func (e *Env) multipleFeeders(c *model.Candidate, members []model.BuildingID, othersOff bool, rng *rand.Rand) {
	n := 2
	if len(members) > 2 {
		n = randInt(rng, 2, len(members))
	}
	feeders := sample(rng, members, n)
	chosen := make(map[model.BuildingID]bool, len(feeders))
	for _, id := range feeders {
		chosen[id] = true
		e.Gen.SwitchWith(c, id, esys.FeederSwitch(e.Gen.Settings.Tech), 0, rng)
	}
	if othersOff {
		for _, id := range members {
			if !chosen[id] {
				e.Gen.SetThermalOff(c, id)
			}
		}
	}
}

// feeders supplies a freshly built subnetwork with one or more feeders and
// turns the other members' supply off.
func (e *Env) feeders(c *model.Candidate, members []model.BuildingID, highest bool, rng *rand.Rand) {
	if chance(rng, e.LHN.SingleFeeder) {
		e.singleFeeder(c, members, highest, true, rng)
		return
	}
	e.multipleFeeders(c, members, true, rng)
}

func (e *Env) demote(c *model.Candidate, ids []model.BuildingID, rng *rand.Rand) {
	for _, id := range ids {
		e.Gen.SwitchWith(c, id, e.Options.Demotion, 0, rng)
	}
}

// ConnectAll replaces the topology by one network over every building.
type ConnectAll struct {
	Env  *Env
	Rand *rand.Rand
}

func (o *ConnectAll) Name() string {
	return "connect_all"
}

func (o *ConnectAll) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	ids := c.BuildingIDs()
	if len(ids) < 2 {
		o.Env.skip(o.Name(), -1, "district has fewer than two buildings")
		return Outcome{}, nil
	}
	c.LHN = nil
	c.AddSubnet(ids)
	o.Env.feeders(c, ids, true, o.Rand)
	return Outcome{Steps: []string{o.Name()}}, nil
}

// DeleteNetwork removes one or several subnetworks and demotes their members
// to stand-alone supply.
type DeleteNetwork struct {
	Env  *Env
	Rand *rand.Rand
}

func (o *DeleteNetwork) Name() string {
	return "delete_network"
}

func (o *DeleteNetwork) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	if len(c.LHN) == 0 {
		o.Env.skip(o.Name(), -1, "candidate has no heating network")
		return Outcome{}, nil
	}
	rng := o.Rand
	var removed []model.BuildingID
	if len(c.LHN) == 1 || chance(rng, o.Env.LHN.SingleDelete) {
		removed = c.RemoveSubnet(rng.Intn(len(c.LHN)))
	} else {
		n := 2
		if len(c.LHN) > 2 {
			n = randInt(rng, 2, len(c.LHN))
		}
		idxs := rng.Perm(len(c.LHN))[:n]
		drop := make(map[int]bool, n)
		for _, idx := range idxs {
			drop[idx] = true
		}
		for idx := len(c.LHN) - 1; idx >= 0; idx-- {
			if drop[idx] {
				removed = append(removed, c.RemoveSubnet(idx)...)
			}
		}
	}
	o.Env.demote(c, removed, rng)
	return Outcome{Steps: []string{o.Name()}}, nil
}

type growMethod int

const (
	growGreedy growMethod = iota
	growKMeans
	growMeanShift
)

// GrowSubnetwork builds one or several new subnetworks among the stand-alone
// buildings, either greedily by distance or from a spatial clustering.
type GrowSubnetwork struct {
	Env  *Env
	Rand *rand.Rand
}

func (o *GrowSubnetwork) Name() string {
	return "grow_subnetwork"
}

func (o *GrowSubnetwork) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	rng := o.Rand
	avail := c.StandAloneIDs()
	if len(avail) < 2 {
		o.Env.skip(o.Name(), -1, "fewer than two stand-alone buildings left")
		return Outcome{}, nil
	}
	single := chance(rng, o.Env.LHN.SingleGrow)
	method := growMethod(pickIndex(rng, o.Env.LHN.GrowMethods[:]))

	var groups [][]model.BuildingID
	switch method {
	case growGreedy:
		count := 1
		if !single {
			var ok bool
			if count, ok = groupCount(rng, len(avail)); !ok {
				return Outcome{}, nil
			}
		}
		out := Outcome{}
		for i := 0; i < count; i++ {
			if o.growGreedy(c) {
				out.add(o.Name() + "(greedy)")
			}
		}
		return out, nil
	case growKMeans:
		k, ok := groupCount(rng, len(avail))
		if !ok {
			return Outcome{}, nil
		}
		points, err := clusterPoints(o.Env.Gen.Ref, avail)
		if err != nil {
			return Outcome{}, err
		}
		clusters, err := cluster.KMeans(points, k, rng)
		if err != nil {
			o.Env.skip(o.Name(), -1, "k-means found no clusters: "+err.Error())
			return Outcome{}, nil
		}
		groups = clusters.Sorted()
	case growMeanShift:
		points, err := clusterPoints(o.Env.Gen.Ref, avail)
		if err != nil {
			return Outcome{}, err
		}
		clusters, err := cluster.MeanShift(points)
		if err != nil {
			o.Env.skip(o.Name(), -1, "mean-shift found no clusters: "+err.Error())
			return Outcome{}, nil
		}
		groups = clusters.Sorted()
	}
	if len(groups) == 0 {
		return Outcome{}, nil
	}
	if single {
		k := rng.Intn(len(groups))
		groups = groups[k : k+1]
	}
	label := o.Name() + "(kmeans)"
	if method == growMeanShift {
		label = o.Name() + "(meanshift)"
	}
	for _, members := range groups {
		c.AddSubnet(members)
		o.Env.feeders(c, members, false, rng)
	}
	return Outcome{Steps: []string{label}}, nil
}

// growGreedy seeds a subnetwork at a random stand-alone building and absorbs
// a random number of its nearest stand-alone neighbours.
func (o *GrowSubnetwork) growGreedy(c *model.Candidate) bool {
	rng := o.Rand
	avail := c.StandAloneIDs()
	if len(avail) < 2 {
		return false
	}
	i := rng.Intn(len(avail))
	start := avail[i]
	rest := append(append([]model.BuildingID(nil), avail[:i]...), avail[i+1:]...)
	ranked := o.Env.Gen.Ref.RankByDistance([]model.BuildingID{start}, rest, o.Env.LHN.MaxDist)
	if len(ranked) == 0 {
		o.Env.skip(o.Name(), -1, "no stand-alone building within reach")
		return false
	}
	n := 1
	if len(ranked) > 1 {
		n = 1 + rng.Intn(len(ranked)-1)
	}
	members := make([]model.BuildingID, 0, n+1)
	for _, r := range ranked[:n] {
		members = append(members, r.ID)
	}
	members = append(members, start)
	c.AddSubnet(members)
	o.Env.feeders(c, members, false, rng)
	return true
}

// groupCount derives how many groups to build from the number of available
// buildings: one group per three buildings at most.
func groupCount(rng *rand.Rand, avail int) (int, bool) {
	switch q := avail / 3; {
	case q == 1:
		return 1, true
	case q == 2:
		return 2, true
	case q > 2:
		return randInt(rng, 2, q), true
	default:
		return 0, false
	}
}

func clusterPoints(ref *refdata.Reference, ids []model.BuildingID) ([]cluster.Point, error) {
	raw, err := ref.Points(ids)
	if err != nil {
		return nil, err
	}
	points := make([]cluster.Point, len(ids))
	for i, id := range ids {
		points[i] = cluster.Point{ID: id, X: raw[i][0], Y: raw[i][1]}
	}
	return points, nil
}

func (e *Env) gate(rng *rand.Rand) bool {
	return rng.Float64() <= e.LHN.EditProb
}

func (e *Env) addNode(c *model.Candidate, idx int, rng *rand.Rand) bool {
	if !e.gate(rng) {
		return false
	}
	avail := c.StandAloneIDs()
	if len(avail) == 0 {
		e.skip("add_lhn_node", idx, "no stand-alone building left")
		return false
	}
	ranked := e.Gen.Ref.RankByDistance(c.LHN[idx], avail, e.LHN.MaxDist)
	if len(ranked) == 0 {
		e.skip("add_lhn_node", idx, "no stand-alone building within reach")
		return false
	}
	var added []model.BuildingID
	if chance(rng, e.LHN.SingleNode) {
		pos := 0
		if len(ranked) > 1 && !chance(rng, e.LHN.ClosestNode) {
			pos = randInt(rng, 1, len(ranked)-1)
		}
		added = []model.BuildingID{ranked[pos].ID}
	} else {
		n := len(ranked)
		if n > 2 {
			n = randInt(rng, 2, n)
		}
		for _, r := range ranked[:n] {
			added = append(added, r.ID)
		}
	}
	for _, id := range added {
		c.AppendToSubnet(idx, id)
		if chance(rng, e.LHN.NewNodeOff) {
			e.Gen.SetThermalOff(c, id)
		} else {
			e.Gen.Generate(c, id, esys.FeederOption(e.Gen.Settings.Tech), 0, rng)
		}
	}
	return true
}

func (e *Env) delNode(c *model.Candidate, idx int, rng *rand.Rand) bool {
	if !e.gate(rng) {
		return false
	}
	subnet := c.LHN[idx]
	nodes := len(subnet)
	if nodes <= 2 {
		e.skip("del_lhn_node", idx, "subnetwork has fewer than three nodes")
		return false
	}
	var removed []model.BuildingID
	if nodes == 3 || chance(rng, e.LHN.SingleNode) {
		removed = []model.BuildingID{choose(rng, subnet)}
	} else {
		n := 2
		if nodes > 4 {
			n = randInt(rng, 2, nodes-2)
		}
		removed = sample(rng, subnet, n)
	}
	for _, id := range removed {
		c.RemoveFromSubnet(idx, id)
	}
	e.demote(c, removed, rng)
	return true
}

func (e *Env) addFeeder(c *model.Candidate, idx int, rng *rand.Rand) bool {
	if !e.gate(rng) {
		return false
	}
	unsupplied := c.Unsupplied(idx)
	if len(unsupplied) == 0 {
		e.skip("add_lhn_feeder", idx, "every member already has a supply")
		return false
	}
	if len(unsupplied) == 1 || chance(rng, e.LHN.SingleFeeder) {
		e.singleFeeder(c, unsupplied, false, false, rng)
	} else {
		e.multipleFeeders(c, unsupplied, false, rng)
	}
	return true
}

func (e *Env) delFeeder(c *model.Candidate, idx int, rng *rand.Rand) bool {
	if !e.gate(rng) {
		return false
	}
	suppliers := c.Suppliers(idx)
	if len(suppliers) <= 1 {
		e.skip("del_lhn_feeder", idx, "only one feeder left")
		return false
	}
	var off []model.BuildingID
	if len(suppliers) == 2 || chance(rng, e.LHN.SingleFeeder) {
		off = []model.BuildingID{choose(rng, suppliers)}
	} else {
		n := 2
		if len(suppliers) > 3 {
			n = randInt(rng, 2, len(suppliers)-1)
		}
		off = sample(rng, suppliers, n)
	}
	for _, id := range off {
		e.Gen.SetThermalOff(c, id)
	}
	return true
}

// changeFeeder moves feeders to members without supply: each swap installs a
// new feeder first and then turns an old one off.
func (e *Env) changeFeeder(c *model.Candidate, idx int, rng *rand.Rand) bool {
	if !e.gate(rng) {
		return false
	}
	unsupplied := c.Unsupplied(idx)
	suppliers := c.Suppliers(idx)
	if len(unsupplied) == 0 || len(suppliers) == 0 {
		e.skip("change_lhn_feeder", idx, "no feeder position to change")
		return false
	}
	n := 1
	if len(suppliers) > 1 && len(unsupplied) > 1 && !chance(rng, e.LHN.SingleFeeder) {
		switch {
		case len(suppliers) == 2 && len(unsupplied) == 2:
			n = 2
		case len(suppliers) > 2 && len(unsupplied) > 2:
			n = randInt(rng, 2, min(len(suppliers), len(unsupplied)))
		default:
			e.skip("change_lhn_feeder", idx, "too few feeders or unsupplied members for a batch swap")
			return false
		}
	}
	newFeeders := sample(rng, unsupplied, n)
	oldFeeders := sample(rng, suppliers, n)
	for i := range newFeeders {
		e.singleFeeder(c, newFeeders[i:i+1], false, false, rng)
		e.Gen.SetThermalOff(c, oldFeeders[i])
	}
	return true
}

// subnetOperator applies one subnetwork edit to a randomly chosen subnetwork.
type subnetOperator struct {
	name string
	env  *Env
	rng  *rand.Rand
	edit func(e *Env, c *model.Candidate, idx int, rng *rand.Rand) bool
}

func (o *subnetOperator) Name() string {
	return o.name
}

func (o *subnetOperator) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	if len(c.LHN) == 0 {
		return Outcome{}, errors.New("candidate has no heating network")
	}
	if o.edit(o.env, c, o.rng.Intn(len(c.LHN)), o.rng) {
		return Outcome{Steps: []string{o.name}}, nil
	}
	return Outcome{}, nil
}

func NewAddNode(env *Env, rng *rand.Rand) Operator {
	return &subnetOperator{name: "add_lhn_node", env: env, rng: rng, edit: (*Env).addNode}
}

func NewDelNode(env *Env, rng *rand.Rand) Operator {
	return &subnetOperator{name: "del_lhn_node", env: env, rng: rng, edit: (*Env).delNode}
}

func NewAddFeeder(env *Env, rng *rand.Rand) Operator {
	return &subnetOperator{name: "add_lhn_feeder", env: env, rng: rng, edit: (*Env).addFeeder}
}

func NewDelFeeder(env *Env, rng *rand.Rand) Operator {
	return &subnetOperator{name: "del_lhn_feeder", env: env, rng: rng, edit: (*Env).delFeeder}
}

func NewChangeFeeder(env *Env, rng *rand.Rand) Operator {
	return &subnetOperator{name: "change_lhn_feeder", env: env, rng: rng, edit: (*Env).changeFeeder}
}

// AllModes walks every subnetwork and applies each subnetwork edit with
// probability ModeProb. A subnetwork that gained nodes does not lose any in
// the same walk.
type AllModes struct {
	Env  *Env
	Rand *rand.Rand
}

func (o *AllModes) Name() string {
	return "all_modes"
}

func (o *AllModes) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	if len(c.LHN) == 0 {
		return Outcome{}, errors.New("candidate has no heating network")
	}
	e, rng, p := o.Env, o.Rand, o.Env.LHN.ModeProb
	out := Outcome{}
	for idx := 0; idx < len(c.LHN); idx++ {
		added := false
		if chance(rng, p) && e.addNode(c, idx, rng) {
			added = true
			out.add("add_lhn_node")
		}
		if chance(rng, p) && !added && e.delNode(c, idx, rng) {
			out.add("del_lhn_node")
		}
		if chance(rng, p) && e.addFeeder(c, idx, rng) {
			out.add("add_lhn_feeder")
		}
		if chance(rng, p) && e.delFeeder(c, idx, rng) {
			out.add("del_lhn_feeder")
		}
		if chance(rng, p) && e.changeFeeder(c, idx, rng) {
			out.add("change_lhn_feeder")
		}
	}
	return out, nil
}
