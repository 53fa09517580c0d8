package evo

import (
	"testing"

	"districtevo/internal/model"
)

func TestComputeSignatureCountsTopology(t *testing.T) {
	c := boilerDistrict(4)
	c.AddSubnet(model.Subnet{1, 2, 3})
	c.Set(2, model.Boiler, 0)
	c.Set(3, model.PV, 10)

	sig := ComputeSignature(c)
	if sig.Fingerprint != c.Fingerprint() {
		t.Fatal("signature fingerprint differs from candidate fingerprint")
	}
	s := sig.Summary
	if s.Buildings != 4 || s.Subnets != 1 || s.Connected != 3 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Components[model.Boiler] != 3 || s.Components[model.PV] != 1 {
		t.Fatalf("unexpected component counts: %v", s.Components)
	}
}
