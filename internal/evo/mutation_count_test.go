package evo

import "testing"

func TestMutationCountPolicies(t *testing.T) {
	c := boilerDistrict(6)
	rng := newRand(1)

	if n, err := (ConstMutationCount{Count: 2}).MutationCount(c, 0, rng); err != nil || n != 2 {
		t.Fatalf("const: n=%d err=%v", n, err)
	}
	if _, err := (ConstMutationCount{}).MutationCount(c, 0, rng); err == nil {
		t.Fatal("expected const count error")
	}
	if n, err := (BuildingLinearMutationCount{Multiplier: 0.5, MaxCount: 2}).MutationCount(c, 0, rng); err != nil || n != 2 {
		t.Fatalf("linear: n=%d err=%v", n, err)
	}
	for i := 0; i < 50; i++ {
		n, err := (RandomMutationCount{MaxCount: 3}).MutationCount(c, 0, rng)
		if err != nil || n < 1 || n > 3 {
			t.Fatalf("random: n=%d err=%v", n, err)
		}
	}
}

func TestParseMutationCount(t *testing.T) {
	p, err := ParseMutationCount("", 0, 0)
	if err != nil || p.Name() != "const" {
		t.Fatalf("default policy: %v %v", p, err)
	}
	if p, err = ParseMutationCount("building_linear", 0.2, 4); err != nil || p.Name() != "building_linear" {
		t.Fatalf("linear policy: %v %v", p, err)
	}
	if _, err := ParseMutationCount("exponential", 1, 1); err == nil {
		t.Fatal("expected unsupported policy error")
	}
}
