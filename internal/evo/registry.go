package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"districtevo/internal/model"
)

var (
	ErrOperatorExists       = errors.New("operator already registered")
	ErrOperatorNotFound     = errors.New("operator not found")
	ErrOperatorIncompatible = errors.New("operator incompatible with candidate")
)

type CompatibilityFn func(c *model.Candidate) error

type OperatorSpec struct {
	Name       string
	Operator   Operator
	Compatible CompatibilityFn
}

type registeredOperator struct {
	operator   Operator
	compatible CompatibilityFn
}

// Registry resolves mutation operators by name. Configured operator weights
// refer to operators through it.
type Registry struct {
	mu sync.RWMutex
	m  map[string]registeredOperator
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]registeredOperator)}
}

// Register adds an operator under its own name.
func (r *Registry) Register(op Operator) error {
	if op == nil {
		return errors.New("operator is required")
	}
	return r.RegisterWithSpec(OperatorSpec{Name: op.Name(), Operator: op})
}

// RegisterWithSpec adds an operator with an explicit name and compatibility check.
func (r *Registry) RegisterWithSpec(spec OperatorSpec) error {
	if spec.Name == "" {
		return errors.New("operator name is required")
	}
	if spec.Operator == nil {
		return errors.New("operator is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, spec.Name)
	}
	r.m[spec.Name] = registeredOperator{
		operator:   spec.Operator,
		compatible: spec.Compatible,
	}
	return nil
}

// Lookup returns a registered operator without checking compatibility.
func (r *Registry) Lookup(name string) (Operator, error) {
	r.mu.RLock()
	entry, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return entry.operator, nil
}

// Resolve returns a registered operator only if it can act on c.
func (r *Registry) Resolve(name string, c *model.Candidate) (Operator, error) {
	r.mu.RLock()
	entry, ok := r.m[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	if entry.compatible != nil {
		if err := entry.compatible(c); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOperatorIncompatible, name, err)
		}
	}
	return entry.operator, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compatible narrows policy to the entries that can act on c. Entries that
// are not registered are an error.
func (r *Registry) Compatible(policy []WeightedOperator, c *model.Candidate) ([]WeightedOperator, error) {
	out := make([]WeightedOperator, 0, len(policy))
	for _, item := range policy {
		op, err := r.Resolve(item.Name, c)
		if errors.Is(err, ErrOperatorIncompatible) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, WeightedOperator{Name: item.Name, Operator: op, Weight: item.Weight})
	}
	return out, nil
}

// Weighted resolves a name→weight map into a choice list ordered by name.
func (r *Registry) Weighted(weights map[string]float64) ([]WeightedOperator, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]WeightedOperator, 0, len(names))
	for _, name := range names {
		op, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		if weights[name] < 0 {
			return nil, fmt.Errorf("operator weight must be >= 0: %s", name)
		}
		out = append(out, WeightedOperator{Name: name, Operator: op, Weight: weights[name]})
	}
	return out, nil
}

func requireLHN(c *model.Candidate) error {
	if len(c.LHN) == 0 {
		return errors.New("candidate has no heating network")
	}
	return nil
}
