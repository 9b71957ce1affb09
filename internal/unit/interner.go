package unit

import (
	"fmt"
	"sync"
)

// Interner is the per-run canonicalization table for units.
type Interner struct {
	mu    sync.Mutex
	units map[Key]*Unit
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{units: make(map[Key]*Unit)}
}

// Intern returns the canonical unit for the spec, creating it on first use.
// Concurrent calls with identity-equal specs return the same pointer.
func (i *Interner) Intern(spec Spec) *Unit {
	if spec.Package == nil {
		panic("unit: Intern called without a package")
	}
	key := spec.Key()

	i.mu.Lock()
	defer i.mu.Unlock()

	if u, ok := i.units[key]; ok {
		return u
	}
	u := &Unit{
		key:         key,
		pkg:         spec.Package,
		target:      spec.Target,
		fingerprint: fingerprint(key),
	}
	i.units[key] = u
	return u
}

// Lookup returns the unit interned under key, if any.
func (i *Interner) Lookup(key Key) (*Unit, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	u, ok := i.units[key]
	return u, ok
}

// Len returns the number of distinct units interned so far.
func (i *Interner) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.units)
}

// String implements fmt.Stringer for debug logging.
func (i *Interner) String() string {
	return fmt.Sprintf("unit.Interner(%d units)", i.Len())
}
