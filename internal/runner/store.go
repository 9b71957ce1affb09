package runner

import (
	"sync"

	"github.com/specialistvlad/buildbatch/internal/unit"
)

// store holds the mutable execution state of the units of one run. Each
// unit's state is independent and written by whichever worker handles it,
// so it uses sync.Map rather than one lock.
type store struct {
	states    sync.Map // *unit.Unit -> Status
	artifacts sync.Map // *unit.Unit -> string
	errors    sync.Map // *unit.Unit -> error
}

func newStore(units []*unit.Unit) *store {
	s := &store{}
	for _, u := range units {
		s.states.Store(u, StatusPending)
	}
	return s
}

func (s *store) setStatus(u *unit.Unit, status Status) {
	s.states.Store(u, status)
}

// status returns StatusPending for units the store has never seen.
func (s *store) status(u *unit.Unit) Status {
	v, ok := s.states.Load(u)
	if !ok {
		return StatusPending
	}
	return v.(Status)
}

// skip moves a pending unit to skipped. It reports whether this call made
// the transition, so every unit is accounted for exactly once.
func (s *store) skip(u *unit.Unit, reason error) bool {
	if !s.states.CompareAndSwap(u, StatusPending, StatusSkipped) {
		return false
	}
	s.errors.Store(u, reason)
	return true
}

// claim moves a pending unit to running.
func (s *store) claim(u *unit.Unit) bool {
	return s.states.CompareAndSwap(u, StatusPending, StatusRunning)
}

func (s *store) fail(u *unit.Unit, err error) {
	s.errors.Store(u, err)
	s.states.Store(u, StatusFailed)
}

func (s *store) setArtifact(u *unit.Unit, path string) {
	s.artifacts.Store(u, path)
}

func (s *store) artifact(u *unit.Unit) (string, bool) {
	v, ok := s.artifacts.Load(u)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (s *store) err(u *unit.Unit) error {
	v, ok := s.errors.Load(u)
	if !ok {
		return nil
	}
	return v.(error)
}
