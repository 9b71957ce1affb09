package runner

import (
	"fmt"

	"github.com/specialistvlad/buildbatch/internal/unit"
)

// UnitError is the failure of one unit.
type UnitError struct {
	Unit *unit.Unit
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("failed to compile %s: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// skippedError marks a unit that never ran.
type skippedError struct {
	cause string
}

func (e *skippedError) Error() string {
	return "skipped: " + e.cause
}
