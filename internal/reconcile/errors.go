package reconcile

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Stage names the lookup a ResolutionError came from.
type Stage string

const (
	StageRules       Stage = "rules"
	StageAuthorities Stage = "authorities"
	StageLinks       Stage = "links"
)

// ResolutionError reports a failed lookup during reconciliation. Nothing has
// been written when it is returned.
type ResolutionError struct {
	Stage      Stage
	InstanceID uuid.UUID
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("reconcile instance %s: resolve %s: %v", e.InstanceID, e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsResolutionError reports whether err is a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
