package rules

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a problem in a CUE rule source.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: field, Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
