package change

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UnsupportedChangeError reports an authority change that cannot be
// propagated. Links of the authority are left as they are.
type UnsupportedChangeError struct {
	AuthorityID uuid.UUID
	Changed     []Attribute
}

func (e *UnsupportedChangeError) Error() string {
	names := make([]string, len(e.Changed))
	for i, a := range e.Changed {
		names[i] = string(a)
	}
	return fmt.Sprintf("unsupported change of authority %s: [%s]", e.AuthorityID, strings.Join(names, ", "))
}

// IsUnsupported reports whether err is an UnsupportedChangeError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedChangeError
	return errors.As(err, &ue)
}
