package change

import (
	"sort"

	"github.com/roach88/authsync/internal/model"
)

// Kind is the outcome of classification.
type Kind int

const (
	// KindNone means no tracked attribute changed.
	KindNone Kind = iota
	KindNaturalIDOnly
	KindFieldChange
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindNaturalIDOnly:
		return "NATURAL_ID_ONLY"
	case KindFieldChange:
		return "FIELD_CHANGE"
	case KindUnsupported:
		return "UNSUPPORTED"
	}
	return "UNKNOWN"
}

// Decision is the classification of one authority change.
type Decision struct {
	Kind Kind

	// Attribute is the changed heading attribute of a FIELD_CHANGE.
	Attribute Attribute

	// NaturalIDChanged is set whenever the natural id differs.
	NaturalIDChanged bool

	// Changed lists every differing attribute in name order.
	Changed []Attribute
}

// Classify compares two versions of an authority.
func Classify(prev, next model.Authority) Decision {
	before, after := attributes(prev), attributes(next)

	seen := make(map[Attribute]bool)
	var changed []Attribute
	for _, m := range []map[Attribute]string{before, after} {
		for attr := range m {
			if seen[attr] {
				continue
			}
			seen[attr] = true
			bv, bok := before[attr]
			av, aok := after[attr]
			if bok != aok || bv != av {
				changed = append(changed, attr)
			}
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })

	d := Decision{Changed: changed}
	var fields []Attribute
	for _, attr := range changed {
		if !attr.Supported() {
			d.Kind = KindUnsupported
			return d
		}
		if attr == NaturalID {
			d.NaturalIDChanged = true
			continue
		}
		fields = append(fields, attr)
	}

	switch {
	case len(changed) == 0:
		d.Kind = KindNone
	case len(fields) == 0:
		d.Kind = KindNaturalIDOnly
	case len(fields) == 1:
		d.Kind = KindFieldChange
		d.Attribute = fields[0]
	default:
		d.Kind = KindUnsupported
	}
	return d
}
