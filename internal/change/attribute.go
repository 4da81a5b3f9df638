package change

import (
	"strings"

	"github.com/roach88/authsync/internal/model"
)

// Attribute is a tracked authority attribute.
type Attribute string

const (
	NaturalID          Attribute = "NATURAL_ID"
	PersonalName       Attribute = "PERSONAL_NAME"
	PersonalNameTitle  Attribute = "PERSONAL_NAME_TITLE"
	CorporateName      Attribute = "CORPORATE_NAME"
	CorporateNameTitle Attribute = "CORPORATE_NAME_TITLE"
	MeetingName        Attribute = "MEETING_NAME"
	MeetingNameTitle   Attribute = "MEETING_NAME_TITLE"
	UniformTitle       Attribute = "UNIFORM_TITLE"
	TopicalTerm        Attribute = "TOPICAL_TERM"
	GeographicName     Attribute = "GEOGRAPHIC_NAME"
	GenreTerm          Attribute = "GENRE_TERM"

	// Unmapped stands for a heading whose tag no linking rule can control.
	Unmapped Attribute = "UNMAPPED"
)

// headingTags maps heading tags to their attribute pair: without and with a
// title subfield.
var headingTags = map[string][2]Attribute{
	"100": {PersonalName, PersonalNameTitle},
	"110": {CorporateName, CorporateNameTitle},
	"111": {MeetingName, MeetingNameTitle},
	"130": {UniformTitle, UniformTitle},
	"150": {TopicalTerm, TopicalTerm},
	"151": {GeographicName, GeographicName},
	"155": {GenreTerm, GenreTerm},
}

// Tag returns the heading tag of a heading attribute, or "".
func (a Attribute) Tag() string {
	for tag, pair := range headingTags {
		if pair[0] == a || pair[1] == a {
			return tag
		}
	}
	return ""
}

// Supported reports whether changes of a can be propagated.
func (a Attribute) Supported() bool {
	return a == NaturalID || a.Tag() != ""
}

// Heading returns the 1XX heading field of an authority.
func Heading(a model.Authority) (model.Field, bool) {
	for _, f := range a.Fields {
		if strings.HasPrefix(f.Tag, "1") {
			return f, true
		}
	}
	return model.Field{}, false
}

// headingAttribute returns the attribute a heading field represents.
func headingAttribute(f model.Field) Attribute {
	pair, ok := headingTags[f.Tag]
	if !ok {
		return Unmapped
	}
	if f.Has("t") {
		return pair[1]
	}
	return pair[0]
}

// attributes renders the tracked attributes of an authority. Values are only
// compared for equality.
func attributes(a model.Authority) map[Attribute]string {
	out := map[Attribute]string{NaturalID: a.NaturalID}
	if h, ok := Heading(a); ok {
		out[headingAttribute(h)] = render(h)
	}
	return out
}

func render(f model.Field) string {
	var b strings.Builder
	b.WriteString(f.Tag)
	b.WriteByte('|')
	b.WriteString(f.Ind1)
	b.WriteByte('|')
	b.WriteString(f.Ind2)
	for _, sf := range f.Subfields {
		b.WriteString("|$")
		b.WriteString(sf.Code)
		b.WriteString(sf.Value)
	}
	return b.String()
}
