package consortium

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/authsync/internal/tenant"
)

// Role is a tenant's place in a consortium.
type Role int

const (
	RoleNone Role = iota
	RoleCentral
	RoleMember
)

func (r Role) String() string {
	switch r {
	case RoleCentral:
		return "central"
	case RoleMember:
		return "member"
	}
	return "none"
}

// Membership resolves the tenants a write must be replayed into.
type Membership interface {
	MembersOf(ctx context.Context, tenantID string) ([]string, error)
}

// file is the YAML layout of a membership file:
//
//	consortia:
//	  - name: ohiolink
//	    central: central
//	    members: [university, college]
type file struct {
	Consortia []struct {
		Name    string   `yaml:"name"`
		Central string   `yaml:"central"`
		Members []string `yaml:"members"`
	} `yaml:"consortia"`
}

// Static is a fixed membership table.
type Static struct {
	members map[string][]string
	roles   map[string]Role
}

// LoadFile reads a membership file.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read consortium file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a membership document. A tenant may belong to one consortium
// only, and every tenant id must be valid.
func Parse(data []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse consortium file: %w", err)
	}
	s := &Static{members: make(map[string][]string), roles: make(map[string]Role)}
	for _, c := range f.Consortia {
		if err := s.add(c.Name, c.Central, RoleCentral); err != nil {
			return nil, err
		}
		var members []string
		for _, m := range c.Members {
			if m == c.Central {
				continue
			}
			if err := s.add(c.Name, m, RoleMember); err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		sort.Strings(members)
		s.members[c.Central] = members
	}
	return s, nil
}

func (s *Static) add(name, id string, role Role) error {
	if err := tenant.Validate(id); err != nil {
		return fmt.Errorf("consortium %q: %w", name, err)
	}
	if _, dup := s.roles[id]; dup {
		return fmt.Errorf("consortium %q: tenant %s already belongs to a consortium", name, id)
	}
	s.roles[id] = role
	return nil
}

// MembersOf returns the members a central tenant replays into. Other tenants
// have none.
func (s *Static) MembersOf(_ context.Context, tenantID string) ([]string, error) {
	return append([]string(nil), s.members[tenantID]...), nil
}

// Role returns the role of a tenant.
func (s *Static) Role(tenantID string) Role {
	if s == nil {
		return RoleNone
	}
	return s.roles[tenantID]
}
