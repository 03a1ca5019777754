package distobj

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an object.
type State uint8

const (
	New State = iota + 1
	Generating
	Generated
	Disabling
	Disabled
	Deleted
)

var stateNames = map[State]string{
	New:        "new",
	Generating: "generating",
	Generated:  "generated",
	Disabling:  "disabling",
	Disabled:   "disabled",
	Deleted:    "deleted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

var ErrTransition = errors.New("distobj: invalid lifecycle transition")

type Role uint8

const (
	RoleClient Role = iota + 1
	RoleAuthority
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleAuthority:
		return "authority"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Policy is a per-role lifecycle transition table.
type Policy struct {
	role    Role
	allowed map[State]map[State]bool
}

func newPolicy(role Role, edges map[State][]State) *Policy {
	p := &Policy{role: role, allowed: make(map[State]map[State]bool, len(edges))}
	for from, tos := range edges {
		set := make(map[State]bool, len(tos))
		for _, to := range tos {
			set[to] = true
		}
		p.allowed[from] = set
	}
	return p
}

// ClientPolicy disables objects before deleting them. Generated and
// Disabled objects may be generated again in place.
func ClientPolicy() *Policy {
	return newPolicy(RoleClient, map[State][]State{
		New:        {Generating},
		Generating: {Generated, Disabling},
		Generated:  {Generating, Disabling},
		Disabling:  {Disabled},
		Disabled:   {Generating, Deleted},
	})
}

// AuthorityPolicy lets owned objects be deleted straight from Generated.
func AuthorityPolicy() *Policy {
	return newPolicy(RoleAuthority, map[State][]State{
		New:        {Generating},
		Generating: {Generated, Deleted},
		Generated:  {Generating, Disabling, Deleted},
		Disabling:  {Disabled},
		Disabled:   {Generating, Deleted},
	})
}

func (p *Policy) Role() Role { return p.role }

func (p *Policy) Allows(from, to State) bool {
	return p.allowed[from][to]
}
