package types

// PrincipalKind tells users and groups apart.
type PrincipalKind int

const (
	UserPrincipal PrincipalKind = iota
	GroupPrincipal
)

// String returns "user" or "group".
func (k PrincipalKind) String() string {
	if k == GroupPrincipal {
		return "group"
	}
	return "user"
}

// Principal is a resolved operating-system identity.
type Principal struct {
	Name string        `json:"name"`
	Kind PrincipalKind `json:"kind"`
	// ID is the platform identifier (uid, gid or SID) when the identity service exposes one.
	ID string `json:"id,omitempty"`
}

// IsGroup reports whether p names a group.
func (p Principal) IsGroup() bool {
	return p.Kind == GroupPrincipal
}
