package filesystem

import "github.com/diskvfs/diskvfs/pkg/types"

// IdentityService is the platform's user and group database together with the native
// owner attribute of files.
type IdentityService interface {
	LookupUser(name string) (types.Principal, error)
	LookupGroup(name string) (types.Principal, error)

	// OwnerAttribute returns the composite owner string of a native file. Platforms
	// without an owner view return an error wrapping errors.ErrUnsupported.
	OwnerAttribute(nativePath string) (string, error)
	// SetOwnerAttribute changes the owner of a native file. A nil principal leaves
	// that side unchanged.
	SetOwnerAttribute(nativePath string, user, group *types.Principal) error
}
