//go:build !unix

package filesystem

import (
	stderr "errors"
	"fmt"

	"github.com/diskvfs/diskvfs/pkg/types"
)

// PosixIdentity is unavailable on this platform; every call reports errors.ErrUnsupported.
type PosixIdentity struct{}

// NewPosixIdentity returns an identity service that supports nothing.
func NewPosixIdentity() *PosixIdentity {
	return &PosixIdentity{}
}

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, stderr.ErrUnsupported)
}

func (PosixIdentity) LookupUser(string) (types.Principal, error) {
	return types.Principal{}, unsupported("lookup user")
}

func (PosixIdentity) LookupGroup(string) (types.Principal, error) {
	return types.Principal{}, unsupported("lookup group")
}

func (PosixIdentity) OwnerAttribute(string) (string, error) {
	return "", unsupported("owner attribute")
}

func (PosixIdentity) SetOwnerAttribute(string, *types.Principal, *types.Principal) error {
	return unsupported("set owner attribute")
}
