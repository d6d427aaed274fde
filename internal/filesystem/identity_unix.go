//go:build unix

package filesystem

import (
	"fmt"
	"io/fs"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/diskvfs/diskvfs/pkg/types"
)

// PosixIdentity resolves principals from the system user database and reads ownership
// from uid and gid. Owner strings are rendered "user:group"; ids without a name are
// rendered numerically.
type PosixIdentity struct{}

// NewPosixIdentity returns the identity service of the running host.
func NewPosixIdentity() *PosixIdentity {
	return &PosixIdentity{}
}

func (PosixIdentity) LookupUser(name string) (types.Principal, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return types.Principal{}, err
	}
	return types.Principal{Name: u.Username, Kind: types.UserPrincipal, ID: u.Uid}, nil
}

func (PosixIdentity) LookupGroup(name string) (types.Principal, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return types.Principal{}, err
	}
	return types.Principal{Name: g.Name, Kind: types.GroupPrincipal, ID: g.Gid}, nil
}

func (PosixIdentity) OwnerAttribute(nativePath string) (string, error) {
	var st unix.Stat_t
	if err := unix.Stat(nativePath, &st); err != nil {
		return "", &fs.PathError{Op: "stat", Path: nativePath, Err: err}
	}
	return userName(st.Uid) + ":" + groupName(st.Gid), nil
}

func (p PosixIdentity) SetOwnerAttribute(nativePath string, owner, group *types.Principal) error {
	uid, gid := -1, -1
	if owner != nil {
		id, err := p.numericID(owner)
		if err != nil {
			return err
		}
		uid = id
	}
	if group != nil {
		id, err := p.numericID(group)
		if err != nil {
			return err
		}
		gid = id
	}
	if err := unix.Chown(nativePath, uid, gid); err != nil {
		return &fs.PathError{Op: "chown", Path: nativePath, Err: err}
	}
	return nil
}

func (p PosixIdentity) numericID(principal *types.Principal) (int, error) {
	resolved := *principal
	if resolved.ID == "" {
		var err error
		if resolved.IsGroup() {
			resolved, err = p.LookupGroup(principal.Name)
		} else {
			resolved, err = p.LookupUser(principal.Name)
		}
		if err != nil {
			return 0, err
		}
	}
	id, err := strconv.Atoi(resolved.ID)
	if err != nil {
		return 0, fmt.Errorf("non-numeric %s id %q", resolved.Kind, resolved.ID)
	}
	return id, nil
}

func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}
