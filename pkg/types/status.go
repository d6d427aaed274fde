package types

import (
	"fmt"
	"io/fs"
	"strconv"
	"time"
)

// LoadState records whether a status snapshot's ownership has been queried.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loaded
	LoadFailed
)

// String returns the state name
func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name.
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Permission holds the nine rwx bits plus setuid, setgid and sticky.
type Permission uint32

const permissionMask = 0o7777

// PermissionFromMode extracts the permission bits from a native file mode.
func PermissionFromMode(mode fs.FileMode) Permission {
	p := Permission(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		p |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		p |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		p |= 0o1000
	}
	return p
}

// ParsePermission parses an octal string such as "644" or "0755".
func ParsePermission(s string) (Permission, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permission %q: %w", s, err)
	}
	if v&^permissionMask != 0 {
		return 0, fmt.Errorf("invalid permission %q: out of range", s)
	}
	return Permission(v), nil
}

// FileMode converts the permission back to a native file mode.
func (p Permission) FileMode() fs.FileMode {
	mode := fs.FileMode(p & 0o777)
	if p&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if p&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if p&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// Octal renders the permission as a four digit octal string.
func (p Permission) Octal() string {
	return fmt.Sprintf("%04o", uint32(p)&permissionMask)
}

// String renders the permission in ls style, e.g. "rwxr-x---".
func (p Permission) String() string {
	const rwx = "rwxrwxrwx"
	buf := []byte("---------")
	for i := 0; i < 9; i++ {
		if p&(1<<uint(8-i)) != 0 {
			buf[i] = rwx[i]
		}
	}
	if p&0o4000 != 0 {
		buf[2] = special(buf[2], 's')
	}
	if p&0o2000 != 0 {
		buf[5] = special(buf[5], 's')
	}
	if p&0o1000 != 0 {
		buf[8] = special(buf[8], 't')
	}
	return string(buf)
}

func special(current, c byte) byte {
	if current == '-' {
		return c - 'a' + 'A'
	}
	return c
}

// Ownership is the lazily loaded part of a status snapshot.
type Ownership struct {
	State      LoadState   `json:"state"`
	Permission *Permission `json:"permission,omitempty"`
	Owner      string      `json:"owner,omitempty"`
	Group      string      `json:"group,omitempty"`
}

// FileStatus is a point-in-time snapshot of one file or directory.
type FileStatus struct {
	Path             Path        `json:"path"`
	Length           uint64      `json:"length"`
	IsDir            bool        `json:"is_dir"`
	BlockReplication uint16      `json:"block_replication"`
	BlockSize        uint64      `json:"block_size"`
	ModTime          time.Time   `json:"modification_time"`
	Mode             fs.FileMode `json:"-"`
	Ownership        Ownership   `json:"ownership"`
}

// Owner returns the owner name when ownership is loaded.
func (s FileStatus) Owner() (string, bool) {
	if s.Ownership.State != Loaded {
		return "", false
	}
	return s.Ownership.Owner, true
}

// Group returns the group name when ownership is loaded.
func (s FileStatus) Group() (string, bool) {
	if s.Ownership.State != Loaded {
		return "", false
	}
	return s.Ownership.Group, true
}

// Permission returns the permission bits when ownership is loaded.
func (s FileStatus) Permission() (Permission, bool) {
	if s.Ownership.State != Loaded || s.Ownership.Permission == nil {
		return 0, false
	}
	return *s.Ownership.Permission, true
}

// OwnershipQueried reports whether a load has been attempted.
func (s FileStatus) OwnershipQueried() bool {
	return s.Ownership.State != NotLoaded
}

// WithOwnership returns a copy of s carrying o.
func (s FileStatus) WithOwnership(o Ownership) FileStatus {
	if o.Permission != nil {
		perm := *o.Permission
		o.Permission = &perm
	}
	s.Ownership = o
	return s
}
