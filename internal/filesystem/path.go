package filesystem

import (
	"os"
	"strings"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// Resolver turns caller paths into absolute paths qualified with the filesystem's scheme
// and authority. It holds no working directory; callers pass one in.
type Resolver struct {
	scheme    string
	authority string
}

// NewResolver creates a resolver for scheme://authority.
func NewResolver(scheme, authority string) (*Resolver, error) {
	if !types.IsValidScheme(scheme) {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "invalid scheme %q", scheme)
	}
	if strings.ContainsRune(authority, '/') {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "invalid authority %q", authority)
	}
	return &Resolver{scheme: scheme, authority: authority}, nil
}

// Scheme returns the virtual scheme.
func (r *Resolver) Scheme() string { return r.scheme }

// Authority returns the virtual authority.
func (r *Resolver) Authority() string { return r.authority }

// Root returns the qualified virtual root.
func (r *Resolver) Root() types.Path {
	return types.RootPath().Qualify(r.scheme, r.authority)
}

// Resolve returns p unchanged when it is absolute, otherwise p joined onto wd. The result
// and the working directory pass the same validation.
func (r *Resolver) Resolve(p, wd types.Path) (types.Path, error) {
	if p.Absolute {
		return r.Qualify(p)
	}
	base, err := r.Qualify(wd)
	if err != nil {
		return types.Path{}, err
	}
	joined, err := base.Join(p)
	if err != nil {
		return types.Path{}, invalidPath(p.String(), err.Error())
	}
	return r.Qualify(joined)
}

// ResolveString parses s and resolves it against wd.
func (r *Resolver) ResolveString(s string, wd types.Path) (types.Path, error) {
	p, err := types.ParsePath(s)
	if err != nil {
		return types.Path{}, invalidPath(s, err.Error())
	}
	return r.Resolve(p, wd)
}

// Qualify validates an absolute path and annotates it with the resolver's scheme and
// authority. A path that already carries a scheme or authority must match.
func (r *Resolver) Qualify(p types.Path) (types.Path, error) {
	if !p.Absolute {
		return types.Path{}, invalidPath(p.String(), "path is not absolute")
	}
	if p.Scheme != "" && !strings.EqualFold(p.Scheme, r.scheme) {
		return types.Path{}, invalidPath(p.String(), "scheme does not match "+r.scheme)
	}
	if p.Authority != "" && p.Authority != r.authority {
		return types.Path{}, invalidPath(p.String(), "authority does not match")
	}
	for _, segment := range p.Segments {
		if err := utils.ValidateSegment(segment); err != nil {
			return types.Path{}, invalidPath(p.String(), err.Error())
		}
	}
	return p.Qualify(r.scheme, r.authority), nil
}

// InitialWorkingDirectory maps the process working directory into the virtual namespace.
// When the process runs outside root the virtual root is used.
func (r *Resolver) InitialWorkingDirectory(root string) types.Path {
	cwd, err := os.Getwd()
	if err != nil {
		return r.Root()
	}
	segments, ok := utils.RelativeTo(root, cwd)
	if !ok {
		return r.Root()
	}
	wd, err := r.Qualify(types.Path{Absolute: true, Segments: segments})
	if err != nil {
		return r.Root()
	}
	return wd
}

func invalidPath(path, reason string) error {
	return errors.NewError(errors.ErrCodeInvalidPath, reason).
		WithComponent("resolver").
		WithPath(path)
}
