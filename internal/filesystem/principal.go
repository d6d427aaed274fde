package filesystem

import (
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// PrincipalResolver looks up principals and reconciles owner changes. Nothing is cached;
// every call reaches the identity service.
type PrincipalResolver struct {
	identity IdentityService
	codec    OwnerCodec
	logger   *utils.StructuredLogger
}

// NewPrincipalResolver creates a resolver over identity using codec for domain prefixes.
func NewPrincipalResolver(identity IdentityService, codec OwnerCodec, logger *utils.StructuredLogger) *PrincipalResolver {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &PrincipalResolver{
		identity: identity,
		codec:    codec,
		logger:   logger.WithComponent("principal"),
	}
}

// Codec returns the owner codec in use.
func (r *PrincipalResolver) Codec() OwnerCodec {
	return r.codec
}

// LookupUser resolves a user. Any failure of the identity service reads as not found.
func (r *PrincipalResolver) LookupUser(name string) (types.Principal, bool) {
	if name == "" {
		return types.Principal{}, false
	}
	p, err := r.identity.LookupUser(name)
	if err != nil {
		r.logger.WithError(err).Debug("user lookup failed", map[string]interface{}{"name": name})
		return types.Principal{}, false
	}
	return p, true
}

// LookupGroup resolves a group. Any failure of the identity service reads as not found.
func (r *PrincipalResolver) LookupGroup(name string) (types.Principal, bool) {
	if name == "" {
		return types.Principal{}, false
	}
	p, err := r.identity.LookupGroup(name)
	if err != nil {
		r.logger.WithError(err).Debug("group lookup failed", map[string]interface{}{"name": name})
		return types.Principal{}, false
	}
	return p, true
}

// IsGroup reports whether name resolves as a group.
func (r *PrincipalResolver) IsGroup(name string) bool {
	_, ok := r.LookupGroup(name)
	return ok
}

// ReconcileOwnerGroup resolves the requested owner change. An empty name leaves that side
// unset in the result. When both are given they must resolve under the same domain.
func (r *PrincipalResolver) ReconcileOwnerGroup(username, groupname string) (*types.Principal, *types.Principal, error) {
	if username == "" && groupname == "" {
		return nil, nil, errors.NewError(errors.ErrCodeMissingIdentity, "username and groupname are both unset").
			WithComponent("principal").WithOperation("reconcile")
	}

	var user, group *types.Principal
	if username != "" {
		p, ok := r.LookupUser(username)
		if !ok {
			return nil, nil, unknownPrincipal("user", username)
		}
		user = &p
	}
	if groupname != "" {
		p, ok := r.LookupGroup(groupname)
		if !ok {
			return nil, nil, unknownPrincipal("group", groupname)
		}
		group = &p
	}

	if user != nil && group != nil {
		userDomain := r.codec.Domain(user.Name)
		groupDomain := r.codec.Domain(group.Name)
		if userDomain != groupDomain {
			return nil, nil, errors.Newf(errors.ErrCodeCrossDomainMismatch,
				"user %q and group %q resolve under different domains", user.Name, group.Name).
				WithComponent("principal").
				WithOperation("reconcile").
				WithDetail("user_domain", userDomain).
				WithDetail("group_domain", groupDomain)
		}
	}

	return user, group, nil
}

func unknownPrincipal(kind, name string) error {
	return errors.Newf(errors.ErrCodeUnknownPrincipal, "unknown %s %q", kind, name).
		WithComponent("principal").
		WithOperation("reconcile").
		WithDetail(kind, name)
}

// SetOwner reconciles username and groupname and applies them to a native file.
func (r *PrincipalResolver) SetOwner(nativePath, username, groupname string) error {
	user, group, err := r.ReconcileOwnerGroup(username, groupname)
	if err != nil {
		return err
	}
	if err := r.identity.SetOwnerAttribute(nativePath, user, group); err != nil {
		code := errors.ErrCodeIO
		if errors.IsUnsupported(err) {
			code = errors.ErrCodeUnsupported
		}
		return errors.NewError(code, "failed to set owner attribute").
			WithComponent("principal").
			WithOperation("setOwner").
			WithPath(nativePath).
			WithCause(err)
	}
	return nil
}
