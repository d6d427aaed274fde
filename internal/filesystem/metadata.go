package filesystem

import (
	"context"
	stderr "errors"
	"io/fs"
	"syscall"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// MetadataStore builds status snapshots. Base attributes come from one native stat;
// ownership is loaded separately by LoadPermissionInfo.
type MetadataStore struct {
	backend    Backend
	identity   IdentityService
	principals *PrincipalResolver
	blockSize  uint64
	logger     *utils.StructuredLogger
}

// NewMetadataStore creates a store reporting blockSize for every file.
func NewMetadataStore(backend Backend, identity IdentityService, principals *PrincipalResolver, blockSize uint64, logger *utils.StructuredLogger) *MetadataStore {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &MetadataStore{
		backend:    backend,
		identity:   identity,
		principals: principals,
		blockSize:  blockSize,
		logger:     logger.WithComponent("metadata"),
	}
}

// Stat returns the base status of p with ownership NotLoaded.
func (m *MetadataStore) Stat(_ context.Context, p types.Path) (types.FileStatus, error) {
	info, err := m.backend.Stat(p)
	if err != nil {
		return types.FileStatus{}, statError("stat", p, err)
	}
	return m.status(p, info), nil
}

func (m *MetadataStore) status(p types.Path, info fs.FileInfo) types.FileStatus {
	var length uint64
	if size := info.Size(); size > 0 {
		length = uint64(size)
	}
	return types.FileStatus{
		Path:             p,
		Length:           length,
		IsDir:            info.IsDir(),
		BlockReplication: 1,
		BlockSize:        m.blockSize,
		ModTime:          info.ModTime(),
		Mode:             info.Mode(),
		Ownership:        types.Ownership{State: types.NotLoaded},
	}
}

// LoadPermissionInfo returns st with ownership loaded. A snapshot that was already queried
// is returned as is. When the platform has no owner view the result is LoadFailed with no
// error; any other failure yields LoadFailed together with an IO error.
func (m *MetadataStore) LoadPermissionInfo(_ context.Context, st types.FileStatus) (types.FileStatus, error) {
	if st.OwnershipQueried() {
		return st, nil
	}

	failed := st.WithOwnership(types.Ownership{State: types.LoadFailed})

	native, err := m.backend.NativePath(st.Path)
	if err != nil {
		return failed, m.ownershipError(st.Path, err)
	}

	raw, err := m.identity.OwnerAttribute(native)
	if err != nil {
		if errors.IsUnsupported(err) {
			m.logger.Debug("owner attribute unsupported", map[string]interface{}{"path": st.Path.String()})
			return failed, nil
		}
		return failed, m.ownershipError(st.Path, err)
	}

	codec := m.principals.Codec()
	prefix, owner, err := codec.Split(raw)
	if err != nil {
		return failed, m.ownershipError(st.Path, err)
	}

	perm := types.PermissionFromMode(st.Mode)
	return st.WithOwnership(types.Ownership{
		State:      types.Loaded,
		Owner:      owner,
		Group:      codec.Group(raw, prefix, m.principals.IsGroup),
		Permission: &perm,
	}), nil
}

func (m *MetadataStore) ownershipError(p types.Path, err error) error {
	m.logger.WithError(err).Error("failed to load ownership", map[string]interface{}{"path": p.String()})
	return errors.NewError(errors.ErrCodeIO, "error while loading file ownership").
		WithComponent("metadata").
		WithOperation("loadPermissionInfo").
		WithPath(p.String()).
		WithCause(err)
}

// Invalidate returns st with ownership reset to NotLoaded.
func (m *MetadataStore) Invalidate(st types.FileStatus) types.FileStatus {
	return st.WithOwnership(types.Ownership{State: types.NotLoaded})
}

// isMissing treats a non-directory path component like a missing entry.
func isMissing(err error) bool {
	return stderr.Is(err, fs.ErrNotExist) || stderr.Is(err, syscall.ENOTDIR)
}

func statError(op string, p types.Path, err error) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	if isMissing(err) {
		return errors.NewError(errors.ErrCodeFileNotFound, "no such file or directory").
			WithOperation(op).
			WithPath(p.String()).
			WithCause(err)
	}
	return errors.NewError(errors.ErrCodeIO, "native stat failed").
		WithOperation(op).
		WithPath(p.String()).
		WithCause(err)
}
