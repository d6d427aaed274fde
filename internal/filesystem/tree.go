package filesystem

import (
	"context"
	stderr "errors"
	"io/fs"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// CreateOptions controls Create.
type CreateOptions struct {
	Overwrite bool
	// BufferSize of the returned stream; values <= 0 select the filesystem default.
	BufferSize int
	// Permission of the created file; nil selects the filesystem default.
	Permission *types.Permission
}

// TreeMutator checks structural preconditions and then issues native tree changes.
// It does not serialize concurrent calls on the same path.
type TreeMutator struct {
	backend    Backend
	fileMode   fs.FileMode
	dirMode    fs.FileMode
	bufferSize int
	observer   types.StreamObserver
	logger     *utils.StructuredLogger
}

// NewTreeMutator creates a mutator using the given default modes and buffer size.
func NewTreeMutator(backend Backend, fileMode, dirMode fs.FileMode, bufferSize int, observer types.StreamObserver, logger *utils.StructuredLogger) *TreeMutator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &TreeMutator{
		backend:    backend,
		fileMode:   fileMode,
		dirMode:    dirMode,
		bufferSize: bufferSize,
		observer:   observer,
		logger:     logger.WithComponent("tree"),
	}
}

// lookup stats p. A missing entry is (nil, nil).
func (m *TreeMutator) lookup(p types.Path) (fs.FileInfo, error) {
	info, err := m.backend.Stat(p)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

// Mkdirs creates p and any missing parents. It reports true when p is a directory
// afterwards. Parents created before a failure are left in place.
func (m *TreeMutator) Mkdirs(_ context.Context, p *types.Path) (bool, error) {
	if p == nil {
		return false, errors.NewError(errors.ErrCodeInvalidArgument, "mkdirs path is nil").
			WithComponent("tree").WithOperation("mkdirs")
	}
	return m.mkdirs(*p)
}

func (m *TreeMutator) mkdirs(p types.Path) (bool, error) {
	parent, hasParent := p.Parent()
	parentExists := true
	if hasParent {
		info, err := m.lookup(parent)
		if err != nil {
			return false, errors.FromOS("mkdirs", parent.String(), err)
		}
		if info != nil && !info.IsDir() {
			return false, errors.NewError(errors.ErrCodeParentNotDirectory, "parent path is not a directory").
				WithOperation("mkdirs").
				WithPath(parent.String())
		}
		parentExists = info != nil
	}

	info, err := m.lookup(p)
	if err != nil {
		return false, errors.FromOS("mkdirs", p.String(), err)
	}
	if info != nil && !info.IsDir() {
		return false, errors.NewError(errors.ErrCodeDestinationIsFile, "destination exists and it is a file").
			WithOperation("mkdirs").
			WithPath(p.String())
	}

	if !parentExists {
		created, err := m.mkdirs(parent)
		if err != nil || !created {
			return created, err
		}
	}

	if info != nil {
		return true, nil
	}

	if err := m.backend.Mkdir(p, m.dirMode); err != nil {
		if stderr.Is(err, fs.ErrExist) {
			if again, statErr := m.lookup(p); statErr == nil && again != nil && again.IsDir() {
				return true, nil
			}
		}
		m.logger.WithError(err).Warn("mkdir failed", map[string]interface{}{"path": p.String()})
		return false, nil
	}
	m.logger.Debug("created directory", map[string]interface{}{"path": p.String()})
	return true, nil
}

// Delete removes p. A missing path yields false. A non-empty directory requires recursive.
// A symbolic link is removed itself, never its target. Native failures are reported as false.
func (m *TreeMutator) Delete(_ context.Context, p types.Path, recursive bool) (bool, error) {
	log := m.logger.WithField("path", p.String())

	info, err := m.backend.Lstat(p)
	if isMissing(err) {
		info, err = nil, nil
	}
	if err != nil {
		log.WithError(err).Warn("delete: stat failed")
		return false, nil
	}
	if info == nil {
		return false, nil
	}
	if p.IsRoot() {
		log.Warn("delete: refusing to remove the filesystem root")
		return false, nil
	}

	if !info.IsDir() {
		if err := m.backend.Remove(p); err != nil {
			log.WithError(err).Warn("delete: remove failed")
			return false, nil
		}
		return true, nil
	}

	if !recursive {
		entries, err := m.backend.ReadDir(p)
		if err != nil {
			log.WithError(err).Warn("delete: list failed")
			return false, nil
		}
		if len(entries) > 0 {
			return false, errors.NewError(errors.ErrCodeDirectoryNotEmpty, "directory is not empty").
				WithOperation("delete").
				WithPath(p.String())
		}
	}

	if err := m.backend.RemoveAll(p); err != nil {
		log.WithError(err).Warn("delete: recursive remove failed")
		return false, nil
	}
	log.Debug("deleted", map[string]interface{}{"recursive": recursive})
	return true, nil
}

// Rename forwards to the native rename and reports whether it succeeded.
func (m *TreeMutator) Rename(_ context.Context, src, dst types.Path) (bool, error) {
	if src.IsRoot() {
		m.logger.Warn("rename: refusing to move the filesystem root")
		return false, nil
	}
	if err := m.backend.Rename(src, dst); err != nil {
		m.logger.WithError(err).Warn("rename failed", map[string]interface{}{
			"src": src.String(),
			"dst": dst.String(),
		})
		return false, nil
	}
	return true, nil
}

// Create opens a truncating write stream on p, creating missing parents first.
func (m *TreeMutator) Create(_ context.Context, p types.Path, opts CreateOptions) (*WriteStream, error) {
	info, err := m.lookup(p)
	if err != nil {
		return nil, errors.FromOS("create", p.String(), err)
	}
	if info != nil {
		if info.IsDir() {
			return nil, errors.NewError(errors.ErrCodeFileAlreadyExists, "a directory exists at the target path").
				WithOperation("create").
				WithPath(p.String())
		}
		if !opts.Overwrite {
			return nil, errors.NewError(errors.ErrCodeFileAlreadyExists, "file already exists").
				WithOperation("create").
				WithPath(p.String())
		}
	}

	if parent, ok := p.Parent(); ok {
		created, err := m.mkdirs(parent)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, errors.Newf(errors.ErrCodeIO, "mkdirs failed to create %s", parent).
				WithOperation("create").
				WithPath(p.String())
		}
	}

	mode := m.fileMode
	if opts.Permission != nil {
		mode = opts.Permission.FileMode()
	}
	f, err := m.backend.OpenWrite(p, false, mode)
	if err != nil {
		return nil, errors.FromOS("create", p.String(), err)
	}
	if opts.Permission != nil {
		// the open mode is filtered by the umask
		if err := f.Chmod(mode); err != nil {
			_ = f.Close()
			return nil, errors.FromOS("create", p.String(), err)
		}
	}

	return newWriteStream(p, f, false, 0, m.streamBuffer(opts.BufferSize), m.observer), nil
}

// Append opens a write stream positioned at the end of an existing file.
func (m *TreeMutator) Append(_ context.Context, p types.Path, bufferSize int) (*WriteStream, error) {
	info, err := m.lookup(p)
	if err != nil {
		return nil, errors.FromOS("append", p.String(), err)
	}
	if info == nil {
		return nil, errors.NewError(errors.ErrCodeFileNotFound, "no such file").
			WithOperation("append").
			WithPath(p.String())
	}
	if info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeIO, "cannot append to a directory").
			WithOperation("append").
			WithPath(p.String())
	}

	f, err := m.backend.OpenWrite(p, true, m.fileMode)
	if err != nil {
		return nil, errors.FromOS("append", p.String(), err)
	}
	return newWriteStream(p, f, true, info.Size(), m.streamBuffer(bufferSize), m.observer), nil
}

func (m *TreeMutator) streamBuffer(size int) int {
	if size > 0 {
		return size
	}
	return m.bufferSize
}
