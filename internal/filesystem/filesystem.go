package filesystem

import (
	"context"
	stderr "errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/diskvfs/diskvfs/internal/config"
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultScheme     = "xdfs"
	DefaultBlockSize  = 32 * 1024 * 1024
	DefaultBufferSize = 4096
	DefaultFileMode   = fs.FileMode(0o644)
	DefaultDirMode    = fs.FileMode(0o755)
)

// Health components fed by the filesystem.
const (
	ComponentBackend  = "backend"
	ComponentIdentity = "identity"
)

// Options configures a FileSystem.
type Options struct {
	Scheme    string
	Authority string
	// WorkingDir is the initial working directory of new sessions. Empty selects the
	// process working directory mapped under the backend root.
	WorkingDir string
	BlockSize  uint64
	BufferSize int
	FileMode   fs.FileMode
	DirMode    fs.FileMode

	Logger   *utils.StructuredLogger
	Recorder types.OperationRecorder
	Observer types.StreamObserver
	Health   types.HealthReporter
}

// OptionsFromConfig copies the filesystem section of cfg into Options.
func OptionsFromConfig(cfg *config.Configuration) (Options, error) {
	blockSize, err := cfg.BlockSizeBytes()
	if err != nil {
		return Options{}, fmt.Errorf("block size: %w", err)
	}
	bufferSize, err := cfg.BufferSizeBytes()
	if err != nil {
		return Options{}, fmt.Errorf("buffer size: %w", err)
	}
	fileMode, err := cfg.FilePermission()
	if err != nil {
		return Options{}, fmt.Errorf("file mode: %w", err)
	}
	dirMode, err := cfg.DirPermission()
	if err != nil {
		return Options{}, fmt.Errorf("dir mode: %w", err)
	}
	return Options{
		Scheme:     cfg.Filesystem.Scheme,
		Authority:  cfg.Filesystem.Authority,
		WorkingDir: cfg.Filesystem.WorkingDir,
		BlockSize:  uint64(blockSize),
		BufferSize: int(bufferSize),
		FileMode:   fileMode,
		DirMode:    dirMode,
	}, nil
}

func (o *Options) setDefaults() {
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.FileMode == 0 {
		o.FileMode = DefaultFileMode
	}
	if o.DirMode == 0 {
		o.DirMode = DefaultDirMode
	}
	if o.Logger == nil {
		o.Logger = utils.NewNopLogger()
	}
}

// FileSystem is the caller-facing surface of the core. Its methods take absolute paths;
// Session adds working-directory resolution on top.
type FileSystem struct {
	backend    Backend
	resolver   *Resolver
	principals *PrincipalResolver
	metadata   *MetadataStore
	tree       *TreeMutator
	opts       Options
	initialWD  types.Path
	logger     *utils.StructuredLogger
}

// New assembles a FileSystem over backend and identity.
func New(backend Backend, identity IdentityService, codec OwnerCodec, opts Options) (*FileSystem, error) {
	if backend == nil || identity == nil || codec == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "backend, identity and codec are required")
	}
	opts.setDefaults()

	resolver, err := NewResolver(opts.Scheme, opts.Authority)
	if err != nil {
		return nil, err
	}

	initialWD := resolver.InitialWorkingDirectory(backend.Root())
	if opts.WorkingDir != "" {
		initialWD, err = resolver.ResolveString(opts.WorkingDir, resolver.Root())
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}

	principals := NewPrincipalResolver(identity, codec, opts.Logger)
	return &FileSystem{
		backend:    backend,
		resolver:   resolver,
		principals: principals,
		metadata:   NewMetadataStore(backend, identity, principals, opts.BlockSize, opts.Logger),
		tree:       NewTreeMutator(backend, opts.FileMode, opts.DirMode, opts.BufferSize, opts.Observer, opts.Logger),
		opts:       opts,
		initialWD:  initialWD,
		logger:     opts.Logger.WithComponent("filesystem"),
	}, nil
}

// NewFromConfig builds a FileSystem over the local disk described by cfg. Logger and
// reporters are taken from extra.
func NewFromConfig(cfg *config.Configuration, extra Options) (*FileSystem, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Logger = extra.Logger
	opts.Recorder = extra.Recorder
	opts.Observer = extra.Observer
	opts.Health = extra.Health

	backend, err := NewLocalBackend(cfg.Filesystem.Root)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(cfg.Filesystem.OwnerEncoding)
	if err != nil {
		return nil, err
	}
	return New(backend, NewPosixIdentity(), codec, opts)
}

// Scheme returns the virtual scheme.
func (f *FileSystem) Scheme() string { return f.resolver.Scheme() }

// URI returns scheme://authority/.
func (f *FileSystem) URI() string { return f.resolver.Root().String() }

// Root returns the native root directory.
func (f *FileSystem) Root() string { return f.backend.Root() }

// Resolver exposes path resolution.
func (f *FileSystem) Resolver() *Resolver { return f.resolver }

// Principals exposes principal lookups.
func (f *FileSystem) Principals() *PrincipalResolver { return f.principals }

// InitialWorkingDirectory is the working directory new sessions start in.
func (f *FileSystem) InitialWorkingDirectory() types.Path { return f.initialWD }

// BufferSize is the default stream buffer size.
func (f *FileSystem) BufferSize() int { return f.opts.BufferSize }

// NewSession returns a session positioned at the initial working directory.
func (f *FileSystem) NewSession() *Session {
	return &Session{fs: f, wd: f.initialWD}
}

// observe reports the outcome of op to the recorder and the health tracker. Caller
// errors such as a missing path do not count against health.
func (f *FileSystem) observe(op, component string, start time.Time, err error) {
	if f.opts.Recorder != nil {
		f.opts.Recorder.RecordOperation(op, time.Since(start), err)
	}
	if f.opts.Health != nil {
		if errors.IsHealthFailure(err) {
			f.opts.Health.RecordError(component, err)
		} else {
			f.opts.Health.RecordSuccess(component)
		}
	}
}

func (f *FileSystem) absolute(op string, p types.Path) (types.Path, error) {
	abs, err := f.resolver.Qualify(p)
	if err != nil {
		var coded *errors.Error
		if stderr.As(err, &coded) {
			coded.WithOperation(op)
		}
		return types.Path{}, err
	}
	return abs, nil
}

// Open opens p for reading.
func (f *FileSystem) Open(ctx context.Context, p types.Path, bufferSize int) (rs *ReadStream, err error) {
	defer func(start time.Time) { f.observe("open", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("open", p); err != nil {
		return nil, err
	}
	info, err := f.backend.Stat(p)
	if err != nil {
		return nil, statError("open", p, err)
	}
	if info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeIO, "is a directory").
			WithOperation("open").
			WithPath(p.String())
	}
	file, err := f.backend.OpenRead(p)
	if err != nil {
		return nil, errors.FromOS("open", p.String(), err)
	}
	if bufferSize <= 0 {
		bufferSize = f.opts.BufferSize
	}
	f.logger.Debug("opened for read", map[string]interface{}{"path": p.String()})
	return newReadStream(p, file, bufferSize, f.opts.Observer), nil
}

// Create opens p for writing, truncating an existing file when opts.Overwrite is set.
func (f *FileSystem) Create(ctx context.Context, p types.Path, opts CreateOptions) (ws *WriteStream, err error) {
	defer func(start time.Time) { f.observe("create", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("create", p); err != nil {
		return nil, err
	}
	return f.tree.Create(ctx, p, opts)
}

// Append opens an existing file for appending.
func (f *FileSystem) Append(ctx context.Context, p types.Path, bufferSize int) (ws *WriteStream, err error) {
	defer func(start time.Time) { f.observe("append", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("append", p); err != nil {
		return nil, err
	}
	return f.tree.Append(ctx, p, bufferSize)
}

// Delete removes p; see TreeMutator.Delete.
func (f *FileSystem) Delete(ctx context.Context, p types.Path, recursive bool) (ok bool, err error) {
	defer func(start time.Time) { f.observe("delete", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("delete", p); err != nil {
		return false, err
	}
	return f.tree.Delete(ctx, p, recursive)
}

// Rename moves src to dst; see TreeMutator.Rename.
func (f *FileSystem) Rename(ctx context.Context, src, dst types.Path) (ok bool, err error) {
	defer func(start time.Time) { f.observe("rename", ComponentBackend, start, err) }(time.Now())

	if src, err = f.absolute("rename", src); err != nil {
		return false, err
	}
	if dst, err = f.absolute("rename", dst); err != nil {
		return false, err
	}
	return f.tree.Rename(ctx, src, dst)
}

// Mkdirs creates p and its missing parents.
func (f *FileSystem) Mkdirs(ctx context.Context, p types.Path) (ok bool, err error) {
	defer func(start time.Time) { f.observe("mkdirs", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("mkdirs", p); err != nil {
		return false, err
	}
	return f.tree.Mkdirs(ctx, &p)
}

// Stat returns the status of p with ownership not loaded.
func (f *FileSystem) Stat(ctx context.Context, p types.Path) (st types.FileStatus, err error) {
	defer func(start time.Time) { f.observe("stat", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("stat", p); err != nil {
		return types.FileStatus{}, err
	}
	return f.metadata.Stat(ctx, p)
}

// LoadPermissionInfo returns st with ownership loaded; see MetadataStore.LoadPermissionInfo.
func (f *FileSystem) LoadPermissionInfo(ctx context.Context, st types.FileStatus) (loaded types.FileStatus, err error) {
	defer func(start time.Time) { f.observe("loadPermissionInfo", ComponentIdentity, start, err) }(time.Now())

	return f.metadata.LoadPermissionInfo(ctx, st)
}

// Invalidate drops the loaded ownership of st.
func (f *FileSystem) Invalidate(st types.FileStatus) types.FileStatus {
	return f.metadata.Invalidate(st)
}

// StatResolved is Stat followed by LoadPermissionInfo.
func (f *FileSystem) StatResolved(ctx context.Context, p types.Path) (types.FileStatus, error) {
	st, err := f.Stat(ctx, p)
	if err != nil {
		return types.FileStatus{}, err
	}
	return f.LoadPermissionInfo(ctx, st)
}

// ListStatus returns the status of every entry of directory p, sorted by name.
func (f *FileSystem) ListStatus(ctx context.Context, p types.Path) (list []types.FileStatus, err error) {
	defer func(start time.Time) { f.observe("listStatus", ComponentBackend, start, err) }(time.Now())

	if p, err = f.absolute("listStatus", p); err != nil {
		return nil, err
	}
	info, err := f.backend.Stat(p)
	if err != nil {
		return nil, statError("listStatus", p, err)
	}
	if !info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeNotDirectory, "not a directory").
			WithOperation("listStatus").
			WithPath(p.String())
	}

	entries, err := f.backend.ReadDir(p)
	if err != nil {
		return nil, errors.FromOS("listStatus", p.String(), err)
	}
	list = make([]types.FileStatus, 0, len(entries))
	for _, entry := range entries {
		st, err := f.metadata.Stat(ctx, p.Child(entry.Name()))
		if err != nil {
			if stderr.Is(err, errors.ErrNotFound) || stderr.Is(err, ErrEscapesRoot) {
				// removed since the directory was read, or a link leading out of the root
				continue
			}
			return nil, err
		}
		list = append(list, st)
	}
	return list, nil
}

// SetOwner changes the owner and/or group of p.
func (f *FileSystem) SetOwner(ctx context.Context, p types.Path, username, groupname string) (err error) {
	defer func(start time.Time) { f.observe("setOwner", ComponentIdentity, start, err) }(time.Now())

	if p, err = f.absolute("setOwner", p); err != nil {
		return err
	}
	if _, err = f.backend.Stat(p); err != nil {
		return statError("setOwner", p, err)
	}
	native, err := f.backend.NativePath(p)
	if err != nil {
		return errors.FromOS("setOwner", p.String(), err)
	}
	if err = f.principals.SetOwner(native, username, groupname); err != nil {
		return err
	}
	f.logger.Info("owner changed", map[string]interface{}{
		"path":  p.String(),
		"user":  username,
		"group": groupname,
	})
	return nil
}

// HealthCheck stats the root of the backend.
func (f *FileSystem) HealthCheck(ctx context.Context) error {
	_, err := f.Stat(ctx, f.resolver.Root())
	return err
}
