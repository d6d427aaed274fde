package fuse

import (
	"context"
	stderr "errors"
	"io"
	iofs "io/fs"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// safeInt64ToUint64 safely converts int64 to uint64, preventing negative values
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// Config controls how the kernel view is served.
type Config struct {
	ReadOnly bool
	Logger   *utils.StructuredLogger
}

// bridge is shared by every node of one mount.
type bridge struct {
	fsys     *filesystem.FileSystem
	readOnly bool
	logger   *utils.StructuredLogger
}

// Node is one file or directory of the mounted tree. The kernel keeps the inode; the node
// only remembers its virtual path and re-stats on every attribute request.
type Node struct {
	fs.Inode
	bridge *bridge
	path   types.Path
}

var (
	_ = (fs.NodeGetattrer)((*Node)(nil))
	_ = (fs.NodeSetattrer)((*Node)(nil))
	_ = (fs.NodeLookuper)((*Node)(nil))
	_ = (fs.NodeReaddirer)((*Node)(nil))
	_ = (fs.NodeMkdirer)((*Node)(nil))
	_ = (fs.NodeCreater)((*Node)(nil))
	_ = (fs.NodeOpener)((*Node)(nil))
	_ = (fs.NodeUnlinker)((*Node)(nil))
	_ = (fs.NodeRmdirer)((*Node)(nil))
	_ = (fs.NodeRenamer)((*Node)(nil))
)

// NewRoot returns the root node of a mount serving fsys.
func NewRoot(fsys *filesystem.FileSystem, cfg *Config) *Node {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Node{
		bridge: &bridge{
			fsys:     fsys,
			readOnly: cfg.ReadOnly,
			logger:   logger.WithComponent("fuse"),
		},
		path: types.RootPath(),
	}
}

// Path returns the virtual path of the node.
func (n *Node) Path() types.Path {
	return n.path
}

func (n *Node) child(name string) (types.Path, syscall.Errno) {
	if err := utils.ValidateSegment(name); err != nil {
		if len(name) > utils.MaxSegmentLength {
			return types.Path{}, syscall.ENAMETOOLONG
		}
		return types.Path{}, syscall.EINVAL
	}
	return n.path.Child(name), 0
}

func (n *Node) newChild(ctx context.Context, p types.Path, st types.FileStatus) *fs.Inode {
	mode := uint32(fuse.S_IFREG)
	if st.IsDir {
		mode = fuse.S_IFDIR
	}
	return n.NewInode(ctx, &Node{bridge: n.bridge, path: p}, fs.StableAttr{Mode: mode})
}

// status stats p and loads ownership when the platform can. A failed ownership load
// still yields the base attributes.
func (b *bridge) status(ctx context.Context, p types.Path) (types.FileStatus, syscall.Errno) {
	st, err := b.fsys.Stat(ctx, p)
	if err != nil {
		return types.FileStatus{}, ToErrno(err)
	}
	loaded, err := b.fsys.LoadPermissionInfo(ctx, st)
	if err != nil {
		b.logger.WithError(err).Debug("ownership unavailable", map[string]interface{}{"path": p.String()})
		return st, 0
	}
	return loaded, 0
}

// fillAttr copies st into out. Owner and group names are mapped back to numeric ids
// when the identity service knows them.
func (b *bridge) fillAttr(st types.FileStatus, out *fuse.Attr) {
	perm := uint32(st.Mode.Perm())
	if p, ok := st.Permission(); ok {
		perm = uint32(p.FileMode())
	}
	if st.IsDir {
		out.Mode = fuse.S_IFDIR | perm
	} else {
		out.Mode = fuse.S_IFREG | perm
	}
	out.Size = st.Length
	out.Blksize = safeIntToUint32(int(st.BlockSize))
	out.Blocks = (st.Length + 511) / 512

	mtime := st.ModTime
	out.SetTimes(&mtime, &mtime, &mtime)

	if owner, ok := st.Owner(); ok {
		if principal, found := b.fsys.Principals().LookupUser(owner); found {
			if id, err := strconv.ParseUint(principal.ID, 10, 32); err == nil {
				out.Uid = uint32(id)
			}
		}
	}
	if group, ok := st.Group(); ok {
		if principal, found := b.fsys.Principals().LookupGroup(group); found {
			if id, err := strconv.ParseUint(principal.ID, 10, 32); err == nil {
				out.Gid = uint32(id)
			}
		}
	}
}

// Getattr reports the attributes of the node.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*FileHandle); ok {
		// buffered bytes must reach the disk before the size is reported
		if errno := h.Flush(ctx); errno != 0 {
			return errno
		}
	}
	st, errno := n.bridge.status(ctx, n.path)
	if errno != 0 {
		return errno
	}
	n.bridge.fillAttr(st, &out.Attr)
	return 0
}

// Setattr supports truncation to zero and ownership changes. Mode and time updates are
// accepted and ignored.
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if n.bridge.readOnly {
		return syscall.EROFS
	}

	if size, ok := in.GetSize(); ok {
		if size != 0 {
			return syscall.ENOTSUP
		}
		ws, err := n.bridge.fsys.Create(ctx, n.path, filesystem.CreateOptions{Overwrite: true})
		if err != nil {
			return ToErrno(err)
		}
		if err := ws.Close(); err != nil {
			return ToErrno(err)
		}
	}

	uid, hasUID := in.GetUID()
	gid, hasGID := in.GetGID()
	if hasUID || hasGID {
		var username, groupname string
		if hasUID {
			u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
			if err != nil {
				return syscall.EINVAL
			}
			username = u.Username
		}
		if hasGID {
			g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
			if err != nil {
				return syscall.EINVAL
			}
			groupname = g.Name
		}
		if err := n.bridge.fsys.SetOwner(ctx, n.path, username, groupname); err != nil {
			return ToErrno(err)
		}
	}

	return n.Getattr(ctx, fh, out)
}

// Lookup finds a child of a directory node.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p, errno := n.child(name)
	if errno != 0 {
		return nil, errno
	}
	st, errno := n.bridge.status(ctx, p)
	if errno != 0 {
		return nil, errno
	}
	n.bridge.fillAttr(st, &out.Attr)
	return n.newChild(ctx, p, st), 0
}

// Readdir lists a directory node.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	list, err := n.bridge.fsys.ListStatus(ctx, n.path)
	if err != nil {
		return nil, ToErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(list))
	for _, st := range list {
		mode := uint32(fuse.S_IFREG)
		if st.IsDir {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: st.Path.Name(), Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Mkdir creates one directory. Unlike Mkdirs, an existing entry is an error.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.bridge.readOnly {
		return nil, syscall.EROFS
	}
	p, errno := n.child(name)
	if errno != 0 {
		return nil, errno
	}
	if _, err := n.bridge.fsys.Stat(ctx, p); err == nil {
		return nil, syscall.EEXIST
	} else if !stderr.Is(err, errors.ErrNotFound) {
		return nil, ToErrno(err)
	}

	ok, err := n.bridge.fsys.Mkdirs(ctx, p)
	if err != nil {
		return nil, ToErrno(err)
	}
	if !ok {
		return nil, syscall.EIO
	}
	st, errno := n.bridge.status(ctx, p)
	if errno != 0 {
		return nil, errno
	}
	n.bridge.fillAttr(st, &out.Attr)
	return n.newChild(ctx, p, st), 0
}

// Create makes a new regular file and opens it for writing.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if n.bridge.readOnly {
		return nil, nil, 0, syscall.EROFS
	}
	p, errno := n.child(name)
	if errno != 0 {
		return nil, nil, 0, errno
	}

	perm := types.PermissionFromMode(iofs.FileMode(mode).Perm())
	ws, err := n.bridge.fsys.Create(ctx, p, filesystem.CreateOptions{Permission: &perm})
	if err != nil {
		return nil, nil, 0, ToErrno(err)
	}
	st, errno := n.bridge.status(ctx, p)
	if errno != 0 {
		_ = ws.Close()
		return nil, nil, 0, errno
	}
	n.bridge.fillAttr(st, &out.Attr)
	return n.newChild(ctx, p, st), newWriteHandle(n.bridge, ws), fuse.FOPEN_DIRECT_IO, 0
}

// Open opens a regular file. Read-only opens get a read stream; writers get a truncating
// stream for O_TRUNC and an appending stream otherwise.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	access := int(flags) & syscall.O_ACCMODE
	if access == syscall.O_RDONLY {
		rs, err := n.bridge.fsys.Open(ctx, n.path, 0)
		if err != nil {
			return nil, 0, ToErrno(err)
		}
		return newReadHandle(n.bridge, rs), 0, 0
	}

	if n.bridge.readOnly {
		return nil, 0, syscall.EROFS
	}

	var (
		ws  *filesystem.WriteStream
		err error
	)
	if int(flags)&syscall.O_TRUNC != 0 {
		ws, err = n.bridge.fsys.Create(ctx, n.path, filesystem.CreateOptions{Overwrite: true})
	} else {
		ws, err = n.bridge.fsys.Append(ctx, n.path, 0)
	}
	if err != nil {
		return nil, 0, ToErrno(err)
	}
	return newWriteHandle(n.bridge, ws), fuse.FOPEN_DIRECT_IO, 0
}

// Unlink removes a file.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name, false)
}

// Rmdir removes an empty directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name, true)
}

func (n *Node) remove(ctx context.Context, name string, dir bool) syscall.Errno {
	if n.bridge.readOnly {
		return syscall.EROFS
	}
	p, errno := n.child(name)
	if errno != 0 {
		return errno
	}
	st, err := n.bridge.fsys.Stat(ctx, p)
	if err != nil {
		return ToErrno(err)
	}
	switch {
	case dir && !st.IsDir:
		return syscall.ENOTDIR
	case !dir && st.IsDir:
		return syscall.EISDIR
	}

	ok, err := n.bridge.fsys.Delete(ctx, p, false)
	if err != nil {
		return ToErrno(err)
	}
	if !ok {
		return syscall.EIO
	}
	return 0
}

// Rename moves a child of n to newName under newParent. Exchange and no-replace flags are
// not supported.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if n.bridge.readOnly {
		return syscall.EROFS
	}
	if flags != 0 {
		return syscall.ENOTSUP
	}
	parent, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	src, errno := n.child(name)
	if errno != 0 {
		return errno
	}
	dst, errno := parent.child(newName)
	if errno != 0 {
		return errno
	}
	if _, err := n.bridge.fsys.Stat(ctx, src); err != nil {
		return ToErrno(err)
	}

	renamed, err := n.bridge.fsys.Rename(ctx, src, dst)
	if err != nil {
		return ToErrno(err)
	}
	if !renamed {
		return syscall.EIO
	}
	return 0
}

// FileHandle is an open file: either a read stream or a write stream, never both.
type FileHandle struct {
	mu     sync.Mutex
	bridge *bridge
	reader *filesystem.ReadStream
	writer *filesystem.WriteStream
	opened time.Time
}

var (
	_ = (fs.FileReader)((*FileHandle)(nil))
	_ = (fs.FileWriter)((*FileHandle)(nil))
	_ = (fs.FileFlusher)((*FileHandle)(nil))
	_ = (fs.FileReleaser)((*FileHandle)(nil))
)

func newReadHandle(b *bridge, rs *filesystem.ReadStream) *FileHandle {
	return &FileHandle{bridge: b, reader: rs, opened: time.Now()}
}

func newWriteHandle(b *bridge, ws *filesystem.WriteStream) *FileHandle {
	return &FileHandle{bridge: b, writer: ws, opened: time.Now()}
}

// Read serves a positioned read without moving the stream.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if fh.reader == nil {
		return nil, syscall.EBADF
	}
	fh.mu.Lock()
	defer fh.mu.Unlock()

	n, err := fh.reader.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write appends data at the current end of the stream. Writes at any other offset fail
// with ENOTSUP.
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if fh.writer == nil {
		return 0, syscall.EBADF
	}
	fh.mu.Lock()
	defer fh.mu.Unlock()

	n, err := fh.writer.WriteAt(data, off)
	if err != nil {
		return safeIntToUint32(n), ToErrno(err)
	}
	return safeIntToUint32(n), 0
}

// Flush pushes buffered writes to disk.
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	if fh.writer == nil {
		return 0
	}
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if err := fh.writer.Flush(); err != nil && !stderr.Is(err, iofs.ErrClosed) {
		return ToErrno(err)
	}
	return 0
}

// Release closes the underlying stream.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	var (
		err   error
		path  types.Path
		bytes int64
	)
	if fh.reader != nil {
		path, bytes = fh.reader.Path(), fh.reader.BytesRead()
		err = fh.reader.Close()
	}
	if fh.writer != nil {
		path, bytes = fh.writer.Path(), fh.writer.BytesWritten()
		err = fh.writer.Close()
	}
	fh.bridge.logger.Debug("handle released", map[string]interface{}{
		"path":     path.String(),
		"bytes":    bytes,
		"duration": time.Since(fh.opened).String(),
	})
	if err != nil {
		return ToErrno(err)
	}
	return 0
}

// ToErrno maps a filesystem error to the errno returned to the kernel.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidPath, errors.ErrCodeInvalidArgument, errors.ErrCodeNegativeSeek,
		errors.ErrCodeMissingIdentity, errors.ErrCodeUnknownPrincipal:
		return syscall.EINVAL
	case errors.ErrCodeFileNotFound:
		return syscall.ENOENT
	case errors.ErrCodeFileAlreadyExists:
		return syscall.EEXIST
	case errors.ErrCodeParentNotDirectory, errors.ErrCodeDestinationIsFile, errors.ErrCodeNotDirectory:
		return syscall.ENOTDIR
	case errors.ErrCodeDirectoryNotEmpty:
		return syscall.ENOTEMPTY
	case errors.ErrCodeCrossDomainMismatch:
		return syscall.EPERM
	case errors.ErrCodeUnsupported:
		return syscall.ENOTSUP
	}

	if stderr.Is(err, iofs.ErrClosed) {
		return syscall.EBADF
	}
	var errno syscall.Errno
	if stderr.As(err, &errno) {
		return errno
	}
	if stderr.Is(err, iofs.ErrPermission) {
		return syscall.EACCES
	}
	return syscall.EIO
}
