package filesystem

import (
	stderr "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/retry"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// File is an open native file.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Seeker
	io.Closer
	Stat() (fs.FileInfo, error)
	Chmod(mode fs.FileMode) error
}

// Backend is the native filesystem the core forwards to. Every path it receives is an
// absolute virtual path; errors are returned as the native layer produced them.
type Backend interface {
	// Root is the native directory that backs the virtual root.
	Root() string
	NativePath(p types.Path) (string, error)

	Stat(p types.Path) (fs.FileInfo, error)
	// Lstat describes p itself when it is a symbolic link.
	Lstat(p types.Path) (fs.FileInfo, error)
	ReadDir(p types.Path) ([]fs.DirEntry, error)
	Mkdir(p types.Path, perm fs.FileMode) error
	Remove(p types.Path) error
	RemoveAll(p types.Path) error
	Rename(src, dst types.Path) error

	OpenRead(p types.Path) (File, error)
	// OpenWrite opens p for writing, creating it with perm when missing. It truncates
	// unless append is set.
	OpenWrite(p types.Path, append bool, perm fs.FileMode) (File, error)
}

// ErrEscapesRoot is the cause reported when a symbolic link leads outside the root.
var ErrEscapesRoot = stderr.New("path resolves outside the filesystem root")

// LocalBackend maps virtual paths onto a directory of the local disk. Calls that change
// the tree or open files are retried when they fail with a transient errno.
//
// Symbolic links inside the root are followed only while their target stays inside the
// root. Remove, Rename, Mkdir and Lstat act on a link itself.
type LocalBackend struct {
	root  string
	retry *retry.Retryer
}

// NewLocalBackend creates a backend rooted at root, which must be an existing directory.
func NewLocalBackend(root string) (*LocalBackend, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %q: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", absRoot)
	}
	if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	return &LocalBackend{root: absRoot, retry: retry.New(retry.DefaultConfig())}, nil
}

// WithRetry replaces the retry policy of native calls.
func (b *LocalBackend) WithRetry(r *retry.Retryer) *LocalBackend {
	b.retry = r
	return b
}

// Root returns the absolute native root directory.
func (b *LocalBackend) Root() string {
	return b.root
}

// NativePath converts an absolute virtual path to a native path under the root. Symbolic
// links along the path are resolved, and a result outside the root is rejected.
func (b *LocalBackend) NativePath(p types.Path) (string, error) {
	if !p.Absolute {
		return "", fmt.Errorf("path is not absolute: %s", p)
	}
	name, err := utils.SecureJoin(b.root, p.Segments...)
	if err != nil {
		return "", err
	}

	// Resolve the longest existing prefix; the missing tail cannot contain links.
	existing, rest := name, ""
	for existing != b.root {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = filepath.Dir(existing)
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	resolved = filepath.Join(resolved, rest)
	if _, ok := utils.RelativeTo(b.root, resolved); !ok {
		return "", errors.NewError(errors.ErrCodeInvalidPath, "path resolves outside the filesystem root").
			WithComponent("backend").
			WithPath(p.String()).
			WithCause(ErrEscapesRoot)
	}
	return resolved, nil
}

// linkPath resolves the parent of p and keeps its last element as is.
func (b *LocalBackend) linkPath(p types.Path) (string, error) {
	parent, ok := p.Parent()
	if !ok {
		return b.NativePath(p)
	}
	dir, err := b.NativePath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p.Name()), nil
}

func (b *LocalBackend) Stat(p types.Path) (fs.FileInfo, error) {
	name, err := b.NativePath(p)
	if err != nil {
		return nil, err
	}
	return os.Stat(name)
}

func (b *LocalBackend) Lstat(p types.Path) (fs.FileInfo, error) {
	name, err := b.linkPath(p)
	if err != nil {
		return nil, err
	}
	return os.Lstat(name)
}

// ReadDir returns the directory entries sorted by name.
func (b *LocalBackend) ReadDir(p types.Path) ([]fs.DirEntry, error) {
	name, err := b.NativePath(p)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(name)
}

func (b *LocalBackend) Mkdir(p types.Path, perm fs.FileMode) error {
	name, err := b.linkPath(p)
	if err != nil {
		return err
	}
	return b.retry.Do(func() error { return os.Mkdir(name, perm) })
}

func (b *LocalBackend) Remove(p types.Path) error {
	name, err := b.linkPath(p)
	if err != nil {
		return err
	}
	return b.retry.Do(func() error { return os.Remove(name) })
}

func (b *LocalBackend) RemoveAll(p types.Path) error {
	name, err := b.linkPath(p)
	if err != nil {
		return err
	}
	return b.retry.Do(func() error { return os.RemoveAll(name) })
}

func (b *LocalBackend) Rename(src, dst types.Path) error {
	from, err := b.linkPath(src)
	if err != nil {
		return err
	}
	to, err := b.linkPath(dst)
	if err != nil {
		return err
	}
	return b.retry.Do(func() error { return os.Rename(from, to) })
}

func (b *LocalBackend) OpenRead(p types.Path) (File, error) {
	name, err := b.NativePath(p)
	if err != nil {
		return nil, err
	}
	var f *os.File
	err = b.retry.Do(func() error {
		f, err = os.Open(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *LocalBackend) OpenWrite(p types.Path, append bool, perm fs.FileMode) (File, error) {
	name, err := b.NativePath(p)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	var f *os.File
	err = b.retry.Do(func() error {
		f, err = os.OpenFile(name, flags, perm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
