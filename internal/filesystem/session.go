package filesystem

import (
	"context"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

// Session carries one caller's working directory. Every method resolves its path
// arguments once and hands absolute paths to the FileSystem. A Session is not safe for
// concurrent use; create one per caller.
type Session struct {
	fs *FileSystem
	wd types.Path
}

// WorkingDirectory returns the current working directory.
func (s *Session) WorkingDirectory() types.Path {
	return s.wd
}

// Resolve resolves path against the working directory.
func (s *Session) Resolve(path string) (types.Path, error) {
	return s.fs.resolver.ResolveString(path, s.wd)
}

// SetWorkingDirectory changes the working directory. The target must be an existing
// directory.
func (s *Session) SetWorkingDirectory(ctx context.Context, path string) error {
	p, err := s.Resolve(path)
	if err != nil {
		return err
	}
	st, err := s.fs.Stat(ctx, p)
	if err != nil {
		return err
	}
	if !st.IsDir {
		return errors.NewError(errors.ErrCodeNotDirectory, "working directory must be a directory").
			WithOperation("setWorkingDirectory").
			WithPath(p.String())
	}
	s.wd = p
	return nil
}

func (s *Session) Open(ctx context.Context, path string, bufferSize int) (*ReadStream, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(ctx, p, bufferSize)
}

func (s *Session) Create(ctx context.Context, path string, opts CreateOptions) (*WriteStream, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.fs.Create(ctx, p, opts)
}

func (s *Session) Append(ctx context.Context, path string, bufferSize int) (*WriteStream, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.fs.Append(ctx, p, bufferSize)
}

func (s *Session) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return false, err
	}
	return s.fs.Delete(ctx, p, recursive)
}

func (s *Session) Rename(ctx context.Context, src, dst string) (bool, error) {
	from, err := s.Resolve(src)
	if err != nil {
		return false, err
	}
	to, err := s.Resolve(dst)
	if err != nil {
		return false, err
	}
	return s.fs.Rename(ctx, from, to)
}

func (s *Session) Mkdirs(ctx context.Context, path string) (bool, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return false, err
	}
	return s.fs.Mkdirs(ctx, p)
}

func (s *Session) Stat(ctx context.Context, path string) (types.FileStatus, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return types.FileStatus{}, err
	}
	return s.fs.Stat(ctx, p)
}

func (s *Session) StatResolved(ctx context.Context, path string) (types.FileStatus, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return types.FileStatus{}, err
	}
	return s.fs.StatResolved(ctx, p)
}

func (s *Session) ListStatus(ctx context.Context, path string) ([]types.FileStatus, error) {
	p, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.fs.ListStatus(ctx, p)
}

func (s *Session) SetOwner(ctx context.Context, path, username, groupname string) error {
	p, err := s.Resolve(path)
	if err != nil {
		return err
	}
	return s.fs.SetOwner(ctx, p, username, groupname)
}
