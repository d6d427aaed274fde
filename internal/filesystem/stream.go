package filesystem

import (
	"bufio"
	"io"
	"io/fs"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

func closedError(op string, p types.Path) error {
	return errors.NewError(errors.ErrCodeIO, "stream is closed").
		WithOperation(op).
		WithPath(p.String()).
		WithCause(fs.ErrClosed)
}

func nativeError(op string, p types.Path, err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	return errors.FromOS(op, p.String(), err)
}

// ReadStream is a buffered, seekable reader over one native file. It has a single owner
// and must not be shared between goroutines.
type ReadStream struct {
	path      types.Path
	file      File
	reader    *bufio.Reader
	pos       int64
	bytesRead int64
	observer  types.StreamObserver
	closed    bool
}

func newReadStream(p types.Path, f File, bufferSize int, observer types.StreamObserver) *ReadStream {
	return &ReadStream{
		path:     p,
		file:     f,
		reader:   bufio.NewReaderSize(f, bufferSize),
		observer: observer,
	}
}

// Path returns the path the stream was opened on.
func (s *ReadStream) Path() types.Path { return s.path }

// Pos returns the sequential cursor.
func (s *ReadStream) Pos() int64 { return s.pos }

// BytesRead counts every byte delivered, sequential and positioned.
func (s *ReadStream) BytesRead() int64 { return s.bytesRead }

// SeekTo moves the sequential cursor to pos.
func (s *ReadStream) SeekTo(pos int64) error {
	if pos < 0 {
		return errors.Newf(errors.ErrCodeNegativeSeek, "cannot seek to negative offset %d", pos).
			WithOperation("seek").
			WithPath(s.path.String())
	}
	if s.closed {
		return closedError("seek", s.path)
	}
	if _, err := s.file.Seek(pos, io.SeekStart); err != nil {
		return nativeError("seek", s.path, err)
	}
	s.reader.Reset(s.file)
	s.pos = pos
	return nil
}

// Seek implements io.Seeker on top of SeekTo. A target before the start of the file fails
// with a negative seek error.
func (s *ReadStream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		if s.closed {
			return s.pos, closedError("seek", s.path)
		}
		size, err := s.size()
		if err != nil {
			return s.pos, err
		}
		base = size
	default:
		return s.pos, errors.Newf(errors.ErrCodeInvalidArgument, "invalid whence %d", whence).
			WithOperation("seek").
			WithPath(s.path.String())
	}
	if err := s.SeekTo(base + offset); err != nil {
		return s.pos, err
	}
	return s.pos, nil
}

// Read reads sequentially from the cursor.
func (s *ReadStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, closedError("read", s.path)
	}
	n, err := s.reader.Read(p)
	s.pos += int64(n)
	s.bytesRead += int64(n)
	return n, nativeError("read", s.path, err)
}

// ReadByte reads one byte; io.EOF marks the end of the stream.
func (s *ReadStream) ReadByte() (byte, error) {
	if s.closed {
		return 0, closedError("read", s.path)
	}
	b, err := s.reader.ReadByte()
	if err != nil {
		return 0, nativeError("read", s.path, err)
	}
	s.pos++
	s.bytesRead++
	return b, nil
}

// ReadAt reads at off without moving the cursor. An offset at or beyond the end of the
// file reads nothing and returns io.EOF.
func (s *ReadStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Newf(errors.ErrCodeNegativeSeek, "cannot read at negative offset %d", off).
			WithOperation("readAt").
			WithPath(s.path.String())
	}
	if s.closed {
		return 0, closedError("readAt", s.path)
	}
	size, err := s.size()
	if err != nil {
		return 0, err
	}
	if off >= size {
		return 0, io.EOF
	}
	n, err := s.file.ReadAt(p, off)
	s.bytesRead += int64(n)
	return n, nativeError("readAt", s.path, err)
}

// Skip advances the cursor by up to n bytes, stopping at the end of the file.
func (s *ReadStream) Skip(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	remaining, err := s.Available()
	if err != nil {
		return 0, err
	}
	if n > remaining {
		n = remaining
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.SeekTo(s.pos + n); err != nil {
		return 0, err
	}
	return n, nil
}

// Available reports the bytes between the cursor and the end of the file.
func (s *ReadStream) Available() (int64, error) {
	if s.closed {
		return 0, closedError("available", s.path)
	}
	size, err := s.size()
	if err != nil {
		return 0, err
	}
	if size <= s.pos {
		return 0, nil
	}
	return size - s.pos, nil
}

// SeekToNewSource always reports false; a local file has exactly one source.
func (s *ReadStream) SeekToNewSource(int64) bool {
	return false
}

func (s *ReadStream) size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, nativeError("stat", s.path, err)
	}
	return info.Size(), nil
}

// Close releases the native handle. Closing twice is a no-op.
func (s *ReadStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.file.Close()
	if s.observer != nil {
		s.observer.StreamClosed(types.StreamRead, s.bytesRead)
	}
	return nativeError("close", s.path, err)
}

// WriteStream is a buffered sequential writer over one native file. Append mode is fixed
// when the stream is opened. It has a single owner.
type WriteStream struct {
	path     types.Path
	file     File
	writer   *bufio.Writer
	append   bool
	pos      int64
	written  int64
	observer types.StreamObserver
	closed   bool
}

func newWriteStream(p types.Path, f File, append bool, pos int64, bufferSize int, observer types.StreamObserver) *WriteStream {
	return &WriteStream{
		path:     p,
		file:     f,
		writer:   bufio.NewWriterSize(f, bufferSize),
		append:   append,
		pos:      pos,
		observer: observer,
	}
}

// Path returns the path the stream was opened on.
func (s *WriteStream) Path() types.Path { return s.path }

// Append reports whether the stream was opened in append mode.
func (s *WriteStream) Append() bool { return s.append }

// Pos is the file offset the next byte will be written at.
func (s *WriteStream) Pos() int64 { return s.pos }

// BytesWritten counts the bytes accepted by this stream.
func (s *WriteStream) BytesWritten() int64 { return s.written }

func (s *WriteStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, closedError("write", s.path)
	}
	n, err := s.writer.Write(p)
	s.pos += int64(n)
	s.written += int64(n)
	return n, nativeError("write", s.path, err)
}

func (s *WriteStream) WriteByte(c byte) error {
	if s.closed {
		return closedError("write", s.path)
	}
	if err := s.writer.WriteByte(c); err != nil {
		return nativeError("write", s.path, err)
	}
	s.pos++
	s.written++
	return nil
}

// WriteAt only continues the sequential stream: off must equal Pos. Any other offset
// writes nothing and returns an UNSUPPORTED error.
func (s *WriteStream) WriteAt(p []byte, off int64) (int, error) {
	if off != s.pos {
		return 0, errors.Newf(errors.ErrCodeUnsupported,
			"positioned write at %d is not supported, stream is at %d", off, s.pos).
			WithOperation("writeAt").
			WithPath(s.path.String())
	}
	return s.Write(p)
}

// Flush pushes buffered bytes to the native file.
func (s *WriteStream) Flush() error {
	if s.closed {
		return closedError("flush", s.path)
	}
	return nativeError("flush", s.path, s.writer.Flush())
}

// Close flushes and releases the native handle. The handle is closed even when the flush
// fails. Closing twice is a no-op.
func (s *WriteStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	if s.observer != nil {
		s.observer.StreamClosed(types.StreamWrite, s.written)
	}
	if flushErr != nil {
		return nativeError("flush", s.path, flushErr)
	}
	return nativeError("close", s.path, closeErr)
}
