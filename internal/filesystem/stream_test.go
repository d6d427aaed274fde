package filesystem

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func openStream(t *testing.T, content string, observer types.StreamObserver) *ReadStream {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	writeFile(t, backend.Root(), "data", content)
	f, err := backend.OpenRead(mustPath(t, "/data"))
	require.NoError(t, err)
	rs := newReadStream(mustPath(t, "/data"), f, 4, observer)
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func TestReadStream_Sequential(t *testing.T) {
	t.Parallel()

	rs := openStream(t, alphabet, nil)
	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, alphabet, string(data))
	assert.Equal(t, int64(26), rs.Pos())

	_, err = rs.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestReadStream_Seek(t *testing.T) {
	t.Parallel()

	rs := openStream(t, alphabet, nil)

	for _, k := range []int64{10, 0, 25, 3} {
		require.NoError(t, rs.SeekTo(k))
		b, err := rs.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, alphabet[k], b, "byte at %d", k)
		assert.Equal(t, k+1, rs.Pos())
	}

	err := rs.SeekTo(-1)
	assert.Equal(t, errors.ErrCodeNegativeSeek, errors.CodeOf(err))
	assert.Equal(t, int64(4), rs.Pos(), "a failed seek leaves the cursor alone")

	require.NoError(t, rs.SeekTo(100))
	_, err = rs.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestReadStream_Seeker(t *testing.T) {
	t.Parallel()

	rs := openStream(t, alphabet, nil)
	var seeker io.ReadSeeker = rs

	tests := []struct {
		name   string
		offset int64
		whence int
		want   int64
		next   byte
	}{
		{"start", 2, io.SeekStart, 2, 'c'},
		{"current", 4, io.SeekCurrent, 7, 'h'},
		{"end", -1, io.SeekEnd, 25, 'z'},
		{"back from current", -26, io.SeekCurrent, 0, 'a'},
	}
	for _, tt := range tests {
		pos, err := seeker.Seek(tt.offset, tt.whence)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, pos, tt.name)
		b, err := rs.ReadByte()
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.next, b, tt.name)
	}

	pos, err := seeker.Seek(-5, io.SeekCurrent)
	assert.Equal(t, errors.ErrCodeNegativeSeek, errors.CodeOf(err))
	assert.Equal(t, int64(1), pos, "a failed seek reports the unchanged cursor")

	_, err = seeker.Seek(0, 7)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.CodeOf(err))
}

func TestReadStream_ReadAt(t *testing.T) {
	t.Parallel()

	rs := openStream(t, alphabet, nil)
	require.NoError(t, rs.SeekTo(5))

	buf := make([]byte, 3)
	n, err := rs.ReadAt(buf, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "uvw", string(buf))
	assert.Equal(t, int64(5), rs.Pos(), "positioned reads do not move the cursor")

	b, err := rs.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('f'), b)

	n, err = rs.ReadAt(buf, 24)
	assert.Equal(t, 2, n)
	assert.Equal(t, io.EOF, err)

	n, err = rs.ReadAt(buf, 26)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	_, err = rs.ReadAt(buf, -1)
	assert.Equal(t, errors.ErrCodeNegativeSeek, errors.CodeOf(err))
}

func TestReadStream_SkipAndAvailable(t *testing.T) {
	t.Parallel()

	rs := openStream(t, alphabet, nil)

	avail, err := rs.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(26), avail)

	skipped, err := rs.Skip(10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), skipped)
	b, err := rs.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('k'), b)

	skipped, err = rs.Skip(100)
	require.NoError(t, err)
	assert.Equal(t, int64(15), skipped)
	avail, err = rs.Available()
	require.NoError(t, err)
	assert.Zero(t, avail)

	skipped, err = rs.Skip(-3)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	assert.False(t, rs.SeekToNewSource(0))
}

func TestReadStream_Close(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	rs := openStream(t, alphabet, rec)

	buf := make([]byte, 5)
	_, err := io.ReadFull(rs, buf)
	require.NoError(t, err)
	_, err = rs.ReadAt(buf[:2], 0)
	require.NoError(t, err)

	require.NoError(t, rs.Close())
	require.NoError(t, rs.Close())
	assert.Equal(t, int64(7), rec.streams[types.StreamRead], "observer sees the total once")

	_, err = rs.Read(buf)
	assert.Equal(t, errors.ErrCodeIO, errors.CodeOf(err))
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = rs.ReadByte()
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, rs.SeekTo(0), fs.ErrClosed)
}

func createStream(t *testing.T, observer types.StreamObserver) (*WriteStream, string) {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	f, err := backend.OpenWrite(mustPath(t, "/out"), false, 0o644)
	require.NoError(t, err)
	return newWriteStream(mustPath(t, "/out"), f, false, 0, 4, observer), backend.Root()
}

func TestWriteStream(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	ws, root := createStream(t, rec)
	assert.False(t, ws.Append())

	_, err := io.WriteString(ws, "hello")
	require.NoError(t, err)
	require.NoError(t, ws.WriteByte(' '))
	n, err := ws.WriteAt([]byte("world"), 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(11), ws.Pos())

	n, err = ws.WriteAt([]byte("!"), 0)
	assert.Zero(t, n)
	assert.Equal(t, errors.ErrCodeUnsupported, errors.CodeOf(err))

	require.NoError(t, ws.Flush())
	assert.Equal(t, "hello world", readAll(t, root, "out"))

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	assert.Equal(t, int64(11), ws.BytesWritten())
	assert.Equal(t, int64(11), rec.streams[types.StreamWrite])

	_, err = ws.Write([]byte("late"))
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, ws.WriteByte('x'), fs.ErrClosed)
	assert.ErrorIs(t, ws.Flush(), fs.ErrClosed)
}

func TestWriteStream_CloseFlushes(t *testing.T) {
	t.Parallel()

	ws, root := createStream(t, nil)
	_, err := io.WriteString(ws, "xy")
	require.NoError(t, err)
	assert.Empty(t, readAll(t, root, "out"), "bytes stay buffered until flushed")
	require.NoError(t, ws.Close())
	assert.Equal(t, "xy", readAll(t, root, "out"))
}
