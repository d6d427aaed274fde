package filesystem

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskvfs/diskvfs/pkg/errors"
)

// linkOutside creates root/<name> pointing at a fresh directory outside root that holds
// a file named secret.
func linkOutside(t *testing.T, root, name string) string {
	t.Helper()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("outside-root"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, name)))
	return outside
}

func TestLocalBackend_NativePath(t *testing.T) {
	t.Parallel()

	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	root := backend.Root()
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink("real", filepath.Join(root, "alias")))
	linkOutside(t, root, "escape")

	tests := []struct {
		name    string
		path    string
		want    string
		escapes bool
	}{
		{"root", "/", root, false},
		{"plain", "/real", filepath.Join(root, "real"), false},
		{"missing tail", "/real/a/b", filepath.Join(root, "real", "a", "b"), false},
		{"link inside root", "/alias/x", filepath.Join(root, "real", "x"), false},
		{"link leaving root", "/escape", "", true},
		{"below link leaving root", "/escape/secret", "", true},
		{"missing below link leaving root", "/escape/new/file", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backend.NativePath(mustPath(t, tt.path))
			if tt.escapes {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidPath, errors.CodeOf(err))
				assert.ErrorIs(t, err, ErrEscapesRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalBackend_SymlinkContainment(t *testing.T) {
	t.Parallel()

	t.Run("open through an escaping link is refused", func(t *testing.T) {
		fsys, root := newTestFS(t, newStaticIdentity(), PosixCodec{}, Options{})
		linkOutside(t, root, "link")

		rs, err := fsys.Open(bg, mustPath(t, "/link/secret"), 0)
		if rs != nil {
			data, _ := io.ReadAll(rs)
			_ = rs.Close()
			t.Fatalf("read %q through a link outside the root", data)
		}
		assert.Equal(t, errors.ErrCodeInvalidPath, errors.CodeOf(err))
	})

	t.Run("stat and create through an escaping link are refused", func(t *testing.T) {
		fsys, root := newTestFS(t, newStaticIdentity(), PosixCodec{}, Options{})
		outside := linkOutside(t, root, "link")

		_, err := fsys.Stat(bg, mustPath(t, "/link/secret"))
		assert.Equal(t, errors.ErrCodeInvalidPath, errors.CodeOf(err))

		_, err = fsys.Create(bg, mustPath(t, "/link/planted"), CreateOptions{Overwrite: true})
		require.Error(t, err)
		assert.NoFileExists(t, filepath.Join(outside, "planted"))
	})

	t.Run("listing skips escaping links", func(t *testing.T) {
		fsys, root := newTestFS(t, newStaticIdentity(), PosixCodec{}, Options{})
		writeFile(t, root, "kept.txt", "x")
		linkOutside(t, root, "link")

		list, err := fsys.ListStatus(bg, mustPath(t, "/"))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "kept.txt", list[0].Path.Name())
	})

	t.Run("links inside the root are followed", func(t *testing.T) {
		fsys, root := newTestFS(t, newStaticIdentity(), PosixCodec{}, Options{})
		writeFile(t, root, "data/f.txt", "inside")
		require.NoError(t, os.Symlink("data", filepath.Join(root, "alias")))

		rs, err := fsys.Open(bg, mustPath(t, "/alias/f.txt"), 0)
		require.NoError(t, err)
		defer rs.Close()
		data, err := io.ReadAll(rs)
		require.NoError(t, err)
		assert.Equal(t, "inside", string(data))
	})
}

func TestTreeMutator_DeleteSymlink(t *testing.T) {
	t.Parallel()

	t.Run("link to a non-empty directory is removed without recursion", func(t *testing.T) {
		tree, root := newTestTree(t)
		require.NoError(t, os.MkdirAll(filepath.Join(root, "dir", "sub"), 0o755))
		require.NoError(t, os.Symlink("dir", filepath.Join(root, "link")))

		ok, err := tree.Delete(bg, mustPath(t, "/link"), false)
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = os.Lstat(filepath.Join(root, "link"))
		assert.True(t, os.IsNotExist(err))
		assert.DirExists(t, filepath.Join(root, "dir", "sub"))
	})

	t.Run("link leaving the root is removed and its target kept", func(t *testing.T) {
		tree, root := newTestTree(t)
		outside := linkOutside(t, root, "link")

		ok, err := tree.Delete(bg, mustPath(t, "/link"), true)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.FileExists(t, filepath.Join(outside, "secret"))
	})

	t.Run("dangling link is removed", func(t *testing.T) {
		tree, root := newTestTree(t)
		require.NoError(t, os.Symlink("nowhere", filepath.Join(root, "dangling")))

		ok, err := tree.Delete(bg, mustPath(t, "/dangling"), false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
