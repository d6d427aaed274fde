package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/types"
)

func newTestStore(t *testing.T, id IdentityService, codec OwnerCodec) (*MetadataStore, string) {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return NewMetadataStore(backend, id, NewPrincipalResolver(id, codec, nil), 1024, nil), backend.Root()
}

func TestMetadataStore_Stat(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t, newStaticIdentity(), PosixCodec{})
	writeFile(t, root, "dir/file.txt", "hello")

	st, err := store.Stat(bg, mustPath(t, "/dir/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Length)
	assert.False(t, st.IsDir)
	assert.Equal(t, uint16(1), st.BlockReplication)
	assert.Equal(t, uint64(1024), st.BlockSize)
	assert.False(t, st.ModTime.IsZero())
	assert.Equal(t, types.NotLoaded, st.Ownership.State)
	_, ok := st.Owner()
	assert.False(t, ok, "owner must not be readable before loading")

	st, err = store.Stat(bg, mustPath(t, "/dir"))
	require.NoError(t, err)
	assert.True(t, st.IsDir)

	_, err = store.Stat(bg, mustPath(t, "/missing"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))

	_, err = store.Stat(bg, mustPath(t, "/dir/file.txt/below"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err), "a file in the middle of a path reads as missing")
}

func TestMetadataStore_LoadPosix(t *testing.T) {
	t.Parallel()

	store, root := newTestStore(t, newStaticIdentity(), PosixCodec{})
	writeFile(t, root, "a", "x")
	require.NoError(t, os.Chmod(filepath.Join(root, "a"), 0o640))

	st, err := store.Stat(bg, mustPath(t, "/a"))
	require.NoError(t, err)

	loaded, err := store.LoadPermissionInfo(bg, st)
	require.NoError(t, err)
	assert.Equal(t, types.Loaded, loaded.Ownership.State)

	owner, ok := loaded.Owner()
	require.True(t, ok)
	assert.Equal(t, "alice", owner)
	group, _ := loaded.Group()
	assert.Equal(t, "staff", group)
	perm, ok := loaded.Permission()
	require.True(t, ok)
	assert.Equal(t, "0640", perm.Octal())

	assert.Equal(t, types.NotLoaded, st.Ownership.State, "the input snapshot is not modified")
	assert.Equal(t, st.Length, loaded.Length)
}

func TestMetadataStore_LoadACL(t *testing.T) {
	t.Parallel()

	t.Run("owner prefix that is not a group falls back to None", func(t *testing.T) {
		id := &mockIdentity{}
		id.On("OwnerAttribute", mock.Anything).Return(`CORP\alice`, nil)
		id.On("LookupGroup", `CORP\alice`).Return(types.Principal{}, fmt.Errorf("not a group"))

		store, root := newTestStore(t, id, ACLCodec{})
		writeFile(t, root, "a", "x")
		st, err := store.Stat(bg, mustPath(t, "/a"))
		require.NoError(t, err)

		loaded, err := store.LoadPermissionInfo(bg, st)
		require.NoError(t, err)
		owner, _ := loaded.Owner()
		group, _ := loaded.Group()
		assert.Equal(t, "alice", owner)
		assert.Equal(t, `CORP\None`, group)
	})

	t.Run("group owner is recorded as is", func(t *testing.T) {
		id := &mockIdentity{}
		id.On("OwnerAttribute", mock.Anything).Return(`CORP\Admins`, nil)
		id.On("LookupGroup", `CORP\Admins`).Return(corpAdmins, nil)

		store, root := newTestStore(t, id, ACLCodec{})
		writeFile(t, root, "a", "x")
		st, err := store.Stat(bg, mustPath(t, "/a"))
		require.NoError(t, err)

		loaded, err := store.LoadPermissionInfo(bg, st)
		require.NoError(t, err)
		owner, _ := loaded.Owner()
		group, _ := loaded.Group()
		assert.Equal(t, "Admins", owner)
		assert.Equal(t, `CORP\Admins`, group)
	})

	t.Run("malformed owner fails the load", func(t *testing.T) {
		id := &mockIdentity{}
		id.On("OwnerAttribute", mock.Anything).Return("alice", nil)

		store, root := newTestStore(t, id, ACLCodec{})
		writeFile(t, root, "a", "x")
		st, err := store.Stat(bg, mustPath(t, "/a"))
		require.NoError(t, err)

		loaded, err := store.LoadPermissionInfo(bg, st)
		assert.Equal(t, errors.ErrCodeIO, errors.CodeOf(err))
		assert.Equal(t, types.LoadFailed, loaded.Ownership.State)
	})
}

func TestMetadataStore_LoadFailures(t *testing.T) {
	t.Parallel()

	t.Run("unsupported platform degrades silently", func(t *testing.T) {
		id := &mockIdentity{}
		id.On("OwnerAttribute", mock.Anything).Return("", errors.ErrUnsupported)

		store, root := newTestStore(t, id, PosixCodec{})
		writeFile(t, root, "a", "x")
		st, err := store.Stat(bg, mustPath(t, "/a"))
		require.NoError(t, err)

		loaded, err := store.LoadPermissionInfo(bg, st)
		require.NoError(t, err)
		assert.Equal(t, types.LoadFailed, loaded.Ownership.State)
		_, ok := loaded.Permission()
		assert.False(t, ok)

		again, err := store.LoadPermissionInfo(bg, loaded)
		require.NoError(t, err)
		assert.Equal(t, loaded, again)
		id.AssertNumberOfCalls(t, "OwnerAttribute", 1)
	})

	t.Run("native failure is escalated", func(t *testing.T) {
		id := &mockIdentity{}
		id.On("OwnerAttribute", mock.Anything).Return("", os.ErrPermission)

		store, root := newTestStore(t, id, PosixCodec{})
		writeFile(t, root, "a", "x")
		st, err := store.Stat(bg, mustPath(t, "/a"))
		require.NoError(t, err)

		loaded, err := store.LoadPermissionInfo(bg, st)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeIO, errors.CodeOf(err))
		assert.ErrorIs(t, err, os.ErrPermission)
		assert.Equal(t, types.LoadFailed, loaded.Ownership.State)
	})
}

func TestMetadataStore_LoadOnce(t *testing.T) {
	t.Parallel()

	id := &mockIdentity{}
	id.On("OwnerAttribute", mock.Anything).Return("alice:staff", nil)

	store, root := newTestStore(t, id, PosixCodec{})
	writeFile(t, root, "a", "x")
	st, err := store.Stat(bg, mustPath(t, "/a"))
	require.NoError(t, err)

	loaded, err := store.LoadPermissionInfo(bg, st)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := store.LoadPermissionInfo(bg, loaded)
		require.NoError(t, err)
		assert.Equal(t, loaded, again)
	}
	id.AssertNumberOfCalls(t, "OwnerAttribute", 1)

	reset := store.Invalidate(loaded)
	assert.Equal(t, types.NotLoaded, reset.Ownership.State)
	_, err = store.LoadPermissionInfo(bg, reset)
	require.NoError(t, err)
	id.AssertNumberOfCalls(t, "OwnerAttribute", 2)
}
