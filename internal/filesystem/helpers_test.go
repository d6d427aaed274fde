package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diskvfs/diskvfs/pkg/types"
)

// mockIdentity is a testify mock of IdentityService.
type mockIdentity struct {
	mock.Mock
}

func (m *mockIdentity) LookupUser(name string) (types.Principal, error) {
	args := m.Called(name)
	return args.Get(0).(types.Principal), args.Error(1)
}

func (m *mockIdentity) LookupGroup(name string) (types.Principal, error) {
	args := m.Called(name)
	return args.Get(0).(types.Principal), args.Error(1)
}

func (m *mockIdentity) OwnerAttribute(nativePath string) (string, error) {
	args := m.Called(nativePath)
	return args.String(0), args.Error(1)
}

func (m *mockIdentity) SetOwnerAttribute(nativePath string, user, group *types.Principal) error {
	return m.Called(nativePath, user, group).Error(0)
}

// staticIdentity answers from fixed tables.
type staticIdentity struct {
	users    map[string]types.Principal
	groups   map[string]types.Principal
	owner    string
	ownerErr error
	setErr   error

	mu  sync.Mutex
	set []ownerChange
}

type ownerChange struct {
	path  string
	user  *types.Principal
	group *types.Principal
}

func newStaticIdentity() *staticIdentity {
	return &staticIdentity{
		users:  map[string]types.Principal{"alice": {Name: "alice", Kind: types.UserPrincipal, ID: "1000"}},
		groups: map[string]types.Principal{"staff": {Name: "staff", Kind: types.GroupPrincipal, ID: "50"}},
		owner:  "alice:staff",
	}
}

func (s *staticIdentity) LookupUser(name string) (types.Principal, error) {
	if p, ok := s.users[name]; ok {
		return p, nil
	}
	return types.Principal{}, os.ErrNotExist
}

func (s *staticIdentity) LookupGroup(name string) (types.Principal, error) {
	if p, ok := s.groups[name]; ok {
		return p, nil
	}
	return types.Principal{}, os.ErrNotExist
}

func (s *staticIdentity) OwnerAttribute(string) (string, error) {
	return s.owner, s.ownerErr
}

func (s *staticIdentity) SetOwnerAttribute(path string, user, group *types.Principal) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = append(s.set, ownerChange{path: path, user: user, group: group})
	return nil
}

type recordedOp struct {
	name string
	err  error
}

// recorder implements OperationRecorder, StreamObserver and HealthReporter.
type recorder struct {
	mu        sync.Mutex
	ops       []recordedOp
	streams   map[types.StreamKind]int64
	successes map[string]int
	failures  map[string]int
}

func newRecorder() *recorder {
	return &recorder{
		streams:   make(map[types.StreamKind]int64),
		successes: make(map[string]int),
		failures:  make(map[string]int),
	}
}

func (r *recorder) RecordOperation(op string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{name: op, err: err})
}

func (r *recorder) StreamClosed(kind types.StreamKind, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[kind] += bytes
}

func (r *recorder) RecordSuccess(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[component]++
}

func (r *recorder) RecordError(component string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[component]++
}

func (r *recorder) opNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.ops))
	for i, op := range r.ops {
		names[i] = op.name
	}
	return names
}

// newTestFS builds a FileSystem over a fresh temporary directory.
func newTestFS(t *testing.T, identity IdentityService, codec OwnerCodec, opts Options) (*FileSystem, string) {
	t.Helper()
	root := t.TempDir()
	backend, err := NewLocalBackend(root)
	require.NoError(t, err)
	if opts.WorkingDir == "" {
		opts.WorkingDir = "/"
	}
	fsys, err := New(backend, identity, codec, opts)
	require.NoError(t, err)
	return fsys, backend.Root()
}

func mustPath(t *testing.T, s string) types.Path {
	t.Helper()
	p, err := types.ParsePath(s)
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	name := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

var bg = context.Background()
