package fuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/diskvfs/diskvfs/internal/config"
	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// ComponentMount is the health component reported by MountWatcher.
const ComponentMount = "mount"

const (
	defaultCacheTimeout = time.Second
	mntDetach           = 0x2
)

// MountManager manages the lifetime of one kernel mount
type MountManager struct {
	mu      sync.Mutex
	fsys    *filesystem.FileSystem
	config  config.FUSEConfig
	server  *fuse.Server
	mounted bool
	logger  *utils.StructuredLogger
}

// NewMountManager creates a new mount manager
func NewMountManager(fsys *filesystem.FileSystem, cfg config.FUSEConfig, logger *utils.StructuredLogger) *MountManager {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if cfg.FSName == "" {
		cfg.FSName = "diskvfs"
	}
	return &MountManager{
		fsys:   fsys,
		config: cfg,
		logger: logger.WithComponent("fuse").WithField("mount_point", cfg.MountPoint),
	}
}

// Mount mounts the filesystem and serves it in the background. Cancelling ctx unmounts.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return fmt.Errorf("filesystem is already mounted")
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	root := NewRoot(m.fsys, &Config{ReadOnly: m.config.ReadOnly, Logger: m.logger})
	server, err := fs.Mount(m.config.MountPoint, root, m.buildFUSEOptions())
	if err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	m.server = server
	m.mounted = true
	m.logger.Info("mounted", map[string]interface{}{"uri": m.fsys.URI(), "read_only": m.config.ReadOnly})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
			m.server = nil
		}
		m.mu.Unlock()
		m.logger.Info("FUSE server stopped")
	}()

	go func() {
		select {
		case <-ctx.Done():
			if err := m.Unmount(); err != nil {
				m.logger.WithError(err).Debug("unmount on cancel")
			}
		case <-stopped:
		}
	}()

	return nil
}

// Unmount unmounts the filesystem, falling back to a lazy unmount when the mount is busy
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.server == nil {
		return fmt.Errorf("filesystem is not mounted")
	}

	m.logger.Info("unmounting")
	if err := m.server.Unmount(); err != nil {
		m.logger.WithError(err).Warn("normal unmount failed, trying lazy unmount")
		if forceErr := syscall.Unmount(m.config.MountPoint, mntDetach); forceErr != nil {
			return fmt.Errorf("unmount failed: %w (lazy unmount also failed: %v)", err, forceErr)
		}
	}

	m.mounted = false
	m.server = nil
	return nil
}

// IsMounted reports whether this manager holds an active mount
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the configured mount point
func (m *MountManager) MountPoint() string {
	return m.config.MountPoint
}

// Wait blocks until the mount is gone
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()

	if server != nil {
		server.Wait()
	}
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.MountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.MountPoint)
	}

	if root := m.fsys.Root(); pathWithin(root, m.config.MountPoint) {
		return fmt.Errorf("mount point %s is inside the backing root %s", m.config.MountPoint, root)
	}

	entries, err := os.ReadDir(m.config.MountPoint)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.Warn("mount point is not empty")
	}

	if isMountedAt(m.config.MountPoint) {
		return fmt.Errorf("mount point %s is already mounted", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	timeout := defaultCacheTimeout
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:       "diskvfs",
			FsName:     m.config.FSName,
			Debug:      m.config.Debug,
			AllowOther: m.config.AllowOther,
		},
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
	}
	if m.config.ReadOnly {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "ro")
	}
	return opts
}

func pathWithin(base, target string) bool {
	base, errBase := filepath.Abs(base)
	target, errTarget := filepath.Abs(target)
	if errBase != nil || errTarget != nil {
		return false
	}
	_, ok := utils.RelativeTo(base, target)
	return ok
}

// isMountedAt checks /proc/mounts for an exact mount point match.
func isMountedAt(mountPoint string) bool {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false
	}
	return mountTableContains(string(data), mountPoint)
}

func mountTableContains(table, mountPoint string) bool {
	want := filepath.Clean(mountPoint)
	for _, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == want {
			return true
		}
	}
	return false
}

// MountWatcher periodically compares the manager's view of the mount with the kernel
// mount table and reports the result as the "mount" health component.
type MountWatcher struct {
	manager  *MountManager
	reporter types.HealthReporter
	interval time.Duration
	stopCh   chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewMountWatcher creates a new mount watcher
func NewMountWatcher(manager *MountManager, reporter types.HealthReporter, interval time.Duration) *MountWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MountWatcher{
		manager:  manager,
		reporter: reporter,
		interval: interval,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start starts the mount watcher
func (w *MountWatcher) Start() {
	go w.run()
}

// Stop stops the mount watcher and waits for it to exit
func (w *MountWatcher) Stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.stopped
}

func (w *MountWatcher) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check(isMountedAt(w.manager.MountPoint()))
		}
	}
}

func (w *MountWatcher) check(inTable bool) {
	expected := w.manager.IsMounted()
	if expected == inTable {
		if expected && w.reporter != nil {
			w.reporter.RecordSuccess(ComponentMount)
		}
		return
	}
	err := fmt.Errorf("mount state mismatch: manager=%t kernel=%t", expected, inTable)
	w.manager.logger.WithError(err).Warn("mount watcher")
	if w.reporter != nil {
		w.reporter.RecordError(ComponentMount, err)
	}
}
