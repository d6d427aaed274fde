/*
Package fuse serves a diskvfs FileSystem to the kernel through go-fuse.

Every node carries its virtual path and forwards to the FileSystem, so the mounted tree
follows the same rules as the API and the CLI: paths are validated segment by segment,
tree changes go through the structural checks of the filesystem core, and ownership
comes from the configured identity service.

# Operations

	Lookup, Getattr   Stat + LoadPermissionInfo (uid/gid resolved when known)
	Readdir           ListStatus
	Mkdir             Mkdirs, EEXIST when the entry exists
	Create            Create without overwrite
	Open              read stream, or a truncating/appending write stream
	Unlink, Rmdir     Delete, never recursive
	Rename            Rename, flags unsupported
	Setattr           truncation to zero and chown

Write handles are sequential: a write at any offset other than the current end of the
stream fails with ENOTSUP. Errors are mapped to errnos by ToErrno.

# Mounting

	mgr := fuse.NewMountManager(fsys, cfg.FUSE, logger)
	if err := mgr.Mount(ctx); err != nil {
		return err
	}
	mgr.Wait()

Cancelling ctx unmounts. MountWatcher compares the manager's state against
/proc/mounts and feeds the "mount" health component.
*/
package fuse
