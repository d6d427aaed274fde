/*
Package filesystem implements the diskvfs core: a virtual filesystem backed by a directory
on the local disk.

The core is assembled from small parts, leaves first:

	Resolver           parses and qualifies paths, joins relative paths onto a working directory
	PrincipalResolver  user and group lookups and owner-change reconciliation
	MetadataStore      status snapshots and the explicit ownership loader
	TreeMutator        mkdirs, delete, rename, create and append with their preconditions
	ReadStream         buffered seekable reads with positioned ReadAt
	WriteStream        buffered sequential writes

FileSystem composes them over a Backend (native file operations) and an IdentityService
(native user database and owner attribute). FileSystem methods accept absolute paths only.
A Session holds one caller's working directory and resolves relative paths exactly once
before calling into FileSystem:

	fsys, err := filesystem.NewFromConfig(cfg, filesystem.Options{Logger: logger})
	if err != nil {
		return err
	}
	session := fsys.NewSession()
	if err := session.SetWorkingDirectory(ctx, "/data"); err != nil {
		return err
	}
	w, err := session.Create(ctx, "reports/q3.csv", filesystem.CreateOptions{})
	...

# Ownership

Ownership is not read by Stat. LoadPermissionInfo queries the identity service and returns a
new FileStatus whose ownership state is Loaded or LoadFailed. A platform without an owner
attribute yields LoadFailed silently; any other failure yields LoadFailed together with a
NATIVE_IO error.

The composite owner string is parsed by an OwnerCodec. PosixCodec reads "user:group".
ACLCodec reads "DOMAIN\NAME", records the raw string as group when it resolves as a group
and "DOMAIN\None" otherwise, and treats DOMAIN as the scope that SetOwner requires a user
and group to share.

# Concurrency

Calls are synchronous and add no locking: concurrent mutations of the same path race exactly
as the native calls do. Streams and sessions have a single owner.
*/
package filesystem
