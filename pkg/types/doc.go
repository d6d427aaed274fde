/*
Package types provides the value types and collaborator interfaces shared by every diskvfs
component.

# Paths

Path is the virtual path model. A Path is an ordered list of segments plus an absoluteness flag
and, once qualified, a scheme and authority:

	p, err := types.ParsePath("xdfs:///data/reports/q3.csv")
	p.String()   // "xdfs:///data/reports/q3.csv"
	p.PathPart() // "/data/reports/q3.csv"
	p.Name()     // "q3.csv"

Relative paths keep leading ".." segments until they are joined onto an absolute working
directory; Join fails when a path climbs above the root.

Paths are values. Every method that derives a new Path copies the segment slice, so a Path can be
shared freely once constructed.

# File status

FileStatus is an immutable snapshot of one stat call. Base attributes (length, directory flag,
modification time, block size) are filled when the status is created. Ownership is tracked by an
explicit tri-state:

	NotLoaded   ownership has not been queried
	Loaded      owner, group and permission hold the queried values
	LoadFailed  the query ran and produced no usable ownership

The Owner, Group and Permission accessors report ok=false unless the state is Loaded. Loading is
done by the metadata store, which returns a new FileStatus rather than mutating the original.

# Principals

Principal is a resolved operating-system identity, either a user or a group.

# Collaborators

OperationRecorder, StreamObserver and HealthReporter are the narrow interfaces through which the
filesystem core reports to the metrics collector and the health tracker. All implementations must
be safe for concurrent use.
*/
package types
