package filesystem

import "errors"

var (
	// ErrInvalidArgument is returned for a zero handle, an empty name, or a
	// zero length where one is required.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptSuperblock is returned when the on-disk geometry is impossible.
	ErrCorruptSuperblock = errors.New("corrupt superblock")
	// ErrNoSpace is returned when no free cluster or directory slot is available.
	ErrNoSpace = errors.New("no space left on device")
	// ErrNotFound is returned for an unknown handle or an index past the end
	// of a directory.
	ErrNotFound = errors.New("not found")
	// ErrNotADirectory is returned when a directory operation is applied to a
	// non-directory handle.
	ErrNotADirectory = errors.New("not a directory")
	// ErrNotEmpty is returned by Rmdir when the target still has children.
	ErrNotEmpty = errors.New("directory not empty")
	// ErrUnsupported is returned when a volume is detected whose variant the
	// driver does not implement.
	ErrUnsupported = errors.New("unsupported filesystem")
)
