// Package fs provides the filesystem abstraction used by the disk store,
// plus fault injection for tests and a free-space query.
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: wraps another FileSystem and fails writes, reads, syncs
//     or renames for names matching a rule
//
// # Usage
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".0", fs.Fault{CorruptRead: true})
//
// # Free space
//
// [FreeSpace] reports the bytes available to the caller on the filesystem
// holding a path (statfs on Linux and macOS, GetDiskFreeSpaceEx on Windows).
// Other platforms return [ErrFreeSpaceUnsupported].
//
// Operations take no context.Context: local filesystem calls are short and
// cannot be interrupted at the syscall level.
package fs
