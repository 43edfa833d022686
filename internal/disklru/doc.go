// Package disklru implements a journaled, size-bounded LRU store of byte
// values on the local filesystem.
//
// # Layout
//
// A store directory holds one journal file plus one data file per entry,
// named "<key>.0". Edits are written to "<key>.0.tmp" and renamed into
// place on commit, so a reader never observes a half-written value. Every
// data file ends with a 4-byte CRC32C trailer that Get verifies.
//
// # Journal
//
// The journal is line-delimited. The first line is a header naming the
// format version, the application version and the record codec. Each
// following line is one record:
//
//	{"op":"DIRTY","key":"3f2a..."}        an edit started
//	{"op":"CLEAN","key":"3f2a...","size":5120}  the edit was committed
//	{"op":"REMOVE","key":"3f2a..."}       the entry was removed or the edit aborted
//	{"op":"READ","key":"3f2a..."}         the entry was accessed
//
// Replaying the journal rebuilds the entry set and its access order. A
// DIRTY record without a matching CLEAN or REMOVE marks an edit that never
// finished; its files are deleted on open. The journal is compacted once the
// number of redundant records reaches [CompactThreshold] and exceeds the
// number of live entries.
//
// A journal that cannot be parsed, or that was written for another
// application version, causes the directory to be wiped and recreated.
package disklru
