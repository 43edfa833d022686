package disklru

import (
	"bufio"
	"container/list"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/imgcache/codec"
	"github.com/hupe1980/imgcache/internal/fs"
	ihash "github.com/hupe1980/imgcache/internal/hash"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("disklru: store closed")
	// ErrNotFound is returned by Get for missing entries.
	ErrNotFound = errors.New("disklru: entry not found")
	// ErrInvalidKey is returned for keys outside [a-z0-9_-]{1,128}.
	ErrInvalidKey = errors.New("disklru: invalid key")
	// ErrEditInProgress is returned when an entry already has an open editor.
	ErrEditInProgress = errors.New("disklru: entry is being edited")
	// ErrEditorDone is returned when an editor is used after commit or abort.
	ErrEditorDone = errors.New("disklru: editor already finished")
	// ErrCorruptJournal is returned when the journal cannot be replayed.
	ErrCorruptJournal = errors.New("disklru: corrupt journal")
	// ErrCorruptEntry is returned by Get when a data file fails its checksum.
	ErrCorruptEntry = errors.New("disklru: entry checksum mismatch")
)

const trailerSize = 4

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,128}$`)

func validKey(key string) bool { return keyPattern.MatchString(key) }

// Options configures a Store.
type Options struct {
	// MaxSize is the byte quota over all data files, trailers included.
	MaxSize int64

	// AppVersion is recorded in the journal. Opening a store written with a
	// different version discards its contents.
	AppVersion int

	// FS defaults to fs.Default.
	FS fs.FileSystem

	// Codec encodes journal records. Defaults to codec.Default.
	Codec codec.Codec

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnEvict is called for every entry removed to stay within MaxSize.
	OnEvict func(key string, size int64)
}

// Store is a journaled LRU of byte values bounded by a byte quota.
// It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	dir    string
	opts   Options
	fs     fs.FileSystem
	codec  codec.Codec
	logger *slog.Logger

	size         int64
	entries      map[string]*list.Element
	lru          *list.List // front is most recently used
	journal      fs.File
	jw           *bufio.Writer
	redundantOps int
	closed       bool
}

type entry struct {
	key      string
	size     int64
	readable bool
	editor   *Editor
}

// Open opens the store in dir, creating it if needed.
func Open(dir string, opts Options) (*Store, error) {
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("disklru: max size must be positive, got %d", opts.MaxSize)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		dir:     dir,
		opts:    opts,
		fs:      opts.FS,
		codec:   opts.Codec,
		logger:  opts.Logger.With("component", "disklru"),
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disklru: create dir: %w", err)
	}

	// A backup only survives if the process died during a journal rewrite.
	if _, err := s.fs.Stat(s.path(journalBackupFile)); err == nil {
		if _, err := s.fs.Stat(s.path(journalFile)); err == nil {
			_ = s.fs.Remove(s.path(journalBackupFile))
		} else if err := s.fs.Rename(s.path(journalBackupFile), s.path(journalFile)); err != nil {
			return nil, fmt.Errorf("disklru: restore journal backup: %w", err)
		}
	}

	if _, err := s.fs.Stat(s.path(journalFile)); err == nil {
		truncated, err := s.readJournal()
		switch {
		case err == nil && truncated:
			if err := s.rebuildJournal(); err != nil {
				return nil, fmt.Errorf("disklru: rewrite journal: %w", err)
			}
			return s, nil
		case err == nil:
			if err := s.openJournal(); err != nil {
				return nil, fmt.Errorf("disklru: open journal: %w", err)
			}
			return s, nil
		default:
			s.logger.Warn("discarding unreadable store", "dir", dir, "error", err)
			if err := s.deleteContents(); err != nil {
				return nil, fmt.Errorf("disklru: reset store: %w", err)
			}
			s.entries = make(map[string]*list.Element)
			s.lru.Init()
			s.size = 0
		}
	}

	if err := s.rebuildJournal(); err != nil {
		return nil, fmt.Errorf("disklru: create journal: %w", err)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// MaxSize returns the byte quota.
func (s *Store) MaxSize() int64 { return s.opts.MaxSize }

// Size returns the bytes used by committed entries.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Len returns the number of readable entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, el := range s.entries {
		if el.Value.(*entry).readable {
			n++
		}
	}
	return n
}

// Keys returns readable keys, most recently used first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for el := s.lru.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*entry); e.readable {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// IsClosed reports whether Close or Delete was called.
func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Get returns the value stored under key and marks it most recently used.
func (s *Store) Get(key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	el, ok := s.entries[key]
	if !ok || !el.Value.(*entry).readable {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	s.lru.MoveToFront(el)
	s.redundantOps++
	if err := s.appendRecord(record{Op: opRead, Key: key}, false); err != nil {
		s.logger.Warn("journal append failed", "key", key, "error", err)
	}
	s.maybeCompact()
	s.mu.Unlock()

	data, err := s.fs.ReadFile(s.cleanPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_, _ = s.Remove(key)
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(data) < trailerSize {
		_, _ = s.Remove(key)
		return nil, fmt.Errorf("%w: %q is truncated", ErrCorruptEntry, key)
	}
	payload := data[:len(data)-trailerSize]
	if ihash.CRC32C(payload) != binary.LittleEndian.Uint32(data[len(data)-trailerSize:]) {
		_, _ = s.Remove(key)
		return nil, fmt.Errorf("%w: %q", ErrCorruptEntry, key)
	}
	return payload, nil
}

// Contains reports whether a readable entry exists for key without
// touching its access order.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[key]
	return ok && el.Value.(*entry).readable
}

// Edit opens an editor for key. Only one editor per key may be open.
func (s *Store) Edit(key string) (*Editor, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	el, ok := s.entries[key]
	if ok && el.Value.(*entry).editor != nil {
		return nil, ErrEditInProgress
	}

	// Flush DIRTY immediately so a crash never leaves an untracked file.
	if err := s.appendRecord(record{Op: opDirty, Key: key}, true); err != nil {
		return nil, fmt.Errorf("disklru: journal: %w", err)
	}

	f, err := s.fs.OpenFile(s.dirtyPath(key), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		// Keep the journal consistent with the files on disk.
		_ = s.appendRecord(record{Op: opRemove, Key: key}, true)
		if ok && el.Value.(*entry).readable {
			_ = s.appendRecord(record{Op: opClean, Key: key, Size: el.Value.(*entry).size}, true)
		}
		return nil, fmt.Errorf("disklru: open %s: %w", key, err)
	}

	if !ok {
		el = s.lru.PushFront(&entry{key: key})
		s.entries[key] = el
	}
	e := el.Value.(*entry)
	ed := &Editor{s: s, e: e, f: f, crc: ihash.NewCRC32C()}
	e.editor = ed
	return ed, nil
}

// Remove deletes the entry for key. It reports whether an entry existed.
func (s *Store) Remove(key string) (bool, error) {
	if !validKey(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	el, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if el.Value.(*entry).editor != nil {
		return false, ErrEditInProgress
	}
	if err := s.removeLocked(el); err != nil {
		return false, err
	}
	s.maybeCompact()
	return true, nil
}

// removeLocked must be called with s.mu held.
func (s *Store) removeLocked(el *list.Element) error {
	e := el.Value.(*entry)
	if err := s.fs.Remove(s.cleanPath(e.key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("disklru: remove %s: %w", e.key, err)
	}
	s.size -= e.size
	s.redundantOps++
	s.lru.Remove(el)
	delete(s.entries, e.key)
	if err := s.appendRecord(record{Op: opRemove, Key: e.key}, true); err != nil {
		s.logger.Warn("journal append failed", "key", e.key, "error", err)
	}
	return nil
}

// trimToSize must be called with s.mu held.
func (s *Store) trimToSize() {
	for el := s.lru.Back(); el != nil && s.size > s.opts.MaxSize; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.editor == nil && e.readable {
			size := e.size
			if err := s.removeLocked(el); err != nil {
				s.logger.Warn("eviction failed", "key", e.key, "error", err)
			} else if s.opts.OnEvict != nil {
				s.opts.OnEvict(e.key, size)
			}
		}
		el = prev
	}
}

// Flush trims the store to its quota and syncs the journal.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.trimToSize()
	if s.jw == nil {
		return nil
	}
	if err := s.jw.Flush(); err != nil {
		return err
	}
	return s.journal.Sync()
}

// Close aborts open editors and closes the journal. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.closed {
		return nil
	}
	for _, el := range s.entries {
		if ed := el.Value.(*entry).editor; ed != nil {
			ed.done.Store(true)
			_ = ed.f.Close()
			_ = s.fs.Remove(s.dirtyPath(ed.e.key))
			ed.e.editor = nil
		}
	}
	s.trimToSize()
	s.closed = true

	if s.journal == nil {
		return nil
	}
	var firstErr error
	if err := s.jw.Flush(); err != nil {
		firstErr = err
	}
	if err := s.journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.journal, s.jw = nil, nil
	return firstErr
}

// Delete closes the store and removes every file in its directory.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeLocked(); err != nil {
		s.logger.Warn("close before delete failed", "error", err)
	}
	s.entries = make(map[string]*list.Element)
	s.lru.Init()
	s.size = 0
	return s.deleteContents()
}

func (s *Store) deleteContents() error {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if err := s.fs.Remove(s.path(de.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Editor writes a new value for one entry. Call Commit to publish the value
// or Abort to discard it. An editor is not safe for concurrent use.
type Editor struct {
	s       *Store
	e       *entry
	f       fs.File
	crc     hash.Hash32
	written int64
	err     error
	done    atomic.Bool
}

// Write appends p to the pending value.
func (ed *Editor) Write(p []byte) (int, error) {
	if ed.done.Load() {
		return 0, ErrEditorDone
	}
	n, err := ed.f.Write(p)
	_, _ = ed.crc.Write(p[:n])
	ed.written += int64(n)
	if err != nil && ed.err == nil {
		ed.err = err
	}
	return n, err
}

// Commit publishes the written value, evicting older entries if the store
// grows beyond its quota.
func (ed *Editor) Commit() error {
	if !ed.done.CompareAndSwap(false, true) {
		return ErrEditorDone
	}
	if ed.err != nil {
		_ = ed.f.Close()
		_ = ed.s.completeEdit(ed, false)
		return ed.err
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], ed.crc.Sum32())
	_, err := ed.f.Write(trailer[:])
	if err == nil {
		err = ed.f.Sync()
	}
	if cerr := ed.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = ed.s.completeEdit(ed, false)
		return err
	}
	return ed.s.completeEdit(ed, true)
}

// Abort discards the written value. Aborting a finished editor is a no-op.
func (ed *Editor) Abort() error {
	if !ed.done.CompareAndSwap(false, true) {
		return nil
	}
	_ = ed.f.Close()
	return ed.s.completeEdit(ed, false)
}

func (s *Store) completeEdit(ed *Editor, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := ed.e
	if s.closed || e.editor != ed {
		_ = s.fs.Remove(s.dirtyPath(e.key))
		return ErrClosed
	}
	e.editor = nil

	var renameErr error
	if success {
		if renameErr = s.fs.Rename(s.dirtyPath(e.key), s.cleanPath(e.key)); renameErr != nil {
			success = false
		}
	}
	if !success {
		_ = s.fs.Remove(s.dirtyPath(e.key))
	}

	s.redundantOps++
	el := s.entries[e.key]
	if success {
		newSize := ed.written + trailerSize
		s.size += newSize - e.size
		e.size = newSize
		e.readable = true
		s.lru.MoveToFront(el)
		if err := s.appendRecord(record{Op: opClean, Key: e.key, Size: e.size}, true); err != nil {
			s.logger.Warn("journal append failed", "key", e.key, "error", err)
		}
	} else if e.readable {
		if err := s.appendRecord(record{Op: opClean, Key: e.key, Size: e.size}, true); err != nil {
			s.logger.Warn("journal append failed", "key", e.key, "error", err)
		}
	} else {
		s.lru.Remove(el)
		delete(s.entries, e.key)
		if err := s.appendRecord(record{Op: opRemove, Key: e.key}, true); err != nil {
			s.logger.Warn("journal append failed", "key", e.key, "error", err)
		}
	}

	s.trimToSize()
	s.maybeCompact()
	if renameErr != nil {
		return fmt.Errorf("disklru: publish %s: %w", e.key, renameErr)
	}
	return nil
}
