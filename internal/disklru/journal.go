package disklru

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/imgcache/codec"
)

const (
	journalFile       = "journal"
	journalTmpFile    = "journal.tmp"
	journalBackupFile = "journal.bkp"

	journalMagic   = "imgcache.disklru"
	journalVersion = 1
)

// CompactThreshold is the number of redundant journal records that triggers
// a rewrite of the journal.
const CompactThreshold = 2000

type op string

const (
	opDirty  op = "DIRTY"
	opClean  op = "CLEAN"
	opRemove op = "REMOVE"
	opRead   op = "READ"
)

type header struct {
	Magic      string `json:"magic"`
	Version    int    `json:"version"`
	AppVersion int    `json:"appVersion"`
	ValueCount int    `json:"valueCount"`
	Codec      string `json:"codec"`
}

type record struct {
	Op   op     `json:"op"`
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
}

// headerCodec parses the header line. The header names the codec used for
// all following records.
var headerCodec codec.Codec = codec.JSON{}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) cleanPath(key string) string { return s.path(key + ".0") }

func (s *Store) dirtyPath(key string) string { return s.path(key + ".0.tmp") }

// readJournal replays the journal into s.entries.
// It returns true when the last line was incomplete and the journal needs a rewrite.
func (s *Store) readJournal() (bool, error) {
	data, err := s.fs.ReadFile(s.path(journalFile))
	if err != nil {
		return false, err
	}

	lines := bytes.Split(data, []byte{'\n'})
	// A non-empty last element has no trailing newline: the process died
	// mid-append. The partial record is dropped.
	truncated := len(lines[len(lines)-1]) > 0
	lines = lines[:len(lines)-1]
	if len(lines) == 0 {
		return false, fmt.Errorf("%w: missing header", ErrCorruptJournal)
	}

	var h header
	if err := headerCodec.Unmarshal(lines[0], &h); err != nil {
		return false, fmt.Errorf("%w: header: %v", ErrCorruptJournal, err)
	}
	if h.Magic != journalMagic || h.Version != journalVersion || h.AppVersion != s.opts.AppVersion || h.ValueCount != 1 {
		return false, fmt.Errorf("%w: unexpected header %+v", ErrCorruptJournal, h)
	}
	recCodec, ok := codec.ByName(h.Codec)
	if !ok {
		return false, fmt.Errorf("%w: unknown codec %q", ErrCorruptJournal, h.Codec)
	}
	// Appends keep the codec the journal was written with until the next rewrite.
	s.codec = recCodec

	dirty := make(map[string]bool)
	for i, line := range lines[1:] {
		var rec record
		if err := recCodec.Unmarshal(line, &rec); err != nil {
			return false, fmt.Errorf("%w: line %d: %v", ErrCorruptJournal, i+2, err)
		}
		if !validKey(rec.Key) {
			return false, fmt.Errorf("%w: line %d: invalid key %q", ErrCorruptJournal, i+2, rec.Key)
		}
		if err := s.replay(rec, dirty); err != nil {
			return false, fmt.Errorf("%w: line %d: %v", ErrCorruptJournal, i+2, err)
		}
	}
	s.redundantOps = len(lines) - 1 - len(s.entries)

	for key := range dirty {
		el := s.entries[key]
		s.lru.Remove(el)
		delete(s.entries, key)
		_ = s.fs.Remove(s.cleanPath(key))
		_ = s.fs.Remove(s.dirtyPath(key))
	}
	for _, el := range s.entries {
		s.size += el.Value.(*entry).size
	}
	return truncated, nil
}

func (s *Store) replay(rec record, dirty map[string]bool) error {
	el, ok := s.entries[rec.Key]
	switch rec.Op {
	case opRemove:
		if ok {
			s.lru.Remove(el)
			delete(s.entries, rec.Key)
		}
		delete(dirty, rec.Key)
	case opDirty:
		if !ok {
			s.entries[rec.Key] = s.lru.PushFront(&entry{key: rec.Key})
		}
		dirty[rec.Key] = true
	case opClean:
		if !ok {
			el = s.lru.PushFront(&entry{key: rec.Key})
			s.entries[rec.Key] = el
		}
		e := el.Value.(*entry)
		e.readable = true
		e.size = rec.Size
		s.lru.MoveToFront(el)
		delete(dirty, rec.Key)
	case opRead:
		if !ok {
			return errors.New("READ for unknown key")
		}
		s.lru.MoveToFront(el)
	default:
		return fmt.Errorf("unknown op %q", rec.Op)
	}
	return nil
}

// rebuildJournal writes a compact journal holding only live entries and
// swaps it in for the current one. Must be called with s.mu held.
func (s *Store) rebuildJournal() error {
	if s.journal != nil {
		_ = s.jw.Flush()
		_ = s.journal.Close()
		s.journal, s.jw = nil, nil
	}

	tmp, err := s.fs.OpenFile(s.path(journalTmpFile), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)

	if err := s.writeLine(w, headerCodec, header{
		Magic:      journalMagic,
		Version:    journalVersion,
		AppVersion: s.opts.AppVersion,
		ValueCount: 1,
		Codec:      s.codec.Name(),
	}); err != nil {
		_ = tmp.Close()
		return err
	}

	// Least recently used first so that replay restores the same order.
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		rec := record{Op: opClean, Key: e.key, Size: e.size}
		if e.editor != nil {
			rec = record{Op: opDirty, Key: e.key}
		} else if !e.readable {
			continue
		}
		if err := s.writeLine(w, s.codec, rec); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if _, err := s.fs.Stat(s.path(journalFile)); err == nil {
		if err := s.fs.Rename(s.path(journalFile), s.path(journalBackupFile)); err != nil {
			return err
		}
	}
	if err := s.fs.Rename(s.path(journalTmpFile), s.path(journalFile)); err != nil {
		return err
	}
	_ = s.fs.Remove(s.path(journalBackupFile))

	s.redundantOps = 0
	return s.openJournal()
}

func (s *Store) openJournal() error {
	f, err := s.fs.OpenFile(s.path(journalFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.journal = f
	s.jw = bufio.NewWriter(f)
	return nil
}

func (s *Store) writeLine(w *bufio.Writer, c codec.Codec, v any) error {
	b, err := c.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// appendRecord must be called with s.mu held.
func (s *Store) appendRecord(rec record, flush bool) error {
	if s.jw == nil {
		if err := s.openJournal(); err != nil {
			return err
		}
	}
	if err := s.writeLine(s.jw, s.codec, rec); err != nil {
		return err
	}
	if flush {
		return s.jw.Flush()
	}
	return nil
}

func (s *Store) compactRequired() bool {
	return s.redundantOps >= CompactThreshold && s.redundantOps >= len(s.entries)
}

// maybeCompact must be called with s.mu held.
func (s *Store) maybeCompact() {
	if !s.compactRequired() {
		return
	}
	if err := s.rebuildJournal(); err != nil {
		s.logger.Warn("journal compaction failed", "dir", s.dir, "error", err)
	}
}
