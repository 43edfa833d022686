package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/imgcache/codec"
	"github.com/hupe1980/imgcache/internal/disklru"
	"github.com/hupe1980/imgcache/internal/fs"
	"github.com/hupe1980/imgcache/internal/hash"
)

// ErrDiskDisabled is returned by DiskTier writes while no store is open.
var ErrDiskDisabled = errors.New("cache: disk tier disabled")

// DiskConfig holds configuration for the disk tier.
type DiskConfig struct {
	// Dir is the directory holding the journal and the entry files.
	Dir string
	// MaxBytes is the quota over all entry files.
	MaxBytes int64
	// AppVersion invalidates stores written by other versions.
	AppVersion int

	FS     fs.FileSystem
	Codec  codec.Codec
	Hasher *hash.KeyHasher
	Logger *slog.Logger

	// FreeSpace reports the bytes available at Dir. Defaults to fs.FreeSpace.
	FreeSpace func(dir string) (uint64, error)
	// OnEvict is called for entries the store drops to stay within MaxBytes.
	OnEvict func(hashedKey string, size int64)
}

// DiskStats is a snapshot of disk tier counters.
type DiskStats struct {
	Enabled bool
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
	Writes  int64
}

// DiskTier is a quota-bounded disk cache of encoded images behind an
// initialization barrier.
//
// Reads block while the tier is starting. The same mutex guards the barrier
// flag, the store handle and every write.
type DiskTier struct {
	cfg    DiskConfig
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	starting bool
	store    *disklru.Store
	opens    int

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

// NewDiskTier creates a disk tier in the starting state. Nothing touches the
// filesystem until Initialize.
func NewDiskTier(cfg DiskConfig) *DiskTier {
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	if cfg.Hasher == nil {
		cfg.Hasher = hash.NewKeyHasher("", nil)
	}
	if cfg.FreeSpace == nil {
		cfg.FreeSpace = fs.FreeSpace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	d := &DiskTier{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "disk_tier", "dir", cfg.Dir),
		starting: true,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Initialize opens the store if there is room for the quota and releases
// waiting readers. It is idempotent: an open store is left untouched.
// Insufficient space or an unusable directory leave the tier disabled.
func (d *DiskTier) Initialize() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store == nil || d.store.IsClosed() {
		d.store = nil
		if err := d.open(); err != nil {
			d.logger.Warn("disk tier disabled", "error", err)
		}
	}
	d.starting = false
	d.cond.Broadcast()
}

// open must be called with d.mu held.
func (d *DiskTier) open() error {
	if d.cfg.Dir == "" || d.cfg.MaxBytes <= 0 {
		return errors.New("no directory or quota configured")
	}
	if err := d.cfg.FS.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	free, err := d.cfg.FreeSpace(d.cfg.Dir)
	switch {
	case errors.Is(err, fs.ErrFreeSpaceUnsupported):
		d.logger.Debug("free space unknown, opening anyway")
	case err != nil:
		return fmt.Errorf("query free space: %w", err)
	case free <= uint64(d.cfg.MaxBytes):
		return fmt.Errorf("free space %d does not exceed quota %d", free, d.cfg.MaxBytes)
	}

	store, err := disklru.Open(d.cfg.Dir, disklru.Options{
		MaxSize:    d.cfg.MaxBytes,
		AppVersion: d.cfg.AppVersion,
		FS:         d.cfg.FS,
		Codec:      d.cfg.Codec,
		Logger:     d.cfg.Logger,
		OnEvict:    d.cfg.OnEvict,
	})
	if err != nil {
		return err
	}
	d.store = store
	d.opens++
	d.logger.Info("disk tier initialized", "max_bytes", d.cfg.MaxBytes, "entries", store.Len())
	return nil
}

// Get returns the bytes stored under key. It waits for initialization to
// finish or ctx to end. Every failure is reported as a miss.
func (d *DiskTier) Get(ctx context.Context, key string) ([]byte, bool) {
	store, err := d.awaitStore(ctx)
	if err != nil || store == nil {
		d.misses.Add(1)
		return nil, false
	}

	data, err := store.Get(d.cfg.Hasher.Key(key))
	if err != nil {
		if !errors.Is(err, disklru.ErrNotFound) {
			d.logger.Warn("disk read failed", "key", key, "error", err)
		}
		d.misses.Add(1)
		return nil, false
	}
	d.hits.Add(1)
	return data, true
}

func (d *DiskTier) awaitStore(ctx context.Context) (*disklru.Store, error) {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.cond.Broadcast()
	})
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for d.starting {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.cond.Wait()
	}
	return d.store, nil
}

// Put stores data under key unless an entry already exists. The write is
// synchronous and holds the tier lock until the entry is committed.
func (d *DiskTier) Put(key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store == nil {
		return ErrDiskDisabled
	}
	hashed := d.cfg.Hasher.Key(key)
	if d.store.Contains(hashed) {
		return nil
	}

	ed, err := d.store.Edit(hashed)
	if errors.Is(err, disklru.ErrEditInProgress) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: disk edit %s: %w", key, err)
	}
	if _, err := ed.Write(data); err != nil {
		_ = ed.Abort()
		return fmt.Errorf("cache: disk write %s: %w", key, err)
	}
	if err := ed.Commit(); err != nil {
		return fmt.Errorf("cache: disk commit %s: %w", key, err)
	}
	d.writes.Add(1)
	return nil
}

// Contains reports whether key has a committed entry.
func (d *DiskTier) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store != nil && d.store.Contains(d.cfg.Hasher.Key(key))
}

// Clear deletes every entry and reopens an empty store.
func (d *DiskTier) Clear() error {
	d.mu.Lock()
	d.starting = true
	var err error
	if d.store != nil {
		err = d.store.Delete()
		d.store = nil
	}
	d.mu.Unlock()

	d.Initialize()
	if err != nil {
		return fmt.Errorf("cache: clear disk: %w", err)
	}
	return nil
}

// Flush syncs the journal.
func (d *DiskTier) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	if err := d.store.Flush(); err != nil && !errors.Is(err, disklru.ErrClosed) {
		return fmt.Errorf("cache: flush disk: %w", err)
	}
	return nil
}

// Close closes the store and releases any waiting readers.
func (d *DiskTier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.store != nil {
		err = d.store.Close()
		d.store = nil
	}
	d.starting = false
	d.cond.Broadcast()
	return err
}

// Enabled reports whether a store is open.
func (d *DiskTier) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store != nil
}

// Dir returns the configured directory.
func (d *DiskTier) Dir() string { return d.cfg.Dir }

// Stats returns a snapshot of the tier counters.
func (d *DiskTier) Stats() DiskStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DiskStats{
		Hits:   d.hits.Load(),
		Misses: d.misses.Load(),
		Writes: d.writes.Load(),
	}
	if d.store != nil {
		s.Enabled = true
		s.Entries = d.store.Len()
		s.Bytes = d.store.Size()
	}
	return s
}
