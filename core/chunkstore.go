package core

// Chunk Store (component A): a bounded, disk-backed map from BlobAddress to
// bytes. Grounded on a content-addressed on-disk cache's size-tracking
// counters, but with eviction removed — a section node never silently
// drops a client's blob; it instead reports OutOfSpace.

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	logrus "github.com/sirupsen/logrus"
)

// UsedSpace is the shared current/maximum byte counter for a ChunkStore. It
// is written atomically by the store and read without locking by a
// disk-fullness probe, which tolerates stale reads (spec §5).
type UsedSpace struct {
	current atomic.Int64
	max     int64
}

// NewUsedSpace creates a counter with the given maximum byte budget.
func NewUsedSpace(max int64) *UsedSpace { return &UsedSpace{max: max} }

// Ratio returns current/maximum in [0,1], read without locking.
func (u *UsedSpace) Ratio() float64 {
	if u.max <= 0 {
		return 0
	}
	r := float64(u.current.Load()) / float64(u.max)
	if r > 1 {
		r = 1
	}
	return r
}

// Current returns the current byte count.
func (u *UsedSpace) Current() int64 { return u.current.Load() }

// Max returns the maximum byte budget.
func (u *UsedSpace) Max() int64 { return u.max }

// tryReserve attempts to add n bytes, failing without effect if that would
// breach the maximum (invariant: current <= maximum at all times).
func (u *UsedSpace) tryReserve(n int64) bool {
	for {
		cur := u.current.Load()
		if cur+n > u.max {
			return false
		}
		if u.current.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// release subtracts n bytes, never going below zero.
func (u *UsedSpace) release(n int64) {
	for {
		cur := u.current.Load()
		next := cur - n
		if next < 0 {
			next = 0
		}
		if u.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

// ChunkStore is the durable BlobAddress -> bytes mapping. One file per blob,
// named by the address's canonical CID text (BlobAddress.String, lower-case
// base32), not by a hex encoding; the file name does not record the blob's
// kind, so public and private addresses share one key space. Presence in the in-memory index is
// the source of truth for has(), kept consistent with disk by construction
// (every put/delete updates both under the store's mutex).
type ChunkStore struct {
	mu     sync.RWMutex
	dir    string
	index  map[string]int64 // address string -> stored length
	used   *UsedSpace
	logger *logrus.Logger
}

// NewChunkStore opens (or creates) a chunk directory bounded by maxBytes.
// Existing files are indexed by stat'ing the directory once at startup.
func NewChunkStore(dir string, maxBytes int64, lg *logrus.Logger) (*ChunkStore, error) {
	if lg == nil {
		lg = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errIOFailure
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errIOFailure
	}
	s := &ChunkStore{
		dir:    dir,
		index:  make(map[string]int64, len(entries)),
		used:   NewUsedSpace(maxBytes),
		logger: lg,
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		s.index[e.Name()] = info.Size()
		total += info.Size()
	}
	s.used.current.Store(total)
	lg.Infof("chunkstore: opened %s (%d blobs, %d/%d bytes)", dir, len(s.index), total, maxBytes)
	return s, nil
}

func (s *ChunkStore) path(key string) string { return filepath.Join(s.dir, key) }

// Has is a pure lookup against the in-memory index.
func (s *ChunkStore) Has(addr BlobAddress) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[addr.String()]
	return ok
}

// Get reads one blob's bytes, or ErrNoSuchData on miss.
func (s *ChunkStore) Get(addr BlobAddress) ([]byte, error) {
	s.mu.RLock()
	_, ok := s.index[addr.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, errNoSuchData
	}
	data, err := os.ReadFile(s.path(addr.String()))
	if err != nil {
		s.logger.Warnf("chunkstore: read %s failed: %v", addr.String(), err)
		return nil, errIOFailure
	}
	return data, nil
}

// Put stores blob atomically with respect to Has/UsedSpace: either Has(addr)
// becomes true and used_space grows by len(blob), or nothing changes.
// Rejects if the address already exists — no overwrite, ever.
func (s *ChunkStore) Put(addr BlobAddress, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	if _, ok := s.index[key]; ok {
		return errDataExists
	}
	n := int64(len(data))
	if !s.used.tryReserve(n) {
		return errOutOfSpace
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		s.used.release(n)
		s.logger.Warnf("chunkstore: write %s failed: %v", key, err)
		return errIOFailure
	}
	s.index[key] = n
	return nil
}

// Delete removes a blob and shrinks used_space by its stored length.
func (s *ChunkStore) Delete(addr BlobAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	n, ok := s.index[key]
	if !ok {
		return errNoSuchData
	}
	if err := os.Remove(s.path(key)); err != nil {
		s.logger.Warnf("chunkstore: delete %s failed: %v", key, err)
		return errIOFailure
	}
	delete(s.index, key)
	s.used.release(n)
	return nil
}

// UsedSpaceRatio reports current/maximum in [0,1].
func (s *ChunkStore) UsedSpaceRatio() float64 { return s.used.Ratio() }

// UsedSpaceHandle exposes the shared counter for a fullness probe (spec §5).
func (s *ChunkStore) UsedSpaceHandle() *UsedSpace { return s.used }
