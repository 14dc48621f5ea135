// Package ratecache persists the last known rate snapshot in a single JSON file.
package ratecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/storage/atomicfile"
)

// Cache keeps the current snapshot in memory and mirrors it to disk.
type Cache struct {
	mu       sync.RWMutex
	path     string
	snapshot domain.RateSnapshot
}

// fileState is the on-disk layout.
type fileState struct {
	LastRefresh *time.Time          `json:"last_refresh"`
	Pairs       map[string]filePair `json:"pairs"`
}

type filePair struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates a cache backed by path. The parent directory is created if needed.
func New(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("rate cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create rate cache dir")
	}

	return &Cache{path: path, snapshot: domain.NewRateSnapshot()}, nil
}

// Path returns the backing file.
func (c *Cache) Path() string {
	return c.path
}

// Load reads the persisted snapshot and makes it current.
// A missing or empty file yields an empty snapshot.
func (c *Cache) Load() (domain.RateSnapshot, error) {
	snapshot, err := c.read()
	if err != nil {
		return domain.RateSnapshot{}, err
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	return snapshot.Clone(), nil
}

func (c *Cache) read() (domain.RateSnapshot, error) {
	payload, err := atomicfile.ReadFile(c.path)
	if err != nil {
		return domain.RateSnapshot{}, errors.Wrap(err, "read rate cache")
	}
	if len(payload) == 0 {
		return domain.NewRateSnapshot(), nil
	}

	var state fileState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.RateSnapshot{}, errors.Wrap(err, "decode rate cache")
	}

	snapshot := domain.NewRateSnapshot()
	if state.LastRefresh != nil {
		snapshot.LastRefresh = *state.LastRefresh
	}
	for key, p := range state.Pairs {
		pair, err := domain.ParsePair(key)
		if err != nil {
			return domain.RateSnapshot{}, errors.Wrap(err, "decode rate cache")
		}
		snapshot.Pairs[pair] = domain.RateRecord{
			Pair:      pair,
			Rate:      p.Rate,
			Source:    p.Source,
			FetchedAt: p.UpdatedAt,
		}
	}

	return snapshot, nil
}

// Save overwrites the persisted snapshot atomically via temp file and
// replaces the in-memory copy only once the file is in place.
func (c *Cache) Save(snapshot domain.RateSnapshot) error {
	state := fileState{Pairs: make(map[string]filePair, len(snapshot.Pairs))}
	if !snapshot.LastRefresh.IsZero() {
		ts := snapshot.LastRefresh
		state.LastRefresh = &ts
	}
	for pair, rec := range snapshot.Pairs {
		state.Pairs[pair.String()] = filePair{Rate: rec.Rate, Source: rec.Source, UpdatedAt: rec.FetchedAt}
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode rate cache")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := atomicfile.WriteFile(c.path, payload, 0o644); err != nil {
		return errors.Wrap(err, "persist rate cache")
	}

	c.snapshot = snapshot.Clone()

	return nil
}

// Lookup returns the record for pair. No inversion or derivation.
func (c *Cache) Lookup(pair domain.Pair) (domain.RateRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshot.Lookup(pair)
}

// Snapshot returns a copy of the current in-memory snapshot.
func (c *Cache) Snapshot() domain.RateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshot.Clone()
}
