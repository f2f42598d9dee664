package product

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Brownie44l1/hairtype-api/internal/apperr"
)

// FileStore keeps the product collection in a single JSON array file. Every
// call reads the whole file; every mutation rewrites it. A mutex serialises
// read-modify-write cycles so concurrent updates in one process are not lost.
type FileStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

type Option func(*FileStore)

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx)
}

func (s *FileStore) Get(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return find(products, id)
}

// Engagement returns the product's engagement stats, filling in any missing
// counters first. The file is rewritten only when something was filled in,
// which is reported by the bool.
func (s *FileStore) Engagement(ctx context.Context, id string) (Stats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.load(ctx)
	if err != nil {
		return nil, false, err
	}
	p, err := find(products, id)
	if err != nil {
		return nil, false, err
	}

	if !ensureStats(p, timestamp(s.now())) {
		return p.Stats(), false, nil
	}
	if err := s.save(products); err != nil {
		return nil, false, err
	}
	return p.Stats(), true, nil
}

// UpdateEngagement adds deltas to the product's counters, stamps last_updated
// and persists the collection. It returns the full updated record together
// with the deltas that were applied.
func (s *FileStore) UpdateEngagement(ctx context.Context, id string, deltas map[string]any) (Product, map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := find(products, id)
	if err != nil {
		return nil, nil, err
	}

	ts := timestamp(s.now())
	ensureStats(p, ts)
	stats := p.Stats()

	applied, err := applyDeltas(stats, deltas)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InvalidInput, "product.UpdateEngagement", "Invalid engagement update", err)
	}
	stats[FieldLastUpdated] = ts

	if err := s.save(products); err != nil {
		return nil, nil, err
	}
	return p, applied, nil
}

// InitializeEngagement gives every product without engagement_stats a zeroed
// set sharing one timestamp, saves once and reports how many were initialised.
func (s *FileStore) InitializeEngagement(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	ts := timestamp(s.now())
	count := 0
	for _, p := range products {
		if p.Stats() != nil {
			continue
		}
		p[FieldEngagement] = map[string]any(newStats(ts))
		count++
	}

	if count > 0 {
		if err := s.save(products); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func find(products []Product, id string) (Product, error) {
	for _, p := range products {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "product.find", "Product not found")
}

func (s *FileStore) load(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "product.load", "Failed to read products", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var products []Product
	if err := dec.Decode(&products); err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "product.load", "Failed to parse products", err)
	}
	for i, p := range products {
		if p == nil {
			return nil, apperr.New(apperr.StorageFailure, "product.load", fmt.Sprintf("Product at index %d is not an object", i))
		}
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// save writes the collection to a temporary file beside the original and
// renames it into place.
func (s *FileStore) save(products []Product) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to encode products", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to save products", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to save products", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to save products", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to save products", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.StorageFailure, "product.save", "Failed to save products", err)
	}
	return nil
}
