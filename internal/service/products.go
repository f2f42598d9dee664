package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/hairtype-api/internal/cache"
	"github.com/Brownie44l1/hairtype-api/internal/events"
	"github.com/Brownie44l1/hairtype-api/internal/metrics"
	"github.com/Brownie44l1/hairtype-api/internal/product"
)

const sinkTimeout = 5 * time.Second

// Store is the product persistence the service needs. *product.FileStore
// implements it.
type Store interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id string) (product.Product, error)
	Engagement(ctx context.Context, id string) (product.Stats, bool, error)
	UpdateEngagement(ctx context.Context, id string, deltas map[string]any) (product.Product, map[string]float64, error)
	InitializeEngagement(ctx context.Context) (int, error)
}

// ProductService puts a read cache and an engagement event log around the
// product store. The store stays the source of truth: cache and sink
// failures are logged and never fail a request.
type ProductService struct {
	store   Store
	cache   *cache.Products
	sink    events.Sink
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*ProductService)

func WithCache(c *cache.Products) Option { return func(s *ProductService) { s.cache = c } }
func WithSink(sink events.Sink) Option { return func(s *ProductService) { s.sink = sink } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *ProductService) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option { return func(s *ProductService) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *ProductService) { s.now = now } }

func NewProductService(store Store, opts ...Option) *ProductService {
	s := &ProductService{
		store: store,
		sink:  events.NopSink{},
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the encoded product collection.
func (s *ProductService) List(ctx context.Context) (json.RawMessage, error) {
	if data := s.cached(func() ([]byte, error) { return s.cache.GetList(ctx) }); data != nil {
		return data, nil
	}

	gen, fill := s.generation(ctx)
	products, err := s.store.List(ctx)
	s.metrics.ObserveStore("list", err)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	if fill {
		if _, err := s.cache.SetList(ctx, gen, data); err != nil {
			s.log.Warn().Err(err).Msg("cache: set product list failed")
		}
	}
	return data, nil
}

// Get returns one encoded product.
func (s *ProductService) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if data := s.cached(func() ([]byte, error) { return s.cache.GetProduct(ctx, id) }); data != nil {
		return data, nil
	}

	gen, fill := s.generation(ctx)
	p, err := s.store.Get(ctx, id)
	s.metrics.ObserveStore("get", err)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode product: %w", err)
	}
	if fill {
		if _, err := s.cache.SetProduct(ctx, id, gen, data); err != nil {
			s.log.Warn().Err(err).Str("product_id", id).Msg("cache: set product failed")
		}
	}
	return data, nil
}

// Engagement returns the product's counters, initialising them if needed.
func (s *ProductService) Engagement(ctx context.Context, id string) (product.Stats, error) {
	stats, initialised, err := s.store.Engagement(ctx, id)
	s.metrics.ObserveStore("engagement", err)
	if err != nil {
		return nil, err
	}
	if initialised {
		s.invalidate(ctx, id)
		s.log.Info().Str("product_id", id).Msg("initialised engagement stats on read")
	}
	return stats, nil
}

// UpdateEngagement applies counter deltas and returns the updated record.
func (s *ProductService) UpdateEngagement(ctx context.Context, id string, deltas map[string]any) (product.Product, error) {
	p, applied, err := s.store.UpdateEngagement(ctx, id, deltas)
	s.metrics.ObserveStore("update_engagement", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.metrics.ObserveDeltas(applied)
	s.record(ctx, events.FromDeltas(id, applied, s.now()))
	return p, nil
}

// InitializeEngagement initialises every product lacking counters.
func (s *ProductService) InitializeEngagement(ctx context.Context) (int, error) {
	n, err := s.store.InitializeEngagement(ctx)
	s.metrics.ObserveStore("initialize_engagement", err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, "")
		s.record(ctx, []events.Event{events.Initialized(n, s.now())})
	}
	s.log.Info().Int("count", n).Msg("initialised engagement stats")
	return n, nil
}

func (s *ProductService) cached(get func() ([]byte, error)) []byte {
	if !s.cache.Enabled() {
		return nil
	}
	data, err := get()
	if err != nil {
		s.log.Warn().Err(err).Msg("cache: read failed")
		return nil
	}
	if data == nil {
		s.metrics.CacheMiss()
		return nil
	}
	s.metrics.CacheHit()
	return data
}

// generation must be read before the store load; fill is false when the
// cache is off or the generation is unknown.
func (s *ProductService) generation(ctx context.Context) (gen int64, fill bool) {
	if !s.cache.Enabled() {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("cache: read generation failed")
		return 0, false
	}
	return gen, true
}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("product_id", id).Msg("cache: invalidate failed")
	}
}

func (s *ProductService) record(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := s.sink.Record(ctx, evts); err != nil {
		s.log.Warn().Err(err).Int("events", len(evts)).Msg("events: record failed")
	}
}
