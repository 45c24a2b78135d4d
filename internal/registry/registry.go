// Package registry owns one application store per client session.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/metrics"
	"predictionclub/internal/store"
)

// GatewayFactory builds the backend gateway of a new session
type GatewayFactory func(key string) (gateway.Gateway, error)

type entry struct {
	once     sync.Once
	st       atomic.Pointer[store.Store]
	err      error
	lastSeen atomic.Int64
}

// Registry maps session keys to started stores
type Registry struct {
	ctx        context.Context
	sessions   *xsync.MapOf[string, *entry]
	newGateway GatewayFactory
	opts       []store.Option
	clock      clockwork.Clock
	metrics    *metrics.Metrics
}

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces the clock used for idle tracking
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithMetrics reports the number of live sessions
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithStoreOptions are applied to every store the registry creates
func WithStoreOptions(opts ...store.Option) Option {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// New creates a registry. Stores live under ctx, not under the request that
// created them.
func New(ctx context.Context, factory GatewayFactory, opts ...Option) *Registry {
	r := &Registry{
		ctx:        ctx,
		sessions:   xsync.NewMapOf[string, *entry](),
		newGateway: factory,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the store of key, creating and starting it on first use
func (r *Registry) Get(key string) (*store.Store, error) {
	e, _ := r.sessions.LoadOrCompute(key, func() *entry {
		e := &entry{}
		e.lastSeen.Store(r.clock.Now().UnixNano())
		return e
	})
	e.once.Do(func() {
		gw, err := r.newGateway(key)
		if err != nil {
			e.err = fmt.Errorf("failed to create gateway for session: %w", err)
			return
		}
		opts := append(append([]store.Option(nil), r.opts...), store.WithName(key))
		s := store.New(gw, opts...)
		s.Start(r.ctx)
		e.st.Store(s)
		logger.Debug(key, "session_created", "")
	})
	if e.err != nil {
		r.sessions.Delete(key)
		return nil, e.err
	}
	e.lastSeen.Store(r.clock.Now().UnixNano())
	r.updateGauge()
	return e.st.Load(), nil
}

// Peek returns the store of key without creating it
func (r *Registry) Peek(key string) (*store.Store, bool) {
	e, ok := r.sessions.Load(key)
	if !ok || e.st.Load() == nil {
		return nil, false
	}
	return e.st.Load(), true
}

// Sweep closes and forgets sessions idle for longer than maxIdle
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.clock.Now().Add(-maxIdle).UnixNano()
	var idle []string
	r.sessions.Range(func(key string, e *entry) bool {
		if e.lastSeen.Load() < cutoff {
			idle = append(idle, key)
		}
		return true
	})

	removed := 0
	for _, key := range idle {
		e, ok := r.sessions.LoadAndDelete(key)
		if !ok || e.st.Load() == nil {
			continue
		}
		e.st.Load().Close()
		removed++
		logger.Debug(key, "session_evicted", "")
	}
	r.updateGauge()
	return removed
}

// RefreshAll re-reads remote state for every live session
func (r *Registry) RefreshAll(ctx context.Context) int {
	var stores []*store.Store
	r.sessions.Range(func(_ string, e *entry) bool {
		if s := e.st.Load(); s != nil {
			stores = append(stores, s)
		}
		return true
	})
	for _, s := range stores {
		if ctx.Err() != nil {
			break
		}
		s.Refresh(ctx)
	}
	return len(stores)
}

// Len is the number of live sessions
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Close closes every store
func (r *Registry) Close() {
	r.sessions.Range(func(key string, e *entry) bool {
		r.sessions.Delete(key)
		if s := e.st.Load(); s != nil {
			s.Close()
		}
		return true
	})
	r.updateGauge()
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.Sessions.Set(float64(r.sessions.Size()))
	}
}
