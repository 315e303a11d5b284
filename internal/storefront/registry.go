package storefront

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/flow"
)

type mounted struct {
	flow    *flow.Flow
	touched time.Time
}

// Registry holds at most one mounted flow per client. Mounting a new flow closes the
// previous one, so its in-flight results are discarded.
type Registry struct {
	engine *otpauth.Engine
	idle   time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	flows map[string]*mounted
}

// NewRegistry returns an empty registry sweeping flows idle for longer than idle.
func NewRegistry(engine *otpauth.Engine, idle time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		engine: engine,
		idle:   idle,
		now:    time.Now,
		logger: logger,
		flows:  make(map[string]*mounted),
	}
}

// Mount replaces the client's flow with a fresh one of variant.
func (r *Registry) Mount(c *otpauth.Client, variant flow.Variant) (*flow.Flow, error) {
	f, err := r.engine.NewFlow(c, variant)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	prev := r.flows[c.ID]
	r.flows[c.ID] = &mounted{flow: f, touched: r.now()}
	r.mu.Unlock()

	if prev != nil {
		prev.flow.Close()
	}
	return f, nil
}

// Get returns the client's flow if it is of variant.
func (r *Registry) Get(clientID string, variant flow.Variant) (*flow.Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.flows[clientID]
	if !ok || m.flow.Variant() != variant {
		return nil, false
	}
	m.touched = r.now()
	return m.flow, true
}

// Remove closes and forgets the client's flow, if f is still the mounted one.
// A nil f removes whatever is mounted.
func (r *Registry) Remove(clientID string, f *flow.Flow) {
	r.mu.Lock()
	m, ok := r.flows[clientID]
	if ok && (f == nil || m.flow == f) {
		delete(r.flows, clientID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		m.flow.Close()
	}
}

// Len returns the number of mounted flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep closes flows untouched since before now minus the idle timeout and
// returns how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idle)

	r.mu.Lock()
	var stale []*flow.Flow
	for id, m := range r.flows {
		if m.touched.Before(cutoff) {
			stale = append(stale, m.flow)
			delete(r.flows, id)
		}
	}
	r.mu.Unlock()

	for _, f := range stale {
		f.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes every remaining flow.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Debug("swept idle flows", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.flows
	r.flows = make(map[string]*mounted)
	r.mu.Unlock()

	for _, m := range all {
		m.flow.Close()
	}
}
