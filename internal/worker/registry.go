package worker

import "sync"

// Registry tracks every runtime in the process so ops endpoints can report
// on all of them at once.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

func NewRegistry() *Registry {
	return &Registry{runtimes: make(map[string]*Runtime)}
}

func (r *Registry) Register(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[rt.worker.Name()] = rt
}

func (r *Registry) Get(name string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[name]
	return rt, ok
}

// HealthAll reports every registered runtime, keyed by worker name.
func (r *Registry) HealthAll() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.runtimes))
	for name, rt := range r.runtimes {
		out[name] = rt.Health()
	}
	return out
}

// Healthy is true only when every registered runtime is healthy.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.runtimes {
		if !rt.Health().IsHealthy {
			return false
		}
	}
	return true
}
