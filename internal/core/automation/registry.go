package automation

import (
	"context"
	"fmt"
	"sync"
)

// Handler performs the side effect named by a rule's action type. The
// config map is the rule's stored action config; data is the trigger
// data for this execution. The returned summary is persisted verbatim
// on the execution log.
type Handler interface {
	// Type returns the action type string this handler is registered under.
	Type() string
	// Execute runs the action. Failures come back as an error, never a
	// panic; handlers doing I/O must respect ctx's deadline.
	Execute(ctx context.Context, config map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error)
}

// Registry maps action types to their handlers. Registration happens
// once at process start; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Panics on a duplicate type to surface
// misconfiguration at startup rather than at dispatch time.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Type()]; exists {
		panic(fmt.Sprintf("automation registry: duplicate handler for %q", h.Type()))
	}
	r.handlers[h.Type()] = h
}

// Get returns the handler for actionType, or ErrHandlerNotRegistered.
func (r *Registry) Get(actionType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandlerNotRegistered, actionType)
	}
	return h, nil
}

// Types returns all registered action type strings.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
