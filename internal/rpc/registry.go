package rpc

import (
	"context"
	"strings"
	"sync"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// UnaryHandler implements one unary method of a registered service.
// request is the JSON request body decoded into a generic map; the
// returned value is marshaled back as the JSON response body.
type UnaryHandler func(ctx context.Context, request map[string]any) (response any, err error)

// Stream is the server's view of a bidi/server-streaming call: Recv
// decodes the next client message into v, Send encodes v as the next
// message to the client.
type Stream interface {
	Context() context.Context
	Recv(v any) error
	Send(v any) error
}

// StreamHandler implements one streaming method of a registered
// service, driving stream to completion.
type StreamHandler func(ctx context.Context, stream Stream) error

// ServiceDefinition stands in for a compiled .proto service
// descriptor: a name plus its unary and streaming method handlers,
// keyed by method name.
type ServiceDefinition struct {
	Name      string
	Unary     map[string]UnaryHandler
	Streaming map[string]StreamHandler
}

// Registry maps service names to their ServiceDefinition, the runtime
// substitute for generated gRPC service registration.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*ServiceDefinition)}
}

// Register adds def to the registry under its (capitalized) name,
// overwriting any prior definition with the same name.
func (r *Registry) Register(def *ServiceDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[capitalize(def.Name)] = def
}

// Lookup returns the ServiceDefinition registered under name,
// capitalized. It fails loudly: an unregistered service name is a
// Validation error, never a nil/ok return, since a missing service
// descriptor is a wiring bug that must surface immediately.
func (r *Registry) Lookup(name string) (*ServiceDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.services[capitalize(name)]
	if !ok {
		return nil, faults.Validationf("rpc: no service registered under name %q", name)
	}
	return def, nil
}

func (r *Registry) snapshot() map[string]*ServiceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ServiceDefinition, len(r.services))
	for k, v := range r.services {
		out[k] = v
	}
	return out
}

func capitalize(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
