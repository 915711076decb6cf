package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/types"
)

// CapabilityFunc defines the capability handler signature.
type CapabilityFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Metadata describes a registered capability.
type Metadata struct {
	Schema  llm.ToolSchema // JSON Schema advertised to the LLM
	Roles   []types.Role   // roles allowed to invoke it (empty = all)
	Timeout time.Duration  // execution timeout (default 30s)
}

// allows reports whether the given role may invoke the capability.
func (m Metadata) allows(role types.Role) bool {
	if len(m.Roles) == 0 {
		return true
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Registry is a thread-safe capability registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]CapabilityFunc
	metadata map[string]Metadata
	logger   *zap.Logger
}

// NewRegistry 创建能力注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[string]CapabilityFunc),
		metadata: make(map[string]Metadata),
		logger:   logger.With(zap.String("component", "capability_registry")),
	}
}

// Register adds a capability under the given name.
func (r *Registry) Register(name string, fn CapabilityFunc, meta Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("capability %s already registered", name)
	}

	if meta.Schema.Name == "" {
		meta.Schema.Name = name
	}
	if meta.Schema.Name != name {
		return fmt.Errorf("capability name mismatch: schema.Name=%s, register name=%s", meta.Schema.Name, name)
	}
	if meta.Timeout == 0 {
		meta.Timeout = 30 * time.Second
	}

	r.handlers[name] = fn
	r.metadata[name] = meta

	r.logger.Info("capability registered",
		zap.String("name", name),
		zap.Duration("timeout", meta.Timeout))
	return nil
}

// Get retrieves a capability handler and its metadata.
func (r *Registry) Get(name string) (CapabilityFunc, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[name]
	if !ok {
		return nil, Metadata{}, fmt.Errorf("capability %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// Has reports whether a capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// SchemasFor returns the schemas of the named capabilities that the given
// role may invoke, sorted by name. Unknown names are skipped.
func (r *Registry) SchemasFor(role types.Role, names []string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		meta, ok := r.metadata[name]
		if !ok || !meta.allows(role) {
			continue
		}
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}
