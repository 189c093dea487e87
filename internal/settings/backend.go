package settings

import (
	"sync"

	"go.uber.org/zap"
)

// Backend persists schema values and reports changes made by other processes
type Backend interface {
	// Load returns the stored values of the schema. Keys without a stored
	// value are omitted.
	Load(schema *Schema) (map[string]interface{}, error)

	// Store persists a single value
	Store(schema *Schema, key string, value interface{}) error

	// Watch calls onChange for values changed outside of this process until
	// the returned stop function is called. A nil value means the key was
	// reset to its default.
	Watch(schema *Schema, onChange func(key string, value interface{})) (func(), error)
}

// MemoryBackend keeps values in memory. Push simulates an external edit,
// such as the preferences window changing a key.
type MemoryBackend struct {
	mu       sync.Mutex
	values   map[string]map[string]interface{}
	watchers map[string]map[int]func(key string, value interface{})
	nextID   int
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:   make(map[string]map[string]interface{}),
		watchers: make(map[string]map[int]func(key string, value interface{})),
	}
}

// Load returns a copy of the stored values
func (b *MemoryBackend) Load(schema *Schema) (map[string]interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	values := make(map[string]interface{})
	for k, v := range b.values[schema.Name] {
		values[k] = v
	}
	return values, nil
}

// Store saves a value
func (b *MemoryBackend) Store(schema *Schema, key string, value interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.storeLocked(schema.Name, key, value)
	return nil
}

func (b *MemoryBackend) storeLocked(schema, key string, value interface{}) {
	if b.values[schema] == nil {
		b.values[schema] = make(map[string]interface{})
	}
	b.values[schema][key] = value
}

// Value returns the stored value of a key, for assertions in tests
func (b *MemoryBackend) Value(schema *Schema, key string) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	value, ok := b.values[schema.Name][key]
	return value, ok
}

// Watch registers an external change callback
func (b *MemoryBackend) Watch(schema *Schema, onChange func(key string, value interface{})) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.watchers[schema.Name] == nil {
		b.watchers[schema.Name] = make(map[int]func(key string, value interface{}))
	}
	b.watchers[schema.Name][id] = onChange

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.watchers[schema.Name], id)
	}, nil
}

// Push stores a value as if another process changed it and notifies watchers
func (b *MemoryBackend) Push(schema *Schema, key string, value interface{}) {
	b.mu.Lock()
	b.storeLocked(schema.Name, key, value)
	watchers := make([]func(string, interface{}), 0, len(b.watchers[schema.Name]))
	for _, w := range b.watchers[schema.Name] {
		watchers = append(watchers, w)
	}
	b.mu.Unlock()

	for _, w := range watchers {
		w(key, value)
	}
}

// readOnlyBackend logs writes instead of performing them
type readOnlyBackend struct {
	Backend
	logger *zap.Logger
}

// ReadOnly wraps a backend so that writes are only logged. Stores opened on
// it still update their in-memory values.
func ReadOnly(backend Backend, logger *zap.Logger) Backend {
	return &readOnlyBackend{Backend: backend, logger: logger.Named("settings")}
}

func (b *readOnlyBackend) Store(schema *Schema, key string, value interface{}) error {
	b.logger.Info("READ-ONLY mode: Would set key",
		zap.String("schema", schema.ID),
		zap.String("key", key),
		zap.Any("value", value))
	return nil
}
