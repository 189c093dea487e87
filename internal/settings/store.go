// Package settings provides typed, schema-checked key/value stores with
// change notifications, backed by a settings file, GSettings or memory.
package settings

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// ChangeHandler is called when a key changes
type ChangeHandler func(key string, oldValue, newValue interface{})

// Subscription represents an active change subscription
type Subscription interface {
	Unsubscribe()
}

type subscriberEntry struct {
	subID   int
	handler ChangeHandler
}

type subscription struct {
	key   string
	subID int
	store *Store
}

func (s *subscription) Unsubscribe() {
	s.store.unsubscribe(s.key, s.subID)
}

// Store holds the values of one schema and keeps them in sync with a backend
type Store struct {
	schema      *Schema
	backend     Backend
	logger      *zap.Logger
	cache       map[string]interface{}
	cacheMu     sync.RWMutex
	writeMu     sync.Mutex
	subscribers map[string][]subscriberEntry
	subsMu      sync.RWMutex
	nextSubID   int
	stopWatch   func()
}

// Open loads the schema values from the backend and starts watching for
// external changes. Missing or invalid values fall back to the defaults.
func Open(schema *Schema, backend Backend, logger *zap.Logger) (*Store, error) {
	s := &Store{
		schema:      schema,
		backend:     backend,
		logger:      logger.Named("settings").With(zap.String("schema", schema.Name)),
		cache:       schema.Defaults(),
		subscribers: make(map[string][]subscriberEntry),
	}

	values, err := backend.Load(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", schema.ID, err)
	}

	for name, raw := range values {
		key, ok := schema.Key(name)
		if !ok {
			s.logger.Warn("Ignoring unknown key", zap.String("key", name))
			continue
		}
		value, err := key.Coerce(raw)
		if err != nil {
			s.logger.Warn("Invalid stored value, using default",
				zap.String("key", name),
				zap.Error(err))
			continue
		}
		s.cache[name] = value
	}

	stop, err := backend.Watch(schema, s.onExternalChange)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", schema.ID, err)
	}
	s.stopWatch = stop

	return s, nil
}

// Close stops watching the backend
func (s *Store) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
}

// Schema returns the schema of the store
func (s *Store) Schema() *Schema {
	return s.schema
}

// GetBool retrieves a boolean key
func (s *Store) GetBool(key string) (bool, error) {
	value, err := s.get(key, TypeBool)
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// SetBool sets a boolean key
func (s *Store) SetBool(key string, value bool) error {
	return s.set(key, TypeBool, value)
}

// GetDouble retrieves a double key
func (s *Store) GetDouble(key string) (float64, error) {
	value, err := s.get(key, TypeDouble)
	if err != nil {
		return 0, err
	}
	return value.(float64), nil
}

// SetDouble sets a double key, rejecting values outside the key range
func (s *Store) SetDouble(key string, value float64) error {
	return s.set(key, TypeDouble, value)
}

// GetString retrieves a string key
func (s *Store) GetString(key string) (string, error) {
	value, err := s.get(key, TypeString)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// SetString sets a string key
func (s *Store) SetString(key string, value string) error {
	return s.set(key, TypeString, value)
}

// GetPoint retrieves a point key
func (s *Store) GetPoint(key string) (Point, error) {
	value, err := s.get(key, TypePoint)
	if err != nil {
		return Point{}, err
	}
	return value.(Point), nil
}

// SetPoint sets a point key
func (s *Store) SetPoint(key string, value Point) error {
	return s.set(key, TypePoint, value)
}

func (s *Store) lookup(key string, want Type) (Key, error) {
	k, ok := s.schema.Key(key)
	if !ok {
		return Key{}, fmt.Errorf("key %s not found in %s", key, s.schema.ID)
	}
	if k.Type != want {
		return Key{}, fmt.Errorf("key %s is not a %s", key, want)
	}
	return k, nil
}

func (s *Store) get(key string, want Type) (interface{}, error) {
	k, err := s.lookup(key, want)
	if err != nil {
		return nil, err
	}

	s.cacheMu.RLock()
	value, ok := s.cache[key]
	s.cacheMu.RUnlock()

	if !ok {
		return k.Default, nil
	}
	return value, nil
}

func (s *Store) set(key string, want Type, value interface{}) error {
	k, err := s.lookup(key, want)
	if err != nil {
		return err
	}

	value, err = k.Coerce(value)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Update cache
	s.cacheMu.Lock()
	oldValue := s.cache[key]
	if reflect.DeepEqual(oldValue, value) {
		s.cacheMu.Unlock()
		return nil
	}
	s.cache[key] = value
	s.cacheMu.Unlock()

	if err := s.backend.Store(s.schema, key, value); err != nil {
		// Rollback cache on error
		s.cacheMu.Lock()
		s.cache[key] = oldValue
		s.cacheMu.Unlock()
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	s.notifySubscribers(key, oldValue, value)
	return nil
}

// onExternalChange is called by the backend when the value changed outside
// of this store
func (s *Store) onExternalChange(key string, raw interface{}) {
	k, ok := s.schema.Key(key)
	if !ok {
		return
	}

	value := k.Default
	if raw != nil {
		coerced, err := k.Coerce(raw)
		if err != nil {
			s.logger.Warn("Ignoring invalid external value",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		value = coerced
	}

	s.writeMu.Lock()
	s.cacheMu.Lock()
	oldValue := s.cache[key]
	changed := !reflect.DeepEqual(oldValue, value)
	if changed {
		s.cache[key] = value
	}
	s.cacheMu.Unlock()
	s.writeMu.Unlock()

	if !changed {
		return
	}

	s.logger.Debug("Key changed externally",
		zap.String("key", key),
		zap.Any("old", oldValue),
		zap.Any("new", value))

	s.notifySubscribers(key, oldValue, value)
}

// notifySubscribers notifies all subscribers of a key change
func (s *Store) notifySubscribers(key string, oldValue, newValue interface{}) {
	s.subsMu.RLock()
	entries := append([]subscriberEntry(nil), s.subscribers[key]...)
	s.subsMu.RUnlock()

	for _, entry := range entries {
		go entry.handler(key, oldValue, newValue)
	}
}

// Subscribe subscribes to changes of a key
func (s *Store) Subscribe(key string, handler ChangeHandler) (Subscription, error) {
	if _, ok := s.schema.Key(key); !ok {
		return nil, fmt.Errorf("key %s not found in %s", key, s.schema.ID)
	}

	s.subsMu.Lock()
	subID := s.nextSubID
	s.nextSubID++
	s.subscribers[key] = append(s.subscribers[key], subscriberEntry{
		subID:   subID,
		handler: handler,
	})
	s.subsMu.Unlock()

	return &subscription{
		key:   key,
		subID: subID,
		store: s,
	}, nil
}

// SubscriberCount returns the number of active subscriptions
func (s *Store) SubscriberCount() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	count := 0
	for _, entries := range s.subscribers {
		count += len(entries)
	}
	return count
}

// unsubscribe removes a specific subscription by key and subscription ID
func (s *Store) unsubscribe(key string, subID int) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	entries, ok := s.subscribers[key]
	if !ok {
		return
	}

	for i, entry := range entries {
		if entry.subID == subID {
			s.subscribers[key] = append(entries[:i:i], entries[i+1:]...)
			if len(s.subscribers[key]) == 0 {
				delete(s.subscribers, key)
			}
			return
		}
	}
}

// Values returns a copy of all cached values
func (s *Store) Values() map[string]interface{} {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	values := make(map[string]interface{}, len(s.cache))
	for k, v := range s.cache {
		values[k] = v
	}
	return values
}
