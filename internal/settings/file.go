package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the settings file name inside the user config directory
const DefaultFileName = "settings.yaml"

// document is the settings file layout: one section per schema name
type document map[string]map[string]interface{}

// FileBackend stores values in a YAML file and watches it for edits made by
// other processes
type FileBackend struct {
	path   string
	logger *zap.Logger

	mu          sync.Mutex
	lastWritten []byte
}

// NewFileBackend creates a backend for the given file. The file and its
// directory are created on first write.
func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	return &FileBackend{
		path:   path,
		logger: logger.Named("settings-file"),
	}
}

// DefaultPath resolves the settings file under the user config directory
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, DefaultFileName), nil
}

// Path returns the settings file path
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) readLocked() (document, []byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read settings file: %w", err)
	}

	doc := document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, data, fmt.Errorf("parse settings yaml: %w", err)
	}
	return doc, data, nil
}

// Load reads the schema section of the file
func (b *FileBackend) Load(schema *Schema) (map[string]interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, _, err := b.readLocked()
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	for k, v := range doc[schema.Name] {
		values[k] = v
	}
	return values, nil
}

// Store rewrites the file with the new value
func (b *FileBackend) Store(schema *Schema, key string, value interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, _, err := b.readLocked()
	if err != nil {
		return err
	}

	if doc[schema.Name] == nil {
		doc[schema.Name] = make(map[string]interface{})
	}
	doc[schema.Name][key] = value

	serialized, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write then rename so readers never see a partial file
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	b.lastWritten = serialized
	return nil
}

// Watch follows the settings file directory, since replacing the file
// through a rename drops watches set on the file itself
func (b *FileBackend) Watch(schema *Schema, onChange func(key string, value interface{})) (func(), error) {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	b.mu.Lock()
	_, last, _ := b.readLocked()
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(b.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				last = b.reload(schema, last, onChange)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				b.logger.Warn("File watcher error", zap.Error(err))

			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			watcher.Close()
		})
	}, nil
}

// reload reports every key of the schema when the file content differs from
// both what this process wrote and what the watcher saw last
func (b *FileBackend) reload(schema *Schema, last []byte, onChange func(key string, value interface{})) []byte {
	b.mu.Lock()
	doc, data, err := b.readLocked()
	skip := bytes.Equal(data, b.lastWritten) || bytes.Equal(data, last)
	b.mu.Unlock()

	if err != nil {
		// Editors may leave a partial file behind for a moment
		b.logger.Warn("Failed to reload settings file", zap.Error(err))
		return last
	}
	if skip {
		return data
	}

	section := doc[schema.Name]
	for _, key := range schema.Keys {
		value, ok := section[key.Name]
		if !ok {
			value = nil
		}
		onChange(key.Name, value)
	}
	return data
}
