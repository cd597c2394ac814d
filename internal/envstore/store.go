// Package envstore persists the registry of portal environments the
// bridge can connect to. Environments live in a single yaml document so
// operators can edit the file by hand; the store reloads automatically
// when the file changes on disk.
package envstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"portalkeys-go/internal/models"
)

// ErrNotFound is returned when an environment id has no entry.
var ErrNotFound = fmt.Errorf("environment not found")

type document struct {
	Environments []models.Environment `yaml:"environments"`
}

// Store is a file-backed environment registry safe for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	envs map[string]models.Environment
	// order preserves the file order for List.
	order []string

	subMu       sync.Mutex
	subscribers []func()

	watchOnce sync.Once
	stopCh    chan struct{}
}

// Open loads the registry at path, creating an empty one when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		envs:   map[string]models.Environment{},
		stopCh: make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read environments %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse environments %s: %w", s.path, err)
	}

	envs := make(map[string]models.Environment, len(doc.Environments))
	order := make([]string, 0, len(doc.Environments))
	for _, env := range doc.Environments {
		if env.ID == "" {
			log.WithField("name", env.Name).Warn("environment store: skipping entry without id")
			continue
		}
		if _, dup := envs[env.ID]; !dup {
			order = append(order, env.ID)
		}
		envs[env.ID] = env
	}

	s.mu.Lock()
	s.envs = envs
	s.order = order
	s.mu.Unlock()
	return nil
}

// List returns all environments in file order.
func (s *Store) List() []models.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Environment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.envs[id])
	}
	return out
}

// Get looks up an environment by id.
func (s *Store) Get(id string) (models.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envs[id]
	if !ok {
		return models.Environment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return env, nil
}

// Put validates and saves an environment, assigning an id when empty.
// The updated registry is flushed to disk atomically.
func (s *Store) Put(env models.Environment) (models.Environment, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if err := env.Validate(); err != nil {
		return models.Environment{}, err
	}

	s.mu.Lock()
	if _, exists := s.envs[env.ID]; !exists {
		s.order = append(s.order, env.ID)
	}
	s.envs[env.ID] = env
	err := s.flushLocked()
	s.mu.Unlock()
	if err != nil {
		return models.Environment{}, err
	}

	s.notify()
	return env, nil
}

// Remove deletes an environment by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.envs[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.envs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	err := s.flushLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// flushLocked writes the registry via a temp file plus rename so
// concurrent readers never observe a partial document.
func (s *Store) flushLocked() error {
	doc := document{Environments: make([]models.Environment, 0, len(s.order))}
	for _, id := range s.order {
		doc.Environments = append(doc.Environments, s.envs[id])
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode environments: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create environments directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".environments-*.yaml")
	if err != nil {
		return fmt.Errorf("write environments: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write environments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write environments: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write environments: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write environments: %w", err)
	}
	return nil
}

// Subscribe registers a callback invoked after the registry changes,
// whether through Put/Remove or an external file edit.
func (s *Store) Subscribe(fn func()) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Close stops the file watcher if one was started.
func (s *Store) Close() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}
