package wakeup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists the controller attributes
type Store interface {
	Load() (Attributes, error)
	Save(Attributes) error
}

// FileStore keeps the attributes in a YAML file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns off attributes when the file does not exist yet
func (s *FileStore) Load() (Attributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Attributes{Phase: PhaseOff}, nil
	}
	if err != nil {
		return Attributes{}, fmt.Errorf("read attributes: %w", err)
	}

	var attrs Attributes
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return Attributes{}, fmt.Errorf("parse attributes: %w", err)
	}
	if attrs.Phase, err = ParsePhase(string(attrs.Phase)); err != nil {
		return Attributes{}, fmt.Errorf("parse attributes: %w", err)
	}
	return attrs, nil
}

// Save writes to a temporary file and renames it over the previous one
func (s *FileStore) Save(attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".wakeup-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write attributes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write attributes: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace attributes: %w", err)
	}
	return nil
}

// MemoryStore keeps the attributes in memory
type MemoryStore struct {
	mu    sync.Mutex
	attrs Attributes
	saves int
	err   error
}

func NewMemoryStore(initial Attributes) *MemoryStore {
	return &MemoryStore{attrs: initial}
}

func (s *MemoryStore) Load() (Attributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Attributes{}, s.err
	}
	return s.attrs, nil
}

func (s *MemoryStore) Save(attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.attrs = attrs
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Fail makes Load and Save return err until cleared with nil
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
