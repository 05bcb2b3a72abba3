// Package memory provides an in-process snapshot store for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"scoretrack/internal/infra/persistence/core"
	"scoretrack/pkg/tableapi"
)

// Store keeps encoded payloads so loads go through the same codec as the SQL
// stores.
type Store struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

var _ core.TableStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store { return &Store{payloads: make(map[string][]byte)} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// SaveTables encodes every table before applying any of them.
func (s *Store) SaveTables(_ context.Context, tables map[string]tableapi.Table) error {
	encoded := make(map[string][]byte, len(tables))
	for name, t := range tables {
		if err := core.ValidateName(name); err != nil {
			return err
		}
		data, err := core.Encode(t)
		if err != nil {
			return err
		}
		encoded[name] = data
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, data := range encoded {
		s.payloads[name] = data
	}
	return nil
}

func (s *Store) LoadTable(_ context.Context, name string) (tableapi.Table, error) {
	s.mu.RLock()
	data, ok := s.payloads[name]
	s.mu.RUnlock()
	if !ok {
		return tableapi.Table{}, core.NotFound(name)
	}
	return core.Decode(bytes.Clone(data))
}

func (s *Store) ListTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.payloads))
	for name := range s.payloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Close() error { return nil }
