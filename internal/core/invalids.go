package core

import "sync"

// InvalidStore keeps the rejected addresses of each binding for the
// lifetime of the process. A binding's records are replaced, not merged,
// each time that binding is synced.
type InvalidStore struct {
	mu      sync.Mutex
	order   []string
	records map[string][]InvalidRecord
}

// NewInvalidStore creates an empty store.
func NewInvalidStore() *InvalidStore {
	return &InvalidStore{records: make(map[string][]InvalidRecord)}
}

// Reset discards the binding's records from any previous sync.
func (s *InvalidStore) Reset(binding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[binding]; !ok {
		s.order = append(s.order, binding)
	}
	s.records[binding] = nil
}

// Add appends records for binding.
func (s *InvalidStore) Add(binding string, records ...InvalidRecord) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[binding]; !ok {
		s.order = append(s.order, binding)
	}
	s.records[binding] = append(s.records[binding], records...)
}

// Snapshot returns a copy of every binding that has at least one record,
// in the order bindings were first seen.
func (s *InvalidStore) Snapshot() []BindingInvalids {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BindingInvalids
	for _, name := range s.order {
		recs := s.records[name]
		if len(recs) == 0 {
			continue
		}
		out = append(out, BindingInvalids{
			Binding: name,
			Records: append([]InvalidRecord(nil), recs...),
		})
	}
	return out
}

// Count returns the total number of stored records.
func (s *InvalidStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}
