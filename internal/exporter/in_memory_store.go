package exporter

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a thread-safe Fake for testing.
// Records are kept per class in insertion order.
type InMemoryStore struct {
	mu       sync.RWMutex
	classes  map[string]ClassSchema
	records  map[string][]*Record
	live     map[string]map[int64]*Record
	one      map[relationKey]*Related
	many     map[relationKey][]Related
	failing  map[string]error
	pages    []Query
	released int
}

type relationKey struct {
	class    string
	id       int64
	relation string
}

func NewInMemoryStore(classes ...ClassSchema) *InMemoryStore {
	s := &InMemoryStore{
		classes: make(map[string]ClassSchema),
		records: make(map[string][]*Record),
		live:    make(map[string]map[int64]*Record),
		one:     make(map[relationKey]*Related),
		many:    make(map[relationKey][]Related),
		failing: make(map[string]error),
	}
	for _, c := range classes {
		s.classes[c.Class] = c
	}
	return s
}

func (s *InMemoryStore) Schema(class string) (ClassSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cls, ok := s.classes[class]
	if !ok {
		return ClassSchema{}, fmt.Errorf("unknown class %q", class)
	}
	return cls, nil
}

func (s *InMemoryStore) Get(_ context.Context, class string, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records[class] {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) LiveVersion(_ context.Context, class string, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.live[class][id], nil
}

func (s *InMemoryStore) Count(_ context.Context, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.filtered(q)), nil
}

func (s *InMemoryStore) Page(_ context.Context, q Query) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages = append(s.pages, q)

	all := s.filtered(q)
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(all))
	return all[q.Offset:end], nil
}

func (s *InMemoryStore) One(_ context.Context, rec *Record, rel Relation) (*Related, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failing[rel.Name]; err != nil {
		return nil, err
	}
	return s.one[relationKey{rec.Class, rec.ID, rel.Name}], nil
}

func (s *InMemoryStore) Many(_ context.Context, rec *Record, rel Relation) ([]Related, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failing[rel.Name]; err != nil {
		return nil, err
	}
	return s.many[relationKey{rec.Class, rec.ID, rel.Name}], nil
}

func (s *InMemoryStore) Release(*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

// --- Test Helper Methods (Not part of Store interface) ---

// Add appends records to their class.
func (s *InMemoryStore) Add(records ...*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Class] = append(s.records[r.Class], r)
	}
}

// Publish registers the live version of a versioned record.
func (s *InMemoryStore) Publish(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[rec.Class] == nil {
		s.live[rec.Class] = make(map[int64]*Record)
	}
	s.live[rec.Class][rec.ID] = rec
}

// LinkOne sets the target of a has_one relation.
func (s *InMemoryStore) LinkOne(rec *Record, relation string, item Related) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.one[relationKey{rec.Class, rec.ID, relation}] = &item
}

// LinkMany sets the items of a has_many or many_many relation.
func (s *InMemoryStore) LinkMany(rec *Record, relation string, items ...Related) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.many[relationKey{rec.Class, rec.ID, relation}] = items
}

// FailRelation makes every lookup of relation return err.
func (s *InMemoryStore) FailRelation(relation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[relation] = err
}

// PageQueries returns the page queries seen so far.
func (s *InMemoryStore) PageQueries() []Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Query(nil), s.pages...)
}

// Released returns how many records were released.
func (s *InMemoryStore) Released() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}

// --- Internal Helper ---

func (s *InMemoryStore) filtered(q Query) []*Record {
	all := s.records[q.Class]
	if !q.OnlyVisible {
		return all
	}

	visible := make([]*Record, 0, len(all))
	for _, r := range all {
		if v, ok := r.Value(VisibilityField); ok && truthy(v) {
			visible = append(visible, r)
		}
	}
	return visible
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case string:
		return b == "1" || b == "true"
	}
	return false
}
