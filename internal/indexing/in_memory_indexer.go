package indexing

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"searchsync/internal/schema"
)

// InMemoryIndexer is a thread-safe Fake for testing.
// Documents are kept per document type: docs[typeID][externalID] = document.
// Every call is journaled so tests can assert on ordering.
type InMemoryIndexer struct {
	mu      sync.Mutex
	engines []Engine
	types   map[string][]DocumentType
	docs    map[string]map[string]schema.Document
	calls   []string
	nextID  int

	// pending holds deleted document types still visible to listings,
	// keyed by type id, with the number of listings left before they vanish.
	pending   map[string]int
	deleteLag int
	failures  map[string]error
}

func NewInMemoryIndexer() *InMemoryIndexer {
	return &InMemoryIndexer{
		types:    make(map[string][]DocumentType),
		docs:     make(map[string]map[string]schema.Document),
		pending:  make(map[string]int),
		failures: make(map[string]error),
	}
}

func (i *InMemoryIndexer) Engines(_ context.Context) ([]Engine, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "Engines")
	if err := i.failures["Engines"]; err != nil {
		return nil, err
	}
	return append([]Engine(nil), i.engines...), nil
}

func (i *InMemoryIndexer) CreateEngine(_ context.Context, name string) (Engine, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "CreateEngine "+name)
	if err := i.failures["CreateEngine"]; err != nil {
		return Engine{}, err
	}
	engine := Engine{ID: i.id("e"), Name: name}
	i.engines = append(i.engines, engine)
	return engine, nil
}

func (i *InMemoryIndexer) DocumentTypes(_ context.Context, engineID string) ([]DocumentType, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "DocumentTypes "+engineID)
	if err := i.failures["DocumentTypes"]; err != nil {
		return nil, err
	}

	types := make([]DocumentType, 0, len(i.types[engineID]))
	for _, t := range i.types[engineID] {
		left, deleting := i.pending[t.ID]
		if !deleting {
			types = append(types, t)
			continue
		}
		if left != 0 {
			types = append(types, t)
			if left > 0 {
				i.pending[t.ID] = left - 1
			}
		}
	}
	return types, nil
}

func (i *InMemoryIndexer) CreateDocumentType(_ context.Context, engineID, name string) (DocumentType, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "CreateDocumentType "+engineID+"/"+name)
	if err := i.failures["CreateDocumentType"]; err != nil {
		return DocumentType{}, err
	}
	docType := DocumentType{ID: i.id("t"), Name: name}
	i.types[engineID] = append(i.types[engineID], docType)
	return docType, nil
}

func (i *InMemoryIndexer) DeleteDocumentType(_ context.Context, engineID, typeID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "DeleteDocumentType "+engineID+"/"+typeID)
	if err := i.failures["DeleteDocumentType"]; err != nil {
		return err
	}
	delete(i.docs, typeID)
	if i.deleteLag == 0 {
		i.removeType(engineID, typeID)
		return nil
	}
	i.pending[typeID] = i.deleteLag
	return nil
}

func (i *InMemoryIndexer) Upsert(_ context.Context, engineID, typeID string, doc schema.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, fmt.Sprintf("Upsert %s/%s/%d", engineID, typeID, doc.ExternalID))
	if err := i.failures["Upsert"]; err != nil {
		return err
	}
	i.put(typeID, doc)
	return nil
}

func (i *InMemoryIndexer) BulkUpsert(_ context.Context, engineID, typeID string, docs []schema.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, fmt.Sprintf("BulkUpsert %s/%s/%d", engineID, typeID, len(docs)))
	if err := i.failures["BulkUpsert"]; err != nil {
		return err
	}
	for _, doc := range docs {
		i.put(typeID, doc)
	}
	return nil
}

func (i *InMemoryIndexer) Delete(_ context.Context, engineID, typeID, externalID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, "Delete "+engineID+"/"+typeID+"/"+externalID)
	if err := i.failures["Delete"]; err != nil {
		return err
	}
	if _, ok := i.docs[typeID][externalID]; !ok {
		return ErrNotFound
	}
	delete(i.docs[typeID], externalID)
	return nil
}

func (i *InMemoryIndexer) HealthCheck(_ context.Context) error {
	// Always healthy
	return nil
}

func (i *InMemoryIndexer) Close() error {
	// No resources to clean up in this in-memory implementation
	return nil
}

// --- Test Helper Methods (Not part of Indexer interface) ---

// SetDeleteLag makes deleted document types stay visible for the next n
// listings. A negative n keeps them visible forever.
func (i *InMemoryIndexer) SetDeleteLag(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleteLag = n
}

// Fail makes every call to method return err. A nil err clears it.
func (i *InMemoryIndexer) Fail(method string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err == nil {
		delete(i.failures, method)
		return
	}
	i.failures[method] = err
}

// Calls returns the journal of calls made so far.
func (i *InMemoryIndexer) Calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.calls...)
}

// ResetCalls clears the journal.
func (i *InMemoryIndexer) ResetCalls() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = nil
}

// Document returns a stored document.
func (i *InMemoryIndexer) Document(typeID string, externalID int64) (schema.Document, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	doc, ok := i.docs[typeID][strconv.FormatInt(externalID, 10)]
	return doc, ok
}

// Count returns the number of documents held by a document type.
func (i *InMemoryIndexer) Count(typeID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.docs[typeID])
}

// --- Internal Helper ---

func (i *InMemoryIndexer) id(prefix string) string {
	i.nextID++
	return prefix + strconv.Itoa(i.nextID)
}

func (i *InMemoryIndexer) put(typeID string, doc schema.Document) {
	if i.docs[typeID] == nil {
		i.docs[typeID] = make(map[string]schema.Document)
	}
	i.docs[typeID][strconv.FormatInt(doc.ExternalID, 10)] = doc
}

func (i *InMemoryIndexer) removeType(engineID, typeID string) {
	types := i.types[engineID]
	for n, t := range types {
		if t.ID == typeID {
			i.types[engineID] = append(types[:n:n], types[n+1:]...)
			return
		}
	}
}
