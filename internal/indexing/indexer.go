package indexing

import (
	"context"
	"errors"
	"fmt"

	"searchsync/internal/schema"
)

// ErrNotFound is returned by an Indexer when the addressed resource does not exist.
var ErrNotFound = errors.New("indexing: resource not found")

// Engine is a named top-level container on the remote search service.
type Engine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DocumentType is a schema-bound collection of documents inside an Engine.
type DocumentType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatusError is a response with a status the caller did not accept.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Indexer defines the contract for any remote search service we support.
// Every call blocks until the service answered; timeouts belong to the transport.
type Indexer interface {
	// Engines lists the engines visible to the configured key.
	Engines(ctx context.Context) ([]Engine, error)

	// CreateEngine provisions a new engine.
	CreateEngine(ctx context.Context, name string) (Engine, error)

	// DocumentTypes lists the document types of an engine.
	DocumentTypes(ctx context.Context, engineID string) ([]DocumentType, error)

	// CreateDocumentType provisions a document type under an engine.
	CreateDocumentType(ctx context.Context, engineID, name string) (DocumentType, error)

	// DeleteDocumentType removes a document type and all of its documents.
	// Removal may complete asynchronously on the remote side.
	DeleteDocumentType(ctx context.Context, engineID, typeID string) error

	// Upsert creates or updates one document.
	Upsert(ctx context.Context, engineID, typeID string, doc schema.Document) error

	// BulkUpsert creates or updates many documents in one call.
	BulkUpsert(ctx context.Context, engineID, typeID string, docs []schema.Document) error

	// Delete removes one document. Returns ErrNotFound when it is absent.
	Delete(ctx context.Context, engineID, typeID, externalID string) error

	// HealthCheck checks the remote service is reachable with the current key.
	HealthCheck(ctx context.Context) error

	// Close cleans up any resources held by the indexer.
	Close() error
}
