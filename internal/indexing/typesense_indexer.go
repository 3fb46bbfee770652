package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"searchsync/internal/schema"

	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
	"github.com/typesense/typesense-go/typesense/api/pointer"
)

// collectionSeparator joins engine and document type into a collection name.
const collectionSeparator = "__"

var _ Indexer = (*TypesenseClient)(nil)

// TypesenseClient maps engines and document types onto Typesense collections
// named <engine>__<type>. Engines have no server-side representation of their
// own, so engines created here are remembered until they hold a collection.
type TypesenseClient struct {
	client *typesense.Client
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string]bool
}

func NewTypesenseClient(apiKey, url string, logger *slog.Logger) *TypesenseClient {
	client := typesense.NewClient(
		typesense.WithServer(url),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)
	return &TypesenseClient{client: client, logger: logger, engines: make(map[string]bool)}
}

func (t *TypesenseClient) Engines(ctx context.Context) ([]Engine, error) {
	names, err := t.collections(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	seen := make(map[string]bool, len(t.engines))
	for name := range t.engines {
		seen[name] = true
	}
	t.mu.Unlock()

	for _, n := range names {
		if engine, _, ok := strings.Cut(n, collectionSeparator); ok {
			seen[engine] = true
		}
	}

	engines := make([]Engine, 0, len(seen))
	for name := range seen {
		engines = append(engines, Engine{ID: name, Name: name})
	}
	slices.SortFunc(engines, func(a, b Engine) int { return strings.Compare(a.Name, b.Name) })
	return engines, nil
}

func (t *TypesenseClient) CreateEngine(_ context.Context, name string) (Engine, error) {
	if name == "" || strings.Contains(name, collectionSeparator) {
		return Engine{}, fmt.Errorf("typesense engine name %q is not usable as a collection prefix", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.engines[name] = true
	return Engine{ID: name, Name: name}, nil
}

func (t *TypesenseClient) DocumentTypes(ctx context.Context, engineID string) ([]DocumentType, error) {
	names, err := t.collections(ctx)
	if err != nil {
		return nil, err
	}

	var types []DocumentType
	for _, n := range names {
		if docType, ok := strings.CutPrefix(n, engineID+collectionSeparator); ok {
			types = append(types, DocumentType{ID: n, Name: docType})
		}
	}
	return types, nil
}

func (t *TypesenseClient) CreateDocumentType(ctx context.Context, engineID, name string) (DocumentType, error) {
	collection := engineID + collectionSeparator + name

	_, err := t.client.Collections().Create(ctx, &api.CollectionSchema{
		Name: collection,
		Fields: []api.Field{
			{Name: ".*", Type: "auto", Optional: pointer.True()},
		},
	})
	if err != nil {
		return DocumentType{}, fmt.Errorf("typesense create collection %s failed: %w", collection, err)
	}
	return DocumentType{ID: collection, Name: name}, nil
}

func (t *TypesenseClient) DeleteDocumentType(ctx context.Context, _, typeID string) error {
	if _, err := t.client.Collection(typeID).Delete(ctx); err != nil {
		return fmt.Errorf("typesense delete collection %s failed: %w", typeID, err)
	}
	return nil
}

func (t *TypesenseClient) Upsert(ctx context.Context, _, typeID string, doc schema.Document) error {
	// Typesense "Upsert" logic
	_, err := t.client.Collection(typeID).Documents().Upsert(ctx, flatten(doc))
	if err != nil {
		// Wrap errors so the caller knows it came from the search layer
		return fmt.Errorf("typesense upsert failed: %w", err)
	}
	return nil
}

// BulkUpsert sends the batch as one import. Typesense answers with a result per
// document; rejected documents are logged and do not fail the batch.
func (t *TypesenseClient) BulkUpsert(ctx context.Context, _, typeID string, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = flatten(doc)
	}

	results, err := t.client.Collection(typeID).Documents().Import(ctx, batch, &api.ImportDocumentsParams{
		Action: pointer.String("upsert"),
	})
	if err != nil {
		return fmt.Errorf("typesense import into %s failed: %w", typeID, err)
	}

	for i, r := range results {
		if r.Success || i >= len(docs) {
			continue
		}
		t.logger.WarnContext(ctx, "Document rejected by bulk import",
			"collection", typeID, "external_id", docs[i].ExternalID, "reason", r.Error)
	}
	return nil
}

func (t *TypesenseClient) Delete(ctx context.Context, _, typeID, externalID string) error {
	_, err := t.client.Collection(typeID).Document(externalID).Delete(ctx)

	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("typesense delete failed: %w", err)
	}
	return nil
}

func (t *TypesenseClient) HealthCheck(ctx context.Context) error {
	isHealthy, err := t.client.Health(ctx, time.Second*5)
	if err != nil {
		return fmt.Errorf("typesense health check failed: %w", err)
	}
	if !isHealthy {
		return fmt.Errorf("typesense is unhealthy")
	}

	return nil
}

func (t *TypesenseClient) Close() error {
	// Typesense client does not require explicit closure
	return nil
}

func (t *TypesenseClient) collections(ctx context.Context) ([]string, error) {
	resp, err := t.client.Collections().Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("typesense list collections failed: %w", err)
	}
	names := make([]string, 0, len(resp))
	for _, c := range resp {
		names = append(names, c.Name)
	}
	return names, nil
}

// flatten turns a Document into the flat object Typesense stores.
// Typesense requires a string id; fields without a value are left out.
func flatten(doc schema.Document) map[string]any {
	out := make(map[string]any, len(doc.Fields)+1)
	for _, f := range doc.Fields {
		if f.Value == nil {
			continue
		}
		out[f.Name] = f.Value
	}
	out["id"] = strconv.FormatInt(doc.ExternalID, 10)
	return out
}
