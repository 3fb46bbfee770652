package exporter

import (
	"context"
	"strconv"
	"strings"

	"searchsync/internal/schema"
)

// DocumentEnricher can append or rewrite fields once the core fields are built.
// client identifies the remote the document is being exported for.
type DocumentEnricher interface {
	Enrich(ctx context.Context, doc *schema.Document, client string) error
}

// EnricherFunc adapts a function to DocumentEnricher.
type EnricherFunc func(ctx context.Context, doc *schema.Document, client string) error

func (f EnricherFunc) Enrich(ctx context.Context, doc *schema.Document, client string) error {
	return f(ctx, doc, client)
}

// LinkEnricher appends a deep link "<PageLink>/<external_id>" as a text field
// named Link, for documents exported to Client only.
type LinkEnricher struct {
	Client   string
	PageLink string
}

func (l LinkEnricher) Enrich(_ context.Context, doc *schema.Document, client string) error {
	if client != l.Client || l.PageLink == "" {
		return nil
	}

	doc.Append(schema.FieldSchema{
		Type:  schema.Text,
		Name:  "Link",
		Value: strings.TrimRight(l.PageLink, "/") + "/" + strconv.FormatInt(doc.ExternalID, 10),
	})
	return nil
}
