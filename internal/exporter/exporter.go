package exporter

import (
	"context"
	"fmt"
	"log/slog"

	"searchsync/internal/schema"
)

// Exporter builds search documents from records.
type Exporter struct {
	store      Store
	translator *schema.Translator
	files      FileURLs
	enrichers  []DocumentEnricher
	searchable []string
	logger     *slog.Logger
}

type Option func(*Exporter)

func WithTranslator(t *schema.Translator) Option {
	return func(e *Exporter) { e.translator = t }
}

// WithFileURLs sets the resolver used for {relation}_URL fields. Without one,
// file relations only produce their title field.
func WithFileURLs(f FileURLs) Option {
	return func(e *Exporter) { e.files = f }
}

func WithEnrichers(enrichers ...DocumentEnricher) Option {
	return func(e *Exporter) { e.enrichers = append(e.enrichers, enrichers...) }
}

// WithSearchableAttributes lists columns that are always indexed as string.
func WithSearchableAttributes(columns []string) Option {
	return func(e *Exporter) { e.searchable = columns }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		store:      store,
		translator: &schema.Translator{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export builds one document. It returns nil, nil when the record has no
// published version and must stay out of the index. A SCHEMA error aborts the
// record; failures following relations only drop the affected field.
func (e *Exporter) Export(ctx context.Context, rec *Record, client string) (*schema.Document, error) {
	if rec == nil {
		return nil, nil
	}

	cls, err := e.store.Schema(rec.Class)
	if err != nil {
		return nil, err
	}

	releaser, _ := e.store.(Releaser)
	if releaser != nil {
		defer releaser.Release(rec)
	}

	if cls.Versioned {
		live, err := e.store.LiveVersion(ctx, rec.Class, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("load live version of %s #%d: %w", rec.Class, rec.ID, err)
		}
		if live == nil {
			e.logger.DebugContext(ctx, "Record has no live version, excluding from index", "class", rec.Class, "record_id", rec.ID)
			return nil, nil
		}
		if releaser != nil && live != rec {
			defer releaser.Release(live)
		}
		rec = live
	}

	doc := &schema.Document{ExternalID: rec.ID, Fields: []schema.FieldSchema{}}

	for _, col := range rec.Columns {
		declared, ok := cls.Fields[col.Name]
		if !ok {
			continue
		}

		value := col.Value
		if col.Name == MarkupField {
			value = StripMarkup(value)
		}

		field, err := e.translator.Translate(col.Name, value, declared, e.searchable)
		if err != nil {
			return nil, fmt.Errorf("export %s #%d: %w", rec.Class, rec.ID, err)
		}
		doc.Append(field)
	}

	e.exportRelations(ctx, cls, rec, doc)

	for _, enricher := range e.enrichers {
		kept := len(doc.Fields)
		if err := enricher.Enrich(ctx, doc, client); err != nil {
			doc.Fields = doc.Fields[:kept]
			e.logger.WarnContext(ctx, "Enricher failed, keeping document without its fields",
				"class", rec.Class, "record_id", rec.ID, "error", err)
		}
	}

	return doc, nil
}

func (e *Exporter) exportRelations(ctx context.Context, cls ClassSchema, rec *Record, doc *schema.Document) {
	for _, kind := range []RelationKind{HasOne, HasMany, ManyMany} {
		for _, rel := range cls.Relations {
			if rel.Kind != kind {
				continue
			}

			switch kind {
			case HasOne:
				e.exportOne(ctx, rec, rel, doc)
			case HasMany:
				e.exportMany(ctx, rec, rel, doc, false)
			case ManyMany:
				e.exportMany(ctx, rec, rel, doc, true)
			}
		}
	}
}

func (e *Exporter) exportOne(ctx context.Context, rec *Record, rel Relation, doc *schema.Document) {
	item, err := e.store.One(ctx, rec, rel)
	if err != nil {
		e.skipField(ctx, rec, rel, err)
		return
	}
	if item == nil {
		return
	}

	if !item.IsFile() {
		doc.Append(schema.FieldSchema{Type: schema.Enum, Name: rel.Name, Value: item.Title})
		return
	}

	if e.files != nil {
		url, err := e.files.AbsoluteURL(ctx, item.FileKey)
		if err != nil {
			e.skipField(ctx, rec, rel, err)
		} else {
			doc.Append(schema.FieldSchema{Type: schema.Enum, Name: rel.Name + "_URL", Value: url})
		}
	}
	doc.Append(schema.FieldSchema{Type: schema.Enum, Name: rel.Name + "_Title", Value: item.Title})
}

func (e *Exporter) exportMany(ctx context.Context, rec *Record, rel Relation, doc *schema.Document, withContent bool) {
	items, err := e.store.Many(ctx, rec, rel)
	if err != nil {
		e.skipField(ctx, rec, rel, err)
		return
	}

	titles := make([]string, 0, len(items))
	var contents []string
	for _, item := range items {
		titles = append(titles, item.Title)
		if text := item.Text(); withContent && text != "" {
			contents = append(contents, text)
		}
	}

	if len(titles) > 0 {
		doc.Append(schema.FieldSchema{Type: schema.Enum, Name: rel.Name, Value: titles})
	}
	if len(contents) > 0 {
		doc.Append(schema.FieldSchema{Type: schema.Enum, Name: rel.Name + "_Content", Value: contents})
	}
}

func (e *Exporter) skipField(ctx context.Context, rec *Record, rel Relation, err error) {
	e.logger.WarnContext(ctx, "Skipping relation field",
		"class", rec.Class, "record_id", rec.ID, "relation", rel.Name, "error", err)
}
