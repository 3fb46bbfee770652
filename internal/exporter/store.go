package exporter

import (
	"context"
	"strings"
)

// RelationKind distinguishes how a relation is flattened into a document.
type RelationKind string

const (
	HasOne   RelationKind = "has_one"
	HasMany  RelationKind = "has_many"
	ManyMany RelationKind = "many_many"
)

// Relation describes one relation of a class. ForeignKey and JoinTable are
// optional overrides for stores that map relations onto tables.
type Relation struct {
	Name       string       `toml:"name"`
	Kind       RelationKind `toml:"kind"`
	Target     string       `toml:"target"`
	ForeignKey string       `toml:"foreign_key"`
	JoinTable  string       `toml:"join_table"`
}

// ClassSchema is the static description of an exportable class: its declared
// column types and its relations.
type ClassSchema struct {
	Class      string            `toml:"class"`
	Table      string            `toml:"table"`
	Fields     map[string]string `toml:"fields"`
	Relations  []Relation        `toml:"relations"`
	Versioned  bool              `toml:"versioned"`
	IsFile     bool              `toml:"is_file"`
	TitleField string            `toml:"title_field"`
}

// VisibilityField marks classes whose records opt in or out of search.
const VisibilityField = "ShowInSearch"

// HasVisibilityFilter reports whether only records flagged visible should be exported.
func (c ClassSchema) HasVisibilityFilter() bool {
	_, ok := c.Fields[VisibilityField]
	return ok
}

// TableName defaults to the class name.
func (c ClassSchema) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Class
}

// Title returns the column used as the display title.
func (c ClassSchema) Title() string {
	if c.TitleField != "" {
		return c.TitleField
	}
	return "Title"
}

// Column is one column value of a record.
type Column struct {
	Name  string
	Value any
}

// Record is one row of a class. Columns keep the order the store returned them in.
type Record struct {
	ID      int64
	Class   string
	Columns []Column
}

// Value returns the value of a column.
func (r *Record) Value(name string) (any, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// Set replaces a column value, appending the column if it is missing.
func (r *Record) Set(name string, value any) {
	for i, c := range r.Columns {
		if c.Name == name {
			r.Columns[i].Value = value
			return
		}
	}
	r.Columns = append(r.Columns, Column{Name: name, Value: value})
}

// Related is the part of a related object a document needs.
type Related struct {
	ID      int64
	Title   string
	Content string
	HTML    string
	// FileKey is set when the related object is a file; it locates the file in storage.
	FileKey string
}

// IsFile reports whether the related object is a file attachment.
func (r Related) IsFile() bool { return r.FileKey != "" }

// Text returns Content, falling back to HTML.
func (r Related) Text() string {
	if strings.TrimSpace(r.Content) != "" {
		return r.Content
	}
	return r.HTML
}

// Query selects a window of records of one class.
type Query struct {
	Class       string
	OnlyVisible bool
	Offset      int
	Limit       int
}

// Store is the record-store collaborator the exporter reads from.
type Store interface {
	// Schema returns the static description of a class.
	Schema(class string) (ClassSchema, error)

	// Get returns a record by id, or nil when it does not exist.
	Get(ctx context.Context, class string, id int64) (*Record, error)

	// LiveVersion returns the published version of a versioned record, or nil.
	LiveVersion(ctx context.Context, class string, id int64) (*Record, error)

	// Count returns the number of records matching q (Offset/Limit ignored).
	Count(ctx context.Context, q Query) (int, error)

	// Page returns at most q.Limit records starting at q.Offset, in a stable order.
	Page(ctx context.Context, q Query) ([]*Record, error)

	// One follows a has_one relation. A null reference returns nil, nil.
	One(ctx context.Context, rec *Record, rel Relation) (*Related, error)

	// Many follows a has_many or many_many relation.
	Many(ctx context.Context, rec *Record, rel Relation) ([]Related, error)
}

// Releaser is implemented by stores that hold per-record resources.
type Releaser interface {
	Release(rec *Record)
}

// FileURLs turns a stored file key into an absolute URL.
type FileURLs interface {
	AbsoluteURL(ctx context.Context, key string) (string, error)
}
