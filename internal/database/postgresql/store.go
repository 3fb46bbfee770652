package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"searchsync/internal/exporter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// LiveSuffix names the table holding published versions of a versioned class.
	LiveSuffix = "_Live"
	// FileKeyColumn holds the storage key of file classes.
	FileKeyColumn = "Filename"

	idColumn      = "ID"
	contentColumn = "Content"
	htmlColumn    = "HTML"
)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ exporter.Store = (*Store)(nil)

// Store reads records of the catalog's classes, one table per class.
// Relations follow naming conventions unless the relation overrides them:
// has_one reads <Relation>ID on the record, has_many reads <Class>ID on the
// target, many_many joins through <Class>_<Relation>.
type Store struct {
	db      Querier
	classes map[string]exporter.ClassSchema
}

func NewStore(db Querier, classes ...exporter.ClassSchema) *Store {
	s := &Store{db: db, classes: make(map[string]exporter.ClassSchema, len(classes))}
	for _, c := range classes {
		s.classes[c.Class] = c
	}
	return s
}

func (s *Store) Schema(class string) (exporter.ClassSchema, error) {
	cls, ok := s.classes[class]
	if !ok {
		return exporter.ClassSchema{}, fmt.Errorf("class %q is not in the catalog", class)
	}
	return cls, nil
}

func (s *Store) Get(ctx context.Context, class string, id int64) (*exporter.Record, error) {
	cls, err := s.Schema(class)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, cls, cls.TableName(), id)
}

func (s *Store) LiveVersion(ctx context.Context, class string, id int64) (*exporter.Record, error) {
	cls, err := s.Schema(class)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, cls, cls.TableName()+LiveSuffix, id)
}

func (s *Store) Count(ctx context.Context, q exporter.Query) (int, error) {
	cls, err := s.Schema(q.Class)
	if err != nil {
		return 0, err
	}

	sql := "SELECT count(*) FROM " + ident(cls.TableName()) + visibility(q)

	var n int64
	if err := s.db.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Class, err)
	}
	return int(n), nil
}

func (s *Store) Page(ctx context.Context, q exporter.Query) ([]*exporter.Record, error) {
	cls, err := s.Schema(q.Class)
	if err != nil {
		return nil, err
	}

	sql := "SELECT * FROM " + ident(cls.TableName()) + visibility(q) +
		" ORDER BY " + ident(idColumn) + " LIMIT $1 OFFSET $2"

	rows, err := s.db.Query(ctx, sql, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("page %s at offset %d: %w", q.Class, q.Offset, err)
	}
	return collect(rows, cls.Class)
}

func (s *Store) One(ctx context.Context, rec *exporter.Record, rel exporter.Relation) (*exporter.Related, error) {
	fk := rel.ForeignKey
	if fk == "" {
		fk = rel.Name + idColumn
	}

	raw, _ := rec.Value(fk)
	id, ok := toInt64(raw)
	if !ok || id == 0 {
		return nil, nil
	}

	target := s.target(rel.Target)
	related, err := s.one(ctx, target, target.TableName(), id)
	if err != nil || related == nil {
		return nil, err
	}

	out := toRelated(target, related)
	return &out, nil
}

func (s *Store) Many(ctx context.Context, rec *exporter.Record, rel exporter.Relation) ([]exporter.Related, error) {
	target := s.target(rel.Target)

	var sql string
	switch rel.Kind {
	case exporter.HasMany:
		fk := rel.ForeignKey
		if fk == "" {
			fk = rec.Class + idColumn
		}
		sql = "SELECT * FROM " + ident(target.TableName()) +
			" WHERE " + ident(fk) + " = $1 ORDER BY " + ident(idColumn)
	case exporter.ManyMany:
		join := rel.JoinTable
		if join == "" {
			join = rec.Class + "_" + rel.Name
		}
		sql = "SELECT t.* FROM " + ident(target.TableName()) + " t JOIN " + ident(join) + " j ON j." +
			ident(target.Class+idColumn) + " = t." + ident(idColumn) +
			" WHERE j." + ident(rec.Class+idColumn) + " = $1 ORDER BY t." + ident(idColumn)
	default:
		return nil, fmt.Errorf("relation %s of %s is %s, not a list", rel.Name, rec.Class, rel.Kind)
	}

	rows, err := s.db.Query(ctx, sql, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("follow %s.%s: %w", rec.Class, rel.Name, err)
	}
	records, err := collect(rows, target.Class)
	if err != nil {
		return nil, err
	}

	out := make([]exporter.Related, 0, len(records))
	for _, r := range records {
		out = append(out, toRelated(target, r))
	}
	return out, nil
}

func (s *Store) one(ctx context.Context, cls exporter.ClassSchema, table string, id int64) (*exporter.Record, error) {
	sql := "SELECT * FROM " + ident(table) + " WHERE " + ident(idColumn) + " = $1"

	rows, err := s.db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("load %s #%d from %s: %w", cls.Class, id, table, err)
	}
	records, err := collect(rows, cls.Class)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// target returns the schema of a relation target. Targets outside the
// catalog are read from a table named after the class.
func (s *Store) target(class string) exporter.ClassSchema {
	if cls, ok := s.classes[class]; ok {
		return cls
	}
	return exporter.ClassSchema{Class: class, IsFile: class == "File"}
}

func collect(rows pgx.Rows, class string) ([]*exporter.Record, error) {
	defer rows.Close()

	var records []*exporter.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s row: %w", class, err)
		}

		rec := &exporter.Record{Class: class, Columns: make([]exporter.Column, 0, len(values))}
		for i, fd := range rows.FieldDescriptions() {
			v := normalise(fd.DataTypeOID, values[i])
			rec.Columns = append(rec.Columns, exporter.Column{Name: fd.Name, Value: v})
			if strings.EqualFold(fd.Name, idColumn) {
				rec.ID, _ = toInt64(v)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s rows: %w", class, err)
	}
	return records, nil
}

func toRelated(cls exporter.ClassSchema, rec *exporter.Record) exporter.Related {
	out := exporter.Related{ID: rec.ID}
	out.Title = text(rec, cls.Title())
	out.Content = text(rec, contentColumn)
	out.HTML = text(rec, htmlColumn)
	if cls.IsFile {
		out.FileKey = text(rec, FileKeyColumn)
	}
	return out
}

func text(rec *exporter.Record, column string) string {
	v, ok := rec.Value(column)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func visibility(q exporter.Query) string {
	if !q.OnlyVisible {
		return ""
	}
	return " WHERE " + ident(exporter.VisibilityField) + " = true"
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// naiveLayout renders zone-less timestamp and date columns as wall-clock text,
// so the translator places them in its configured location.
const naiveLayout = "2006-01-02 15:04:05.999999999"

// normalise maps driver types onto the plain Go values the translator understands.
func normalise(oid uint32, v any) any {
	switch n := v.(type) {
	case time.Time:
		if oid == pgtype.TimestampOID || oid == pgtype.DateOID {
			return n.Format(naiveLayout)
		}
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	case pgtype.Numeric:
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
