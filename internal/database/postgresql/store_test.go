package postgresql_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"searchsync/internal/database/postgresql"
	"searchsync/internal/exporter"
	"searchsync/internal/schema"
	"searchsync/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var faq = exporter.ClassSchema{
	Class: "FAQ",
	Table: "faq",
	Fields: map[string]string{
		"ID":           "PrimaryKey",
		"Name":         "Varchar(255)",
		"Answer":       "HTMLText",
		"CategoryID":   "ForeignKey",
		"ShowInSearch": "Boolean",
		"Created":      "Datetime",
	},
	Relations: []exporter.Relation{
		{Name: "Category", Kind: exporter.HasOne, Target: "FAQCategory"},
		{Name: "Attachment", Kind: exporter.HasOne, Target: "File"},
		{Name: "Notes", Kind: exporter.HasMany, Target: "FAQNote"},
		{Name: "Tags", Kind: exporter.ManyMany, Target: "FAQTag"},
	},
	Versioned: true,
}

var category = exporter.ClassSchema{Class: "FAQCategory", Table: "faq_category", Fields: map[string]string{"ID": "PrimaryKey"}}

func faqRow(rows *pgxmock.Rows, id int32, name string) *pgxmock.Rows {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return rows.AddRow(id, name, "<p>Ask us</p>", int32(3), true, created)
}

func TestStore_Get(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq, category)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq" WHERE "ID" = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(faqRow(pgxmock.NewRows(testutil.FAQCols), 7, "Pricing"))

	rec, err := store.Get(context.Background(), "FAQ", 7)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, "FAQ", rec.Class)
	require.Len(t, rec.Columns, len(testutil.FAQCols))
	for i, col := range rec.Columns {
		assert.Equal(t, testutil.FAQCols[i], col.Name, "column order is kept")
	}
	categoryID, _ := rec.Value("CategoryID")
	assert.Equal(t, int64(3), categoryID, "int4 is widened")

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_GetMissing(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq" WHERE "ID" = $1`)).
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(testutil.FAQCols))

	rec, err := store.Get(context.Background(), "FAQ", 99)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_LiveVersionReadsLiveTable(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq_Live" WHERE "ID" = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(faqRow(pgxmock.NewRows(testutil.FAQCols), 7, "Pricing (published)"))

	rec, err := store.LiveVersion(context.Background(), "FAQ", 7)
	require.NoError(t, err)
	name, _ := rec.Value("Name")
	assert.Equal(t, "Pricing (published)", name)
}

func TestStore_CountAndPageApplyVisibility(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)
	ctx := context.Background()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "faq" WHERE "ShowInSearch" = true`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(45)))

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq" WHERE "ShowInSearch" = true ORDER BY "ID" LIMIT $1 OFFSET $2`)).
		WithArgs(20, 40).
		WillReturnRows(faqRow(faqRow(pgxmock.NewRows(testutil.FAQCols), 41, "A"), 42, "B"))

	n, err := store.Count(ctx, exporter.Query{Class: "FAQ", OnlyVisible: true})
	require.NoError(t, err)
	assert.Equal(t, 45, n)

	page, err := store.Page(ctx, exporter.Query{Class: "FAQ", OnlyVisible: true, Offset: 40, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(41), page[0].ID)
	assert.Equal(t, int64(42), page[1].ID)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_PageError(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq"`)).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Page(context.Background(), exporter.Query{Class: "FAQ", Limit: 20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 0")
}

func TestStore_HasOne(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq, category)
	rec := &exporter.Record{ID: 7, Class: "FAQ", Columns: []exporter.Column{{Name: "CategoryID", Value: int64(3)}, {Name: "AttachmentID", Value: int64(0)}}}

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq_category" WHERE "ID" = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(testutil.RelatedCols).AddRow(int32(3), "Billing", nil))

	related, err := store.One(context.Background(), rec, faq.Relations[0])
	require.NoError(t, err)
	require.NotNil(t, related)
	assert.Equal(t, exporter.Related{ID: 3, Title: "Billing"}, *related)

	related, err = store.One(context.Background(), rec, faq.Relations[1])
	require.NoError(t, err)
	assert.Nil(t, related, "zero foreign key is a null reference")

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_HasOneFile(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)
	rec := &exporter.Record{ID: 7, Class: "FAQ", Columns: []exporter.Column{{Name: "AttachmentID", Value: int64(15)}}}

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "File" WHERE "ID" = $1`)).
		WithArgs(int64(15)).
		WillReturnRows(pgxmock.NewRows(testutil.FileCols).AddRow(int64(15), "Price list", "assets/prices.pdf"))

	related, err := store.One(context.Background(), rec, faq.Relations[1])
	require.NoError(t, err)
	assert.True(t, related.IsFile())
	assert.Equal(t, "assets/prices.pdf", related.FileKey)
}

func TestStore_HasManyAndManyMany(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	store := postgresql.NewStore(mockPool, faq)
	rec := &exporter.Record{ID: 7, Class: "FAQ"}
	ctx := context.Background()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "FAQNote" WHERE "FAQID" = $1 ORDER BY "ID"`)).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(testutil.RelatedCols).AddRow(int64(1), "first", nil).AddRow(int64(2), "second", nil))

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT t.* FROM "FAQTag" t JOIN "FAQ_Tags" j ON j."FAQTagID" = t."ID" WHERE j."FAQID" = $1 ORDER BY t."ID"`)).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(testutil.RelatedCols).AddRow(int64(4), "money", "All about money"))

	notes, err := store.Many(ctx, rec, faq.Relations[2])
	require.NoError(t, err)
	assert.Equal(t, []exporter.Related{{ID: 1, Title: "first"}, {ID: 2, Title: "second"}}, notes)

	tags, err := store.Many(ctx, rec, faq.Relations[3])
	require.NoError(t, err)
	assert.Equal(t, []exporter.Related{{ID: 4, Title: "money", Content: "All about money"}}, tags)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_UnknownClass(t *testing.T) {
	store := postgresql.NewStore(testutil.NewMockDB(t), faq)

	_, err := store.Get(context.Background(), "Page", 1)
	assert.Error(t, err)
}

func TestStore_FeedsTheExporter(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	cls := faq
	cls.Versioned = false
	cls.Relations = cls.Relations[:1]
	store := postgresql.NewStore(mockPool, cls, category)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq" WHERE "ID" = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(faqRow(pgxmock.NewRows(testutil.FAQCols), 7, "Pricing"))
	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "faq_category" WHERE "ID" = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(testutil.RelatedCols).AddRow(int64(3), "Billing", nil))

	ctx := context.Background()
	rec, err := store.Get(ctx, "FAQ", 7)
	require.NoError(t, err)

	doc, err := exporter.New(store, testutil.NewTestLogger()).Export(ctx, rec, "")
	require.NoError(t, err)

	created, _ := doc.Field("Created")
	assert.Equal(t, schema.FieldSchema{Type: schema.Date, Name: "Created", Value: "2024-03-01T09:30:00+00:00"}, created)
	cat, _ := doc.Field("Category")
	assert.Equal(t, "Billing", cat.Value)
	answer, _ := doc.Field("Answer")
	assert.Equal(t, "Ask us", answer.Value)
}

func TestStore_NaiveTimestampsFollowTranslatorLocation(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	cls := exporter.ClassSchema{
		Class:  "Event",
		Table:  "event",
		Fields: map[string]string{"ID": "PrimaryKey", "Starts": "Datetime", "Published": "Datetime"},
	}
	store := postgresql.NewStore(mockPool, cls)

	// pgx hands back both kinds as UTC instants.
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := pgxmock.NewRowsWithColumnDefinition(
		pgconn.FieldDescription{Name: "ID", DataTypeOID: pgtype.Int4OID},
		pgconn.FieldDescription{Name: "Starts", DataTypeOID: pgtype.TimestampOID},
		pgconn.FieldDescription{Name: "Published", DataTypeOID: pgtype.TimestamptzOID},
	).AddRow(int32(1), at, at)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "event" WHERE "ID" = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	ctx := context.Background()
	rec, err := store.Get(ctx, "Event", 1)
	require.NoError(t, err)

	starts, _ := rec.Value("Starts")
	assert.Equal(t, "2024-03-01 09:30:00", starts)

	tr := &schema.Translator{Location: time.FixedZone("NZST", 12*3600)}
	doc, err := exporter.New(store, testutil.NewTestLogger(), exporter.WithTranslator(tr)).Export(ctx, rec, "")
	require.NoError(t, err)

	field, _ := doc.Field("Starts")
	assert.Equal(t, "2024-03-01T09:30:00+12:00", field.Value, "wall clock is kept")
	field, _ = doc.Field("Published")
	assert.Equal(t, "2024-03-01T21:30:00+12:00", field.Value, "instant is kept")
}

func TestStore_NumericNaNIsIndexedAsZero(t *testing.T) {
	mockPool := testutil.NewMockDB(t)
	cls := exporter.ClassSchema{
		Class:  "Product",
		Table:  "product",
		Fields: map[string]string{"ID": "PrimaryKey", "Price": "Currency"},
	}
	store := postgresql.NewStore(mockPool, cls)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "product" WHERE "ID" = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"ID", "Price"}).AddRow(int32(1), pgtype.Numeric{NaN: true, Valid: true}))

	ctx := context.Background()
	rec, err := store.Get(ctx, "Product", 1)
	require.NoError(t, err)

	doc, err := exporter.New(store, testutil.NewTestLogger()).Export(ctx, rec, "")
	require.NoError(t, err)
	price, _ := doc.Field("Price")
	assert.Equal(t, schema.FieldSchema{Type: schema.Float, Name: "Price", Value: 0.0}, price)
}
