package schema

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "searchsync/internal/errors"

	"github.com/araddon/dateparse"
)

// DateLayout is ISO-8601 with a numeric zone offset (PHP's "c" format).
const DateLayout = "2006-01-02T15:04:05-07:00"

// DefaultUploadTypes are declared types whose form widget is a file picker.
// Their column holds the id of the uploaded file.
var DefaultUploadTypes = []string{"File", "Image", "UploadField", "FileUpload"}

// alwaysString are column names indexed as string whatever their declared type.
var alwaysString = []string{"Name", "Title"}

// Translator maps (column, raw value, declared type) to a FieldSchema.
// The zero value is usable: UTC dates, lenient numbers, default upload types.
type Translator struct {
	// Location is used for date values that carry no zone. Defaults to UTC.
	Location *time.Location

	// StrictNumeric makes non-numeric input to integer/float fields a SCHEMA
	// error instead of coercing it to zero.
	StrictNumeric bool

	// UploadTypes overrides DefaultUploadTypes when non-nil.
	UploadTypes []string
}

// Translate classifies one column. Rules are evaluated in order and the first
// match wins. Only unparseable dates (and, in strict mode, non-numeric numbers)
// produce an error.
func (t *Translator) Translate(column string, raw any, declared string, searchable []string) (FieldSchema, error) {
	raw = normalise(raw)
	field := FieldSchema{Type: Enum, Name: column, Value: raw}

	switch {
	case slices.Contains(alwaysString, column) || slices.Contains(searchable, column):
		field.Type = String
		return field, nil

	case strings.Contains(declared, "Varchar"):
		field.Type = String
		return field, nil

	case column == "ID" || declared == "PrimaryKey" || declared == "ForeignKey":
		return t.integer(field)

	case strings.Contains(declared, "HTML") || column == "Content":
		field.Type = Text
		return field, nil

	case strings.HasPrefix(declared, "Int"):
		return t.integer(field)

	case strings.Contains(declared, "Decimal") || strings.Contains(declared, "Currency"):
		return t.float(field)

	case strings.Contains(declared, "Date"):
		return t.date(field)

	case strings.Contains(declared, "Enum"):
		field.Type = Enum
		return field, nil

	case t.isUpload(declared):
		return t.integer(field)
	}

	return field, nil
}

func (t *Translator) integer(field FieldSchema) (FieldSchema, error) {
	field.Type = Integer
	n, ok := parseInteger(field.Value)
	if !ok && t.StrictNumeric {
		return field, apperrors.Newf(apperrors.ErrSchema, nil, "field %s: %q is not an integer", field.Name, fmt.Sprint(field.Value))
	}
	field.Value = n
	return field, nil
}

func (t *Translator) float(field FieldSchema) (FieldSchema, error) {
	field.Type = Float
	f, ok := parseNumber(field.Value)
	if !ok && t.StrictNumeric {
		return field, apperrors.Newf(apperrors.ErrSchema, nil, "field %s: %q is not a number", field.Name, fmt.Sprint(field.Value))
	}
	field.Value = f
	return field, nil
}

func (t *Translator) date(field FieldSchema) (FieldSchema, error) {
	field.Type = Date

	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}

	switch v := field.Value.(type) {
	case nil:
		return field, nil
	case time.Time:
		field.Value = v.In(loc).Format(DateLayout)
		return field, nil
	case string:
		if strings.TrimSpace(v) == "" {
			field.Value = nil
			return field, nil
		}
		parsed, err := dateparse.ParseIn(strings.TrimSpace(v), loc)
		if err != nil {
			return field, apperrors.Newf(apperrors.ErrSchema, err, "field %s: invalid date %q", field.Name, v)
		}
		field.Value = parsed.Format(DateLayout)
		return field, nil
	}

	return field, apperrors.Newf(apperrors.ErrSchema, nil, "field %s: unsupported date value %T", field.Name, field.Value)
}

func (t *Translator) isUpload(declared string) bool {
	types := t.UploadTypes
	if types == nil {
		types = DefaultUploadTypes
	}
	return slices.Contains(types, baseType(declared))
}

// baseType strips constructor arguments: "Varchar(255)" -> "Varchar".
func baseType(declared string) string {
	if i := strings.IndexByte(declared, '('); i >= 0 {
		declared = declared[:i]
	}
	return strings.TrimSpace(declared)
}

func normalise(raw any) any {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

func parseInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := parseNumber(v)
	if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// parseNumber converts the stringified value. Anything non-numeric is 0, false.
// NaN and the infinities count as non-numeric: they cannot be encoded as JSON.
func parseNumber(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
