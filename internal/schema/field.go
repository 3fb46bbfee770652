// Package schema holds the search document model and the rules that map
// relational column metadata onto it.
package schema

// FieldType is one of the fixed search-schema types understood by the remote index.
type FieldType string

const (
	String  FieldType = "string"
	Text    FieldType = "text"
	Integer FieldType = "integer"
	Float   FieldType = "float"
	Date    FieldType = "date"
	Enum    FieldType = "enum"
)

// FieldSchema is one typed field of a Document.
type FieldSchema struct {
	Type  FieldType `json:"type"`
	Name  string    `json:"name"`
	Value any       `json:"value"`
}

// Document is one exported record. Fields keep insertion order.
type Document struct {
	ExternalID int64         `json:"external_id"`
	Fields     []FieldSchema `json:"fields"`
}

// Field returns the first field with the given name.
func (d *Document) Field(name string) (FieldSchema, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Append adds a field at the end of the document.
func (d *Document) Append(f FieldSchema) {
	d.Fields = append(d.Fields, f)
}

// WithSearchableTypes returns a copy of the document in which enum and text
// fields are sent as string, since the remote index does not partial-match
// on enum or text fields.
func (d Document) WithSearchableTypes() Document {
	fields := make([]FieldSchema, len(d.Fields))
	for i, f := range d.Fields {
		if f.Type == Enum || f.Type == Text {
			f.Type = String
		}
		fields[i] = f
	}
	return Document{ExternalID: d.ExternalID, Fields: fields}
}
