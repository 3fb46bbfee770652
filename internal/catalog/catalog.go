// Package catalog loads the static description of what gets indexed: the
// logical indices and the schema of every exportable class.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"searchsync/internal/exporter"
	"searchsync/internal/indexing"

	"github.com/pelletier/go-toml/v2"
)

// Catalog is the parsed catalog file.
//
//	[[index]]
//	name  = "site"
//	class = "FAQ"
//
//	[[class]]
//	class = "FAQ"
//	fields = { ID = "PrimaryKey", Name = "Varchar(255)" }
type Catalog struct {
	Indices []indexing.IndexConfig `toml:"index"`
	Classes []exporter.ClassSchema `toml:"class"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a catalog document. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cat); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks that every index points at a declared class and that
// class declarations are complete.
func (c *Catalog) Validate() error {
	var errs []error

	classes := make(map[string]bool, len(c.Classes))
	for i, cls := range c.Classes {
		if cls.Class == "" {
			errs = append(errs, fmt.Errorf("class #%d: missing name", i+1))
			continue
		}
		if classes[cls.Class] {
			errs = append(errs, fmt.Errorf("class %s: declared twice", cls.Class))
		}
		classes[cls.Class] = true

		if len(cls.Fields) == 0 {
			errs = append(errs, fmt.Errorf("class %s: no fields", cls.Class))
		}
		for _, rel := range cls.Relations {
			if !slices.Contains([]exporter.RelationKind{exporter.HasOne, exporter.HasMany, exporter.ManyMany}, rel.Kind) {
				errs = append(errs, fmt.Errorf("class %s: relation %s has unknown kind %q", cls.Class, rel.Name, rel.Kind))
			}
			if rel.Name == "" || rel.Target == "" {
				errs = append(errs, fmt.Errorf("class %s: relation needs a name and a target", cls.Class))
			}
		}
	}

	indices := make(map[string]bool, len(c.Indices))
	for i, idx := range c.Indices {
		if idx.Name == "" {
			errs = append(errs, fmt.Errorf("index #%d: missing name", i+1))
			continue
		}
		if indices[idx.Name] {
			errs = append(errs, fmt.Errorf("index %s: declared twice", idx.Name))
		}
		indices[idx.Name] = true

		if idx.CrawlBased {
			continue
		}
		if !classes[idx.Class] {
			errs = append(errs, fmt.Errorf("index %s: class %q is not declared", idx.Name, idx.Class))
		}
	}

	return errors.Join(errs...)
}

// Class returns the declared schema of a class.
func (c *Catalog) Class(name string) (exporter.ClassSchema, bool) {
	for _, cls := range c.Classes {
		if cls.Class == name {
			return cls, true
		}
	}
	return exporter.ClassSchema{}, false
}
