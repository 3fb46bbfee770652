package exporter

import (
	"context"
	"fmt"

	apperrors "searchsync/internal/errors"
	"searchsync/internal/schema"
)

// PageLength is the number of records fetched per window, independent of max.
const PageLength = 20

// BulkExport exports the records of class from startAt onwards, one window of
// PageLength records at a time. It stops at the end of the collection or as
// soon as max documents were built when max > 0. Records that produce no
// document or fail with a SCHEMA error are skipped.
func (e *Exporter) BulkExport(ctx context.Context, class string, startAt, max int, client string) ([]schema.Document, error) {
	cls, err := e.store.Schema(class)
	if err != nil {
		return nil, err
	}

	q := Query{
		Class:       class,
		OnlyVisible: cls.HasVisibilityFilter(),
		Offset:      startAt,
		Limit:       PageLength,
	}

	bulk := []schema.Document{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.store.Page(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page at offset %d: %w", class, q.Offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			doc, err := e.Export(ctx, rec, client)
			if err != nil {
				if apperrors.HasCode(err, apperrors.ErrSchema) {
					e.logger.WarnContext(ctx, "Skipping record that cannot be exported",
						"class", class, "offset", q.Offset, "record_id", rec.ID, "error", err)
					continue
				}
				return nil, err
			}
			if doc == nil {
				continue
			}

			bulk = append(bulk, *doc)
			if max > 0 && len(bulk) >= max {
				return bulk, nil
			}
		}

		// A page short by more than one row is the last one.
		if len(page) < PageLength-1 {
			break
		}
		q.Offset += PageLength
	}

	return bulk, nil
}
