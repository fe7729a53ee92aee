// pkg/model/row.go
package model

// Row is a single table row keyed by column name. Values are whatever the
// database driver produced, including nil for SQL NULL.
type Row map[string]interface{}

// Batch is one extractor page: the column order reported by the source
// result set plus the rows in fetch order.
type Batch struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// TableSpec describes one table to move. It is immutable for the duration
// of a run and supplied by configuration.
type TableSpec struct {
	// Name is the table name, identical on source and destination.
	Name string `json:"name"`

	// BatchSize is the extraction page size.
	BatchSize int `json:"batch_size"`

	// Filter is an optional static SQL predicate applied when no watermark
	// bounds the extraction.
	Filter string `json:"filter,omitempty"`

	// WatermarkColumn names the column whose maximum observed value bounds
	// the next delta run.
	WatermarkColumn string `json:"watermark_column,omitempty"`

	// KeyColumns, when set, make destination loads an idempotent upsert.
	KeyColumns []string `json:"key_columns,omitempty"`

	// TruncateOnFull clears the destination table before a full-refresh run.
	TruncateOnFull bool `json:"truncate_on_full,omitempty"`
}
