package catalog

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// EntryMetadata is the explicit schema for Entry's otherwise free-form
// metadata column (design note, section 9): "treat as an open
// extensibility slot; define a small schema with explicit readers/writers
// rather than free-form blobs accessed everywhere."
type EntryMetadata struct {
	ComputedSize *ComputedSize     `json:"computedSize,omitempty"`
	Upload       *UploadIndicator  `json:"upload,omitempty"`
}

// ComputedSize caches the result of a DirectorySize roll-up (section 4.A)
// for a configurable freshness window.
type ComputedSize struct {
	TotalBytes  int64     `json:"totalBytes"`
	FileCount   int64     `json:"fileCount"`
	DirCount    int64     `json:"dirCount"`
	CalculatedAt time.Time `json:"calculatedAt"`
}

// Stale reports whether a ComputedSize result has aged past ttl.
func (c *ComputedSize) Stale(ttl time.Duration) bool {
	if c == nil {
		return true
	}
	return time.Since(c.CalculatedAt) > ttl
}

// UploadIndicator is a status flag surfaced by the external façade (out of
// scope here beyond its storage slot, per section 1).
type UploadIndicator struct {
	InProgress bool   `json:"inProgress"`
	Note       string `json:"note,omitempty"`
}

// MarshalBlob encodes EntryMetadata for storage in the catalog's jsonb column.
func (m EntryMetadata) MarshalBlob() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry metadata: %w", err)
	}
	return b, nil
}

// UnmarshalBlob decodes EntryMetadata from the catalog's jsonb column. An
// empty blob decodes to the zero value.
func UnmarshalBlob(blob []byte) (EntryMetadata, error) {
	var m EntryMetadata
	if len(blob) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(blob, &m); err != nil {
		return EntryMetadata{}, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
	}
	return m, nil
}
