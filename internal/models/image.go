// Package models defines core data structures for image records, queries, and search results.
package models

import "time"

// ImageRecord holds per-image metadata captured at ingestion time.
// Records are created once when an image is ingested and never mutated;
// they are removed only by rebuilding the index from scratch.
type ImageRecord struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Mode     string `json:"mode"`
	FileSize int64  `json:"file_size"`
	// Captured holds best-effort EXIF capture metadata (camera model,
	// capture time, orientation). Empty when the file carries none.
	Captured map[string]string `json:"captured,omitempty"`
	// Error is set when metadata extraction failed; the record then carries
	// only Path and Filename.
	Error     string    `json:"error,omitempty"`
	IndexedAt time.Time `json:"indexed_at,omitempty"`
}
