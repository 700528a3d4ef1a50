package models

// StorageStats aggregates document and blob storage usage.
type StorageStats struct {
	DocumentCount int   `json:"document_count" yaml:"document_count"`
	BlobCount     int   `json:"blob_count" yaml:"blob_count"`
	TotalBytes    int64 `json:"total_bytes" yaml:"total_bytes"`
	ChunkCount    int   `json:"chunk_count" yaml:"chunk_count"`
}

// DanglingDocument is a document whose blob file does not exist.
type DanglingDocument struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	FileID     string `json:"file_id" yaml:"file_id"`
	UserID     string `json:"user_id" yaml:"user_id"`
}

// UnownedBlob is a blob file no document references.
type UnownedBlob struct {
	FileID   string `json:"file_id" yaml:"file_id"`
	Filename string `json:"filename" yaml:"filename"`
	Length   int64  `json:"length" yaml:"length"`
}

// OrphanReport lists records missing their counterpart in either direction.
type OrphanReport struct {
	MetadataWithoutBlob []DanglingDocument `json:"metadata_without_blob" yaml:"metadata_without_blob"`
	BlobWithoutMetadata []UnownedBlob      `json:"blob_without_metadata" yaml:"blob_without_metadata"`
	ChunksWithoutFile   []string           `json:"chunks_without_file" yaml:"chunks_without_file"`
}

// Empty reports whether no orphan of any kind was found.
func (r OrphanReport) Empty() bool {
	return len(r.MetadataWithoutBlob) == 0 && len(r.BlobWithoutMetadata) == 0 && len(r.ChunksWithoutFile) == 0
}

// CorruptRecord is a stored row whose columns could not be decoded.
// Sweeps report it and leave the row in place.
type CorruptRecord struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

// AuthSessionClassification splits auth sessions for maintenance.
// Preserved holds sessions whose payload could not be parsed; they are never purged.
type AuthSessionClassification struct {
	Active    []AuthSession   `json:"active" yaml:"active"`
	Empty     []AuthSession   `json:"empty" yaml:"empty"`
	Preserved []AuthSession   `json:"preserved" yaml:"preserved"`
	Corrupt   []CorruptRecord `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// PurgeResult reports one maintenance sweep.
type PurgeResult struct {
	Candidates int             `json:"candidates" yaml:"candidates"`
	Deleted    int             `json:"deleted" yaml:"deleted"`
	Skipped    int             `json:"skipped" yaml:"skipped"`
	Failed     int             `json:"failed" yaml:"failed"`
	DryRun     bool            `json:"dry_run" yaml:"dry_run"`
	IDs        []string        `json:"ids,omitempty" yaml:"ids,omitempty"`
	Corrupt    []CorruptRecord `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// LegacyImportResult reports a one-time legacy session import.
type LegacyImportResult struct {
	Imported int               `json:"imported" yaml:"imported"`
	Skipped  int               `json:"skipped" yaml:"skipped"`
	Errors   map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}
