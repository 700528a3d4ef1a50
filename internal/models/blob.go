package models

import "time"

// DefaultChunkSize is the chunk size used when a deployment does not configure one.
const DefaultChunkSize = 255 * 1024

// BlobFile is one fully committed binary object split into chunks.
type BlobFile struct {
	ID         string    `json:"id" yaml:"id"`
	Filename   string    `json:"filename" yaml:"filename"`
	Length     int64     `json:"length" yaml:"length"`
	ChunkSize  int       `json:"chunk_size" yaml:"chunk_size"`
	ChunkCount int       `json:"chunk_count" yaml:"chunk_count"`
	Digest     string    `json:"digest" yaml:"digest"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Chunk is one ordered slice of a blob file.
type Chunk struct {
	FileID string
	Seq    int
	Data   []byte
}

// BlobStat is the metadata-only view of a blob file.
type BlobStat struct {
	Length     int64  `json:"length" yaml:"length"`
	ChunkCount int    `json:"chunk_count" yaml:"chunk_count"`
	ChunkSize  int    `json:"chunk_size" yaml:"chunk_size"`
	Digest     string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// ExpectedChunkCount returns ceil(length / chunkSize).
func ExpectedChunkCount(length int64, chunkSize int) int {
	if length <= 0 || chunkSize <= 0 {
		return 0
	}
	size := int64(chunkSize)
	return int((length + size - 1) / size)
}
