package models

const (
	MetadataText       = "text"
	MetadataSource     = "source"
	MetadataChunkIndex = "chunk_index"
	MetadataNamespace  = "namespace"
	MetadataID         = "id"

	UnitIDPrefix = "doc"
)
