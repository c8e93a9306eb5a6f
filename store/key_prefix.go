package store

// Declare database key prefix for objects
const (
	// PrefixBlock is followed by the 8 byte big endian block index
	PrefixBlock = "blocks:"

	PrefixMeta   = "meta:"
	MetaKeyCount = "count"
)
