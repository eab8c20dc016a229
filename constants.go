package dsal

const (
	// MaxIOSize caps the size of a single zero-fill write issued by the
	// shrink path. Larger truncations are chunked into writes of this size.
	MaxIOSize = 1024 * 1024

	// DefaultBlockSize is the block size backends fall back to when their
	// configuration does not specify one.
	DefaultBlockSize = 4096

	// ConfigKeyType selects the active backend by exact name match
	// against the registry.
	ConfigKeyType = "dstore.type"
)
