package partition

import (
	"net/url"
	"strings"
	"time"
)

// KeyBuilder derives deterministic object-storage keys from an entry's type,
// timestamp and id. Key construction is pure: the same inputs always yield
// the same key, which is what makes re-delivered records overwrite rather
// than duplicate.
type KeyBuilder struct {
	prefix      string
	granularity Granularity
}

func NewKeyBuilder(prefix string, granularity Granularity) *KeyBuilder {
	// a trailing slash on the configured prefix would produce empty path
	// segments in the key
	return &KeyBuilder{
		prefix:      strings.TrimSuffix(prefix, "/"),
		granularity: granularity,
	}
}

// BucketPrefix returns the key prefix shared by all entries of the given
// type falling into the same time bucket. Entries sharing a bucket prefix
// are grouped into a single storage object.
func (b *KeyBuilder) BucketPrefix(logType string, timestamp time.Time) string {
	return b.prefix + "/" + logType + "/" + b.granularity.Path(timestamp)
}

// Key returns the full object key for an entry. The id is path-escaped as
// slashes in object keys act as directory separators.
func (b *KeyBuilder) Key(logType string, timestamp time.Time, id string) string {
	return b.BucketPrefix(logType, timestamp) + "/" + url.PathEscape(id) + ".json.gz"
}
