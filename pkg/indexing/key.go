package indexing

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/docshard/docshard/pkg/normalize"
)

// EncodeValues normalizes an ordered tuple of values and joins them into a
// composite key. Any value that fails to normalize fails the whole key.
func EncodeValues(values []interface{}) (string, error) {
	segments := make([]string, len(values))
	for i, v := range values {
		segment, err := normalize.Value(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode key segment %d: %w", i, err)
		}
		segments[i] = segment
	}
	return strings.Join(segments, normalize.Separator), nil
}

// SplitKey splits a composite key back into its normalized segments.
func SplitKey(key string) []string {
	return strings.Split(key, normalize.Separator)
}

// HasKeyPrefix reports whether a composite key equals the prefix key or
// extends it by one or more further segments.
func HasKeyPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+normalize.Separator)
}

// ShardForKey routes a composite key to a shard: the first two bytes of the
// key's md5 taken as a big-endian integer, mod the shard count. The mapping
// never changes for a given key and shard count.
func ShardForKey(key string, shardCount int) int {
	sum := md5.Sum([]byte(key))
	return int(binary.BigEndian.Uint16(sum[0:2])) % shardCount
}
