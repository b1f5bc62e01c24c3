package vectorstore

import "github.com/google/uuid"

// pointNamespace scopes the UUIDv5 derivation of point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("productsearch/vector-index-entry"))

// PointUUID derives a stable UUID for a logical entry id. Qdrant only accepts UUIDs or integers
// as point ids; deriving the UUID from the logical id makes repeated upserts overwrite in place.
func PointUUID(logicalID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(logicalID)).String()
}
