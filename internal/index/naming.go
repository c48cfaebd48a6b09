package index

import "strings"

// CollectionName derives a store-safe collection name from an embedding
// space, so vectors from different embedders never share a collection.
func CollectionName(space string) string {
	var b strings.Builder
	b.WriteString("chunks_")
	for _, r := range strings.ToLower(space) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
