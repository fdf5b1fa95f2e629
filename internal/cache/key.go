package cache

import "fmt"

// ResourceKey identifies one rendered variant of a remote image.
// Keys with the same URL but a different size are distinct memory entries
// but share the same original bytes on disk.
type ResourceKey struct {
	URL    string
	Width  int
	Height int
}

// ValidSize reports whether the key names a renderable target size.
func (k ResourceKey) ValidSize() bool {
	return k.Width > 0 && k.Height > 0
}

func (k ResourceKey) String() string {
	return fmt.Sprintf("%s@%dx%d", k.URL, k.Width, k.Height)
}
