package cache

// DiskCache keeps original and size-scaled image bytes in a ByteStore.
// Entries are write-once: an existing entry is never overwritten.
type DiskCache struct {
	store  ByteStore
	naming Naming
}

// NewDiskCache creates a DiskCache over store. A nil naming uses BasenameNaming.
func NewDiskCache(store ByteStore, naming Naming) *DiskCache {
	if naming == nil {
		naming = BasenameNaming{}
	}
	return &DiskCache{
		store:  store,
		naming: naming,
	}
}

func (c *DiskCache) HasOriginal(url string) bool {
	return c.store.Has(c.naming.Original(url))
}

func (c *DiskCache) ReadOriginal(url string) ([]byte, bool) {
	return c.store.Get(c.naming.Original(url))
}

// WriteOriginalIfAbsent stores the original bytes for url unless present.
func (c *DiskCache) WriteOriginalIfAbsent(url string, data []byte) error {
	_, err := c.store.SetIfAbsent(c.naming.Original(url), data)
	return err
}

func (c *DiskCache) HasScaled(key ResourceKey) bool {
	return c.store.Has(c.naming.Scaled(key))
}

func (c *DiskCache) ReadScaled(key ResourceKey) ([]byte, bool) {
	return c.store.Get(c.naming.Scaled(key))
}

// WriteScaledIfAbsent stores the scaled bytes for key unless present.
func (c *DiskCache) WriteScaledIfAbsent(key ResourceKey, data []byte) error {
	_, err := c.store.SetIfAbsent(c.naming.Scaled(key), data)
	return err
}

// Clear drops every entry from the underlying store.
func (c *DiskCache) Clear() error {
	return c.store.Clear()
}
