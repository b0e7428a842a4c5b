package kvs

import "github.com/meridiandb/meridian/pkg/kvstore"

// cache holds decoded catalog definitions (NS/DB/TB/FD/IX/...) keyed by
// their raw storage key, so a hot statement that resolves the same
// table definition many times over one transaction decodes it once.
// It is only ever touched while the owning Transaction's mu is held, so
// it carries no lock of its own.
type cache struct {
	entries map[string]interface{}
}

func newCache() *cache {
	return &cache{entries: make(map[string]interface{})}
}

func (c *cache) get(key kvstore.Key) (interface{}, bool) {
	v, ok := c.entries[string(key)]
	return v, ok
}

func (c *cache) put(key kvstore.Key, v interface{}) {
	c.entries[string(key)] = v
}

func (c *cache) clear(key kvstore.Key) {
	delete(c.entries, string(key))
}

func (c *cache) clearAll() {
	c.entries = make(map[string]interface{})
}
