package conversation

import "sync"

// cache is the per-conversation working set of recent raw messages. It is
// never authoritative: any entry can be dropped and refilled from the store.
type cache struct {
	mu      sync.Mutex
	size    int
	entries map[Key]*cacheEntry
}

type cacheEntry struct {
	messages []Message
	// complete is true when messages holds the whole conversation
	complete bool
}

func newCache(size int) *cache {
	return &cache{size: size, entries: make(map[Key]*cacheEntry)}
}

func (c *cache) recent(key Key, limit int) ([]Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	n := len(e.messages)
	if n < limit && !e.complete {
		return nil, false
	}

	start := max(0, n-limit)
	out := make([]Message, n-start)
	copy(out, e.messages[start:])
	return out, true
}

// fill replaces an entry with messages loaded from the store. Fewer rows
// than the cap means the whole conversation is held.
func (c *cache) fill(key Key, messages []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	complete := len(messages) < c.size
	if len(messages) > c.size {
		messages = messages[len(messages)-c.size:]
	}

	kept := make([]Message, len(messages))
	copy(kept, messages)
	c.entries[key] = &cacheEntry{messages: kept, complete: complete}
}

// push appends to a loaded entry, evicting the oldest past the cap.
// Unloaded conversations are left for the next read to fill.
func (c *cache) push(key Key, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}

	e.messages = append(e.messages, m)
	if len(e.messages) > c.size {
		e.messages = e.messages[len(e.messages)-c.size:]
		e.complete = false
	}
}

func (c *cache) drop(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *cache) dropUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.UserID == userID {
			delete(c.entries, k)
		}
	}
}

func (c *cache) count(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.messages)
	}
	return 0
}
