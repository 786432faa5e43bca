package cmap

// View runs fn with the value for key while holding the shard's read
// lock. The callback must not retain references to mutable state past
// its return.
func (m *Map[V]) View(key string, fn func(value V, exists bool)) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.items[key]
	fn(val, ok)
}

// Update atomically updates a value. The whole read-modify-write runs
// under the shard's write lock, so it is atomic with respect to every
// other operation on the same key.
func (m *Map[V]) Update(key string, fn func(value V, exists bool) V) V {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, exists := shard.items[key]
	newValue := fn(existing, exists)
	shard.items[key] = newValue
	return newValue
}
