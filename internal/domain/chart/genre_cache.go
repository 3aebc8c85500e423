package chart

import "sync"

// genreCache хранит жанры исполнителей в рамках одного запуска сбора.
// Неудачные запросы не кэшируются.
type genreCache struct {
	mu     sync.RWMutex
	genres map[string][]string
}

func newGenreCache() *genreCache {
	return &genreCache{genres: make(map[string][]string)}
}

// Get возвращает жанры и признак наличия в кэше
func (c *genreCache) Get(artistID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.genres[artistID]
	return g, ok
}

// Missing возвращает уникальные ID, которых нет в кэше, в исходном порядке
func (c *genreCache) Missing(artistIDs []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(artistIDs))
	var missing []string
	for _, id := range artistIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.genres[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Store сохраняет жанры. Исполнитель без жанров кэшируется пустым списком.
func (c *genreCache) Store(genres map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, g := range genres {
		if g == nil {
			g = []string{}
		}
		c.genres[id] = g
	}
}

// Len возвращает количество исполнителей в кэше
func (c *genreCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.genres)
}
