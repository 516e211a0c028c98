package relationships

import (
	"strings"
	"sync"
)

// DefaultMaxDepth bounds nested eager loading
const DefaultMaxDepth = 10

// Include is one top-level relation to load with its nested paths
type Include struct {
	Name   string
	Nested []string
}

// ParseIncludes groups dotted paths by their first segment, in first-seen
// order: ["author", "author.posts", "tags"] gives author[posts], tags[].
func ParseIncludes(paths []string) []Include {
	index := make(map[string]int)
	var out []Include

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		name, rest := splitInclude(path)

		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Include{Name: name})
		}
		if rest != "" {
			out[i].Nested = append(out[i].Nested, rest)
		}
	}
	return out
}

// splitInclude parses "author.posts.comments" into ("author", "posts.comments")
func splitInclude(include string) (string, string) {
	if i := strings.IndexByte(include, '.'); i >= 0 {
		return include[:i], include[i+1:]
	}
	return include, ""
}

// LoadContext tracks nesting depth during eager loading
type LoadContext struct {
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{maxDepth: maxDepth}
}

// Enter increments the depth counter
func (lc *LoadContext) Enter() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.depth >= lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	lc.depth++
	return nil
}

// Leave decrements the depth counter
func (lc *LoadContext) Leave() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}

// Depth returns the current depth
func (lc *LoadContext) Depth() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.depth
}
