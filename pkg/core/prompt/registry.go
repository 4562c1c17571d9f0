package prompt

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds loaded prompts. Each process component gets its own
// instance; there is no package-level registry.
type Registry struct {
	prompts map[string]*PromptTemplate
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string]*PromptTemplate)}
}

// NewDefaultRegistry returns a registry preloaded with the built-in prompts.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, pt := range builtins() {
		// built-in IDs are never empty
		_ = r.Register(pt)
	}
	return r
}

// Register adds a prompt template to the registry, replacing any prompt with
// the same ID.
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts[pt.ID] = pt
	return nil
}

// GetPrompt retrieves a prompt by ID
func (r *Registry) GetPrompt(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt not found: %s", id)
}

// ListByCategory returns all prompts in a specific category
func (r *Registry) ListByCategory(category string) []*PromptTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PromptTemplate
	for _, pt := range r.prompts {
		if pt.Category == category {
			result = append(result, pt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of registered prompts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}
