package codec

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// Registry maps family names and aliases to family definitions.
//
// # Adding a New Family
//
// Describe the family as data in families.go and register it in
// NewRegistry:
//
//	r.Register(MyFamily())
//
// No engine code changes unless the family needs a new call-block grammar or
// reasoning layout.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Family
	families []*Family
}

// NewRegistry returns a registry holding the built-in families.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Family)}
	r.Register(K2())
	r.Register(K2OSS())
	r.Register(Olmo3())
	r.Register(QwenNoThinkFC())
	return r
}

// Register adds a family. Panics if its name or one of its aliases is
// already taken.
func (r *Registry) Register(f *Family) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Name == "" {
		panic("family name cannot be empty")
	}
	for _, key := range append([]string{f.Name}, f.Aliases...) {
		key = strings.ToLower(key)
		if _, exists := r.byName[key]; exists {
			panic(fmt.Sprintf("family %q already registered", key))
		}
		r.byName[key] = f
	}
	r.families = append(r.families, f)
}

// Lookup returns the family registered under name or alias. Names are case
// insensitive.
func (r *Registry) Lookup(name string) (*Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.NewCodecError(domain.ErrorTypeNotFound,
			fmt.Sprintf("model family %q is not registered", name), domain.ErrUnknownFamily)
	}
	return f, nil
}

// Families returns all registered families sorted by name.
func (r *Registry) Families() []*Family {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Family, len(r.families))
	copy(out, r.families)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns the registered family names, sorted.
func (r *Registry) Names() []string {
	families := r.Families()
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.Name
	}
	return names
}

// Codec looks up a family and binds it to opts.
func (r *Registry) Codec(name string, opts ...Option) (*Codec, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}
