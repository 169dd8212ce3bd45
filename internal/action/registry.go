package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Factory builds an action from a parsed definition.
type Factory func(def Definition) (Action, error)

// Registry resolves action names. Resolved definitions are cached by path
// and modification time, so an edited file is picked up on the next resolve.
// Entries never expire: a built action owns state such as its data feeder
// position, which must last for the whole run.
type Registry struct {
	mu    sync.RWMutex
	named map[string]Action
	kinds map[string]Factory
	dir   string
	cache *gocache.Cache
}

// NewRegistry returns a registry with the built-in actions and kinds.
// Relative definition paths resolve against dir when it is set.
func NewRegistry(dir string) *Registry {
	r := &Registry{
		named: make(map[string]Action),
		kinds: make(map[string]Factory),
		dir:   dir,
		cache: gocache.New(gocache.NoExpiration, 0),
	}
	r.Register("noop", Func(func(context.Context, Config) error { return nil }))
	r.RegisterKind("http", newHTTPAction)
	r.RegisterKind("websocket", newWebSocketAction)
	r.RegisterKind("sleep", newSleepAction)
	return r
}

func (r *Registry) Register(name string, a Action) {
	r.mu.Lock()
	r.named[name] = a
	r.mu.Unlock()
}

func (r *Registry) RegisterKind(kind string, f Factory) {
	r.mu.Lock()
	r.kinds[strings.ToLower(kind)] = f
	r.mu.Unlock()
}

// Resolve returns the action named ref. Failures wrap ErrNotFound,
// ErrNotFile, ErrLoad or ErrNotInvocable.
func (r *Registry) Resolve(ref string) (Action, error) {
	r.mu.RLock()
	a, ok := r.named[ref]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	path := ref
	if r.dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, ref)
	}

	key := fmt.Sprintf("%s@%d", path, info.ModTime().UnixNano())
	if cached, ok := r.cache.Get(key); ok {
		return cached.(Action), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, ref, err)
	}
	def, err := parseDefinition(data, path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.kinds[strings.ToLower(def.Kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrNotInvocable, ref, def.Kind)
	}
	a, err = factory(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotInvocable, ref, err)
	}
	if def.Data != nil {
		if a, err = withData(a, def); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoad, ref, err)
		}
	}

	r.cache.SetDefault(key, a)
	return a, nil
}
