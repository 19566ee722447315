package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
)

// Built-in platform names
const (
	PlatformWeibo = "weibo"
	PlatformZhihu = "zhihu"
	PlatformBaidu = "baidu"
)

// Registry holds the platforms a track may name
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]interfaces.Platform
}

// NewRegistry creates a registry holding the given platforms
func NewRegistry(platforms ...interfaces.Platform) *Registry {
	r := &Registry{platforms: make(map[string]interfaces.Platform)}
	for _, p := range platforms {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry creates a registry with the built-in stub platforms
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		&StaticPlatform{PlatformName: PlatformWeibo, Templates: []StaticItem{
			{Format: "%s latest updates", Hot: "2.34M"},
			{Format: "%s sparks debate", Hot: "1.89M"},
			{Format: "%s related topics", Hot: "1.56M"},
		}},
		&StaticPlatform{PlatformName: PlatformZhihu, Templates: []StaticItem{
			{Format: "What do you think of %s?", Hot: "12k"},
			{Format: "An in-depth analysis of %s", Hot: "8.5k"},
		}},
		&StaticPlatform{PlatformName: PlatformBaidu, Templates: []StaticItem{
			{Format: "%s encyclopedia", Hot: "trending"},
			{Format: "%s latest news", Hot: "recommended"},
		}},
	)
}

// Register adds or replaces a platform by name
func (r *Registry) Register(p interfaces.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[strings.ToLower(p.Name())] = p
}

// Lookup returns the platform registered under name
func (r *Registry) Lookup(name string) (interfaces.Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered platform names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticItem is a title template with a fixed heat label
type StaticItem struct {
	Format string
	Hot    string
}

// StaticPlatform answers every search with the same ranked templates
type StaticPlatform struct {
	PlatformName string
	Templates    []StaticItem
}

func (p *StaticPlatform) Name() string { return p.PlatformName }

func (p *StaticPlatform) Search(ctx context.Context, keyword string) ([]models.TrackItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]models.TrackItem, len(p.Templates))
	for i, t := range p.Templates {
		items[i] = models.TrackItem{Title: fmt.Sprintf(t.Format, keyword), Hot: t.Hot, Rank: i + 1}
	}
	return items, nil
}
