// Package access answers whether a content node sits under an access-restricted node.
package access

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of path decisions to cache.
const DefaultCacheSize = 4096

// loadTimeout bounds one rule reload.
const loadTimeout = 5 * time.Second

// RuleSource lists the node ids that carry a public-access rule.
type RuleSource interface {
	ProtectedNodeIDs(ctx context.Context) ([]int, error)
}

// Policy caches protection decisions per path. A node is protected when it or
// any of its ancestors has a rule. When rules cannot be loaded every path is
// treated as protected.
type Policy struct {
	source RuleSource
	cache  *lru.Cache[string, bool]

	mu     sync.Mutex
	rules  map[int]struct{}
	loaded bool
	failed bool
	// gen advances on every Invalidate; decisions made under an older
	// generation are not cached.
	gen uint64
}

// NewPolicy creates a Policy over source.
func NewPolicy(source RuleSource, cacheSize int) *Policy {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, bool](cacheSize)
	return &Policy{source: source, cache: cache}
}

// IsProtected reports whether path lies under a protected node.
func (p *Policy) IsProtected(path string) bool {
	if v, ok := p.cache.Get(path); ok {
		return v
	}

	protected, gen, ok := p.decide(path)
	if !ok {
		return true
	}
	p.remember(path, protected, gen)
	return protected
}

func (p *Policy) decide(path string) (protected bool, gen uint64, ok bool) {
	rules, gen, ok := p.loadRules()
	if !ok {
		return true, gen, false
	}

	for _, seg := range strings.Split(path, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil {
			continue
		}
		if _, hit := rules[id]; hit {
			return true, gen, true
		}
	}
	return false, gen, true
}

func (p *Policy) remember(path string, protected bool, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen {
		p.cache.Add(path, protected)
	}
}

// Invalidate drops cached decisions and reloads the rules on next use.
func (p *Policy) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.loaded = false
	p.failed = false
	p.rules = nil
	p.cache.Purge()
}

// loadRules returns the rule set, loading it once. A failed load is retried
// on the next call and reported as not ok.
func (p *Policy) loadRules() (map[int]struct{}, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.rules, p.gen, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	ids, err := p.source.ProtectedNodeIDs(ctx)
	if err != nil {
		if !p.failed {
			slog.Warn("access_rules_load_failed",
				slog.String("error", err.Error()))
		}
		p.failed = true
		return nil, p.gen, false
	}

	p.rules = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		p.rules[id] = struct{}{}
	}
	p.loaded = true
	p.failed = false
	return p.rules, p.gen, true
}
