// Package destination maps document type codes to the network directory
// where filed documents are copied. Lookups go to the HIS image catalog and
// successful answers are cached for the life of the process.
package destination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/folio/internal/platform/hisclient"
)

// ErrNoPath is returned when the lookup answers without a usable path.
var ErrNoPath = errors.New("destination lookup returned no path")

const maxConcurrentLookups = 8

// Resolver resolves type codes to canonical UNC directories.
type Resolver struct {
	client *hisclient.Client
	cache  *cache.Cache
	group  singleflight.Group
	logger zerolog.Logger
}

func NewResolver(client *hisclient.Client, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache.New(cache.NoExpiration, 0),
		logger: logger,
	}
}

// Resolve returns the directory for code, calling the lookup endpoint only
// on a cache miss. Concurrent misses for one code share a single request.
// Failures are returned to the caller and never cached.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	if dir, ok := r.cached(code); ok {
		return dir, nil
	}

	v, err, _ := r.group.Do(code, func() (interface{}, error) {
		if dir, ok := r.cached(code); ok {
			return dir, nil
		}
		dir, err := r.lookup(ctx, code)
		if err != nil {
			return "", err
		}
		r.cache.Set(code, dir, cache.NoExpiration)
		return dir, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) cached(code string) (string, bool) {
	if x, found := r.cache.Get(code); found {
		return x.(string), true
	}
	return "", false
}

func (r *Resolver) lookup(ctx context.Context, code string) (string, error) {
	resp, err := r.client.Get(ctx, "imahc", "get", code)
	if err != nil {
		return "", fmt.Errorf("resolve code %s: %w", code, err)
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("resolve code %s: %w", code, err)
	}

	raw, ok := resp.Value().First().Field("rutima_clean", "rutima")
	if !ok {
		return "", fmt.Errorf("resolve code %s: %w", code, ErrNoPath)
	}
	dir := NormalizeUNC(raw)
	r.logger.Debug().Str("code", code).Str("dir", dir).Msg("destination resolved")
	return dir, nil
}

// Resolution is the outcome of resolving a set of codes.
type Resolution struct {
	Dirs   map[string]string
	Errors map[string]error
}

// Failed returns the codes that could not be resolved, sorted.
func (r Resolution) Failed() []string {
	out := make([]string, 0, len(r.Errors))
	for code := range r.Errors {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ResolveAll resolves every distinct code concurrently. One code failing does
// not stop the others.
func (r *Resolver) ResolveAll(ctx context.Context, codes []string) Resolution {
	res := Resolution{
		Dirs:   make(map[string]string),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex
	seen := make(map[string]bool, len(codes))

	var g errgroup.Group
	g.SetLimit(maxConcurrentLookups)
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		code := code
		g.Go(func() error {
			dir, err := r.Resolve(ctx, code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[code] = err
				return nil
			}
			res.Dirs[code] = dir
			return nil
		})
	}
	_ = g.Wait()
	return res
}
