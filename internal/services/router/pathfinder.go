package router

import (
	"sort"
	"time"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

// FindRoutes enumerates every simple path from start to end by depth-first
// search. The visited set is local to the current path: a token is marked on
// descent and released on backtrack, so other branches may pass through it.
// maxHops <= 0 leaves the search unbounded. No path yields an empty slice.
func (g *Graph) FindRoutes(start, end string, maxHops int) []domain.Route {
	routes := []domain.Route{}
	if start == end {
		return routes
	}
	if _, ok := g.adj[start]; !ok {
		return routes
	}

	t := time.Now()
	defer func() {
		metrics.RouteSearchDuration.Observe(time.Since(t).Seconds())
		metrics.RoutesFound.Observe(float64(len(routes)))
	}()

	visited := map[string]struct{}{start: {}}
	path := make([]domain.Hop, 0, 4)

	var walk func(token string)
	walk = func(token string) {
		if maxHops > 0 && len(path) >= maxHops {
			return
		}
		for _, e := range g.adj[token] {
			if _, seen := visited[e.to]; seen {
				continue
			}
			hop := domain.Hop{Pool: e.pool, TokenIn: token, TokenOut: e.to, AToB: e.aToB}

			if e.to == end {
				hops := make([]domain.Hop, len(path)+1)
				copy(hops, path)
				hops[len(path)] = hop
				routes = append(routes, domain.Route{Hops: hops})
				continue
			}

			visited[e.to] = struct{}{}
			path = append(path, hop)
			walk(e.to)
			path = path[:len(path)-1]
			delete(visited, e.to)
		}
	}
	walk(start)

	return routes
}

// LimitRoutes keeps the n shortest routes, preserving discovery order among
// routes of equal length. n <= 0 keeps all.
func LimitRoutes(routes []domain.Route, n int) []domain.Route {
	if n <= 0 || len(routes) <= n {
		return routes
	}
	sorted := make([]domain.Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Len() < sorted[j].Len()
	})
	return sorted[:n]
}
