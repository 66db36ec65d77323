package router_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

func pair(id, a, b string) *domain.Pool {
	return &domain.Pool{ID: id, Quoter: domain.QuoterCPMM, CoinTypeA: a, CoinTypeB: b}
}

func routeKey(r domain.Route) string {
	return strings.Join(r.PoolIDs(), ">")
}

func routeKeys(routes []domain.Route) []string {
	keys := make([]string, len(routes))
	for i, r := range routes {
		keys[i] = routeKey(r)
	}
	sort.Strings(keys)
	return keys
}

// bruteForce enumerates every ordering of distinct pools and keeps those that
// form a simple path from start to end.
func bruteForce(pools []*domain.Pool, start, end string, maxHops int) []string {
	out := []string{}
	used := make([]bool, len(pools))
	var rec func(token string, seen map[string]bool, ids []string)
	rec = func(token string, seen map[string]bool, ids []string) {
		if token == end && len(ids) > 0 {
			out = append(out, strings.Join(ids, ">"))
			return
		}
		if maxHops > 0 && len(ids) == maxHops {
			return
		}
		for i, p := range pools {
			if used[i] {
				continue
			}
			next, _, ok := p.TokenOut(token)
			if !ok || seen[next] {
				continue
			}
			used[i] = true
			seen[next] = true
			rec(next, seen, append(ids, p.ID))
			delete(seen, next)
			used[i] = false
		}
	}
	rec(start, map[string]bool{start: true}, nil)
	sort.Strings(out)
	return out
}

func TestFindRoutesThroughIntermediate(t *testing.T) {
	p1 := pair("p1", tokA, tokB)
	p2 := pair("p2", tokB, tokC)
	g := router.NewGraph([]*domain.Pool{p1, p2})

	routes := g.FindRoutes(tokA, tokC, 0)
	require.Len(t, routes, 1)
	assert.Equal(t, []string{tokA, tokB, tokC}, routes[0].Path())
	assert.Equal(t, []string{"p1", "p2"}, routes[0].PoolIDs())
	assert.True(t, routes[0].Hops[0].AToB)
	assert.True(t, routes[0].Hops[1].AToB)

	back := g.FindRoutes(tokC, tokA, 0)
	require.Len(t, back, 1)
	assert.Equal(t, []string{"p2", "p1"}, back[0].PoolIDs())
	assert.False(t, back[0].Hops[0].AToB)
	assert.False(t, back[0].Hops[1].AToB)
}

func TestFindRoutesIsolatedToken(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddCPMM(tokA, tokB, 1_000_000, 1_000_000, 30)
	f.ledger.AddCPMM(tokB, tokC, 1_000_000, 1_000_000, 30)
	env := f.env()

	routes := f.routes(env, tokA, tokD)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)

	_, _, err := router.SelectBestRoute(context.Background(), env, routes, 50_000)
	assert.ErrorIs(t, err, router.ErrNoViableRoute)
	assert.Zero(t, f.ledger.Simulations)
}

func TestFindRoutesSameOrUnknownToken(t *testing.T) {
	g := router.NewGraph([]*domain.Pool{pair("p1", tokA, tokB)})
	assert.Empty(t, g.FindRoutes(tokA, tokA, 0))
	assert.Empty(t, g.FindRoutes(tokE, tokA, 0))
	assert.Empty(t, g.FindRoutes(tokA, tokE, 0))
}

func TestFindRoutesParallelPools(t *testing.T) {
	g := router.NewGraph([]*domain.Pool{
		pair("p1", tokA, tokB),
		pair("p2", tokB, tokA),
	})
	routes := g.FindRoutes(tokA, tokB, 0)
	require.Len(t, routes, 2)
	assert.Equal(t, "p1", routes[0].Hops[0].Pool.ID)
	assert.True(t, routes[0].Hops[0].AToB)
	assert.Equal(t, "p2", routes[1].Hops[0].Pool.ID)
	assert.False(t, routes[1].Hops[0].AToB)
}

func denseGraph() []*domain.Pool {
	return []*domain.Pool{
		pair("ab", tokA, tokB),
		pair("ab2", tokA, tokB),
		pair("ac", tokA, tokC),
		pair("bc", tokB, tokC),
		pair("bd", tokB, tokD),
		pair("cd", tokC, tokD),
		pair("de", tokD, tokE),
		pair("ce", tokC, tokE),
		pair("ae", tokE, tokA),
	}
}

func TestFindRoutesMatchesBruteForce(t *testing.T) {
	pools := denseGraph()
	g := router.NewGraph(pools)
	tokens := []string{tokA, tokB, tokC, tokD, tokE}

	for _, from := range tokens {
		for _, to := range tokens {
			if from == to {
				continue
			}
			for _, maxHops := range []int{0, 1, 2, 3} {
				t.Run(fmt.Sprintf("%s-%s-%d", domain.ShortType(from), domain.ShortType(to), maxHops), func(t *testing.T) {
					routes := g.FindRoutes(from, to, maxHops)
					assert.Equal(t, bruteForce(pools, from, to, maxHops), routeKeys(routes))
					for _, r := range routes {
						require.NoError(t, r.Validate())
						assert.Equal(t, from, r.TokenIn())
						assert.Equal(t, to, r.TokenOut())
						if maxHops > 0 {
							assert.LessOrEqual(t, r.Len(), maxHops)
						}
					}
				})
			}
		}
	}
}

func TestFindRoutesNoDuplicates(t *testing.T) {
	routes := router.NewGraph(denseGraph()).FindRoutes(tokA, tokD, 0)
	seen := make(map[string]bool)
	for _, r := range routes {
		k := routeKey(r)
		assert.False(t, seen[k], "duplicate route %s", k)
		seen[k] = true
	}
}

func TestGraphSkipsDegeneratePools(t *testing.T) {
	g := router.NewGraph([]*domain.Pool{
		pair("p1", tokA, tokB),
		pair("self", tokA, tokA),
		pair("half", tokA, ""),
	})
	assert.Equal(t, 1, g.PoolCount())
	assert.Equal(t, 2, g.TokenCount())
	assert.Equal(t, []string{tokB}, g.Neighbors(tokA))
}

func TestLimitRoutesKeepsShortestStable(t *testing.T) {
	routes := router.NewGraph(denseGraph()).FindRoutes(tokA, tokD, 0)
	require.Greater(t, len(routes), 3)

	limited := router.LimitRoutes(routes, 3)
	require.Len(t, limited, 3)
	for i := 1; i < len(limited); i++ {
		assert.LessOrEqual(t, limited[i-1].Len(), limited[i].Len())
	}

	// Among equal lengths, discovery order is kept.
	var twoHop []string
	for _, r := range routes {
		if r.Len() == 2 {
			twoHop = append(twoHop, routeKey(r))
		}
	}
	require.Len(t, twoHop, 4)
	assert.Equal(t, twoHop[:3], []string{routeKey(limited[0]), routeKey(limited[1]), routeKey(limited[2])})

	assert.Len(t, router.LimitRoutes(routes, 0), len(routes))
	assert.Len(t, router.LimitRoutes(routes, len(routes)+5), len(routes))
}
