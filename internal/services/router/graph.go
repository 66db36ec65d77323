package router

import (
	"github.com/hxuan190/steamm-router/internal/domain"
)

// edge is one side of a pool, seen from the token it leaves.
type edge struct {
	pool *domain.Pool
	to   string
	aToB bool
}

// Graph is an undirected multigraph: tokens are nodes, every pool is an edge
// between its two underlying coins. Built from one snapshot, never mutated.
type Graph struct {
	adj   map[string][]edge
	pools int
}

// NewGraph indexes every pool in a single pass, adding it to both endpoints'
// adjacency lists in snapshot order.
func NewGraph(pools []*domain.Pool) *Graph {
	g := &Graph{adj: make(map[string][]edge)}
	for _, p := range pools {
		if p.CoinTypeA == "" || p.CoinTypeB == "" || p.CoinTypeA == p.CoinTypeB {
			continue
		}
		g.adj[p.CoinTypeA] = append(g.adj[p.CoinTypeA], edge{pool: p, to: p.CoinTypeB, aToB: true})
		g.adj[p.CoinTypeB] = append(g.adj[p.CoinTypeB], edge{pool: p, to: p.CoinTypeA, aToB: false})
		g.pools++
	}
	return g
}

func (g *Graph) PoolCount() int {
	return g.pools
}

func (g *Graph) TokenCount() int {
	return len(g.adj)
}

// Neighbors lists tokens reachable in one hop from token.
func (g *Graph) Neighbors(token string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range g.adj[token] {
		if _, ok := seen[e.to]; ok {
			continue
		}
		seen[e.to] = struct{}{}
		out = append(out, e.to)
	}
	return out
}
