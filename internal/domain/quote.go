package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRoute = errors.New("invalid route")

// Hop is one directed traversal of a pool. TokenIn and TokenOut are underlying
// coin types.
type Hop struct {
	Pool     *Pool
	TokenIn  string
	TokenOut string
	AToB     bool
}

// Route is an ordered, acyclic sequence of hops.
type Route struct {
	Hops []Hop
}

func (r Route) Len() int {
	return len(r.Hops)
}

func (r Route) TokenIn() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[0].TokenIn
}

func (r Route) TokenOut() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[len(r.Hops)-1].TokenOut
}

// Path returns the token sequence [in, mid..., out].
func (r Route) Path() []string {
	if len(r.Hops) == 0 {
		return nil
	}
	path := make([]string, 0, len(r.Hops)+1)
	path = append(path, r.Hops[0].TokenIn)
	for _, h := range r.Hops {
		path = append(path, h.TokenOut)
	}
	return path
}

func (r Route) PoolIDs() []string {
	ids := make([]string, len(r.Hops))
	for i, h := range r.Hops {
		ids[i] = h.Pool.ID
	}
	return ids
}

// Validate checks that the route is non-empty, continuous and simple.
func (r Route) Validate() error {
	if len(r.Hops) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidRoute)
	}
	tokens := map[string]struct{}{r.Hops[0].TokenIn: {}}
	pools := make(map[string]struct{}, len(r.Hops))
	for i, h := range r.Hops {
		if h.Pool == nil {
			return fmt.Errorf("%w: hop %d has no pool", ErrInvalidRoute, i)
		}
		if i > 0 && r.Hops[i-1].TokenOut != h.TokenIn {
			return fmt.Errorf("%w: hop %d does not continue from %s", ErrInvalidRoute, i, r.Hops[i-1].TokenOut)
		}
		out, aToB, ok := h.Pool.TokenOut(h.TokenIn)
		if !ok || out != h.TokenOut || aToB != h.AToB {
			return fmt.Errorf("%w: hop %d does not match pool %s", ErrInvalidRoute, i, h.Pool.ID)
		}
		if _, dup := pools[h.Pool.ID]; dup {
			return fmt.Errorf("%w: pool %s repeated", ErrInvalidRoute, h.Pool.ID)
		}
		pools[h.Pool.ID] = struct{}{}
		if _, dup := tokens[h.TokenOut]; dup {
			return fmt.Errorf("%w: token %s repeated", ErrInvalidRoute, h.TokenOut)
		}
		tokens[h.TokenOut] = struct{}{}
	}
	return nil
}

func (r Route) String() string {
	parts := make([]string, len(r.Hops))
	for i, h := range r.Hops {
		parts[i] = fmt.Sprintf("%s:%s->%s", shortID(h.Pool.ID), ShortType(h.TokenIn), ShortType(h.TokenOut))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:6] + ".." + id[len(id)-4:]
	}
	return id
}

// Fees are accumulated per hop in that hop's output bToken units.
type Fees struct {
	Protocol uint64 `json:"protocol"`
	Pool     uint64 `json:"pool"`
}

func (f Fees) Add(o Fees) Fees {
	return Fees{Protocol: f.Protocol + o.Protocol, Pool: f.Pool + o.Pool}
}

// HopQuote amounts are in bToken units.
type HopQuote struct {
	PoolID    string `json:"poolId"`
	AToB      bool   `json:"aToB"`
	AmountIn  uint64 `json:"amountIn"`
	AmountOut uint64 `json:"amountOut"`
	Fees      Fees   `json:"fees"`
}

// Quote is a point-in-time estimate for a route. AmountIn and AmountOut are in
// underlying units.
type Quote struct {
	AmountIn  uint64     `json:"amountIn"`
	AmountOut uint64     `json:"amountOut"`
	Fees      Fees       `json:"fees"`
	Hops      []HopQuote `json:"hops"`
}
