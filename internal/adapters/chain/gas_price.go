package chain

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const gasPriceTTL = 30 * time.Second

type cachedGasPrice struct {
	price     uint64
	updatedAt time.Time
}

// gasPriceCache holds the reference gas price. It only changes per epoch, so
// a short TTL is enough, and a stale value beats failing a submission.
type gasPriceCache struct {
	mu      sync.RWMutex
	current *cachedGasPrice
	fetch   func(ctx context.Context) (uint64, error)
}

func (c *gasPriceCache) get(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	cached := c.current
	c.mu.RUnlock()

	if cached != nil && time.Since(cached.updatedAt) < gasPriceTTL {
		return cached.price, nil
	}

	price, err := c.fetch(ctx)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Uint64("price", cached.price).Msg("[chainClient] using cached reference gas price")
			return cached.price, nil
		}
		return 0, err
	}

	c.mu.Lock()
	c.current = &cachedGasPrice{price: price, updatedAt: time.Now()}
	c.mu.Unlock()
	return price, nil
}

func (c *Client) referenceGasPrice(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.call(ctx, &raw, "suix_getReferenceGasPrice"); err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}
