package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceUpdate is a signed price attestation that can be posted on chain.
type PriceUpdate struct {
	FeedID      string
	Data        []byte
	Price       decimal.Decimal
	Confidence  decimal.Decimal
	PublishTime time.Time
}

// Age is how old the attestation is at now.
func (u *PriceUpdate) Age(now time.Time) time.Duration {
	return now.Sub(u.PublishTime)
}
