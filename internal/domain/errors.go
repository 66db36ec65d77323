package domain

import "errors"

var (
	ErrUnknownQuoter = errors.New("unknown quoter type")
	ErrUnknownBank   = errors.New("no bank for token")
	ErrUnknownPool   = errors.New("unknown pool")
	ErrUnknownOracle = errors.New("unknown oracle index")
)
