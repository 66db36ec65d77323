package router

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/hxuan190/steamm-router/internal/common"
)

var ErrInvalidSlippage = errors.New("slippage must be below 10000 bps")

var u256BpsDenom = uint256.NewInt(common.BpsDenominator)

var uint256Pool = sync.Pool{
	New: func() interface{} {
		return new(uint256.Int)
	},
}

func getU256() *uint256.Int {
	return uint256Pool.Get().(*uint256.Int)
}

func putU256(x *uint256.Int) {
	uint256Pool.Put(x)
}

// MulDiv returns floor(a*b/d) without intermediate overflow. The result
// saturates at MaxUint64.
func MulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	x := getU256().SetUint64(a)
	y := getU256().SetUint64(b)
	z := getU256().SetUint64(d)
	defer func() {
		putU256(x)
		putU256(y)
		putU256(z)
	}()

	x.Mul(x, y)
	x.Div(x, z)
	if !x.IsUint64() {
		return ^uint64(0)
	}
	return x.Uint64()
}

// MinAmountOut applies slippage to a quoted output:
// amountOut * (10000 - slippageBps) / 10000.
func MinAmountOut(amountOut uint64, slippageBps uint16) (uint64, error) {
	if slippageBps >= common.BpsDenominator {
		return 0, ErrInvalidSlippage
	}
	if slippageBps == 0 {
		return amountOut, nil
	}

	x := getU256().SetUint64(amountOut)
	y := getU256().SetUint64(uint64(common.BpsDenominator - slippageBps))
	defer func() {
		putU256(x)
		putU256(y)
	}()

	x.Mul(x, y)
	x.Div(x, u256BpsDenom)
	return x.Uint64(), nil
}
