package builder

import (
	"fmt"

	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
)

// Packages locates the protocol packages and shared singletons.
type Packages struct {
	Steamm         string
	Scripts        string
	Oracles        string
	OracleRegistry string
	Pyth           string
	PythState      string
	WormholeState  string
}

func (p Packages) NewPoolEventType() string {
	return fmt.Sprintf("%s::events::Event<%s::pool::NewPoolResult>", p.Steamm, p.Steamm)
}

func (p Packages) NewBankEventType() string {
	return fmt.Sprintf("%s::events::Event<%s::bank::NewBankEvent>", p.Steamm, p.Steamm)
}

func (p Packages) NewOracleEventType() string {
	return fmt.Sprintf("%s::oracles::NewOracleEvent", p.Oracles)
}

func (p Packages) HopQuoteEventType() string {
	return fmt.Sprintf("%s::quote_script::HopQuote", p.Scripts)
}

func (p Packages) RouteQuoteEventType() string {
	return fmt.Sprintf("%s::quote_script::RouteQuote", p.Scripts)
}

// Calls appends protocol entry points to a bundle.
type Calls struct {
	Packages Packages
}

func NewCalls(pkgs Packages) *Calls {
	return &Calls{Packages: pkgs}
}

func (c *Calls) target(pkg, module, fn string) string {
	return pkg + "::" + module + "::" + fn
}

func (c *Calls) clock(b *Bundle) Argument {
	return b.SharedObject(common.ClockObjectID, false)
}

// ToBTokens converts an underlying amount into bToken units at the bank's
// current exchange rate.
func (c *Calls) ToBTokens(b *Bundle, bank *domain.Bank, amount Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Scripts, "bank_script", "to_btokens"), bank.TypeArgs(),
		b.SharedObject(bank.ID, false),
		b.SharedObject(bank.LendingMarketID, false),
		amount,
		c.clock(b),
	)
}

func (c *Calls) FromBTokens(b *Bundle, bank *domain.Bank, amount Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Scripts, "bank_script", "from_btokens"), bank.TypeArgs(),
		b.SharedObject(bank.ID, false),
		b.SharedObject(bank.LendingMarketID, false),
		amount,
		c.clock(b),
	)
}

// MintBToken takes amount out of coin (&mut Coin<T>) and returns Coin<BT>.
func (c *Calls) MintBToken(b *Bundle, bank *domain.Bank, coin, amount Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Steamm, "bank", "mint_btoken"), bank.TypeArgs(),
		b.SharedObject(bank.ID, true),
		b.SharedObject(bank.LendingMarketID, true),
		coin,
		amount,
		c.clock(b),
	)
}

// BurnBToken redeems amount of btoken (&mut Coin<BT>) and returns Coin<T>.
func (c *Calls) BurnBToken(b *Bundle, bank *domain.Bank, btoken, amount Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Steamm, "bank", "burn_btoken"), bank.TypeArgs(),
		b.SharedObject(bank.ID, true),
		b.SharedObject(bank.LendingMarketID, true),
		btoken,
		amount,
		c.clock(b),
	)
}

// OraclePrice reads an OraclePriceUpdate for the registry entry.
func (c *Calls) OraclePrice(b *Bundle, feed *domain.OracleFeed) Argument {
	return b.MoveCall(c.target(c.Packages.Oracles, "oracles", "get_pyth_price"), nil,
		b.SharedObject(c.Packages.OracleRegistry, false),
		b.SharedObject(feed.PriceInfoObjectID, false),
		b.PureU64(feed.Index),
		c.clock(b),
	)
}

// UpdatePriceFeed writes a fresh attestation into the feed's price info
// object. The update fee is split off the gas coin.
func (c *Calls) UpdatePriceFeed(b *Bundle, feed *domain.OracleFeed, update []byte, fee uint64) {
	feeCoin := b.SplitCoins(b.Gas(), b.PureU64(fee)).Nested(0)
	b.MoveCall(c.target(c.Packages.Pyth, "pyth_script", "update_price_feed"), nil,
		b.SharedObject(c.Packages.PythState, false),
		b.SharedObject(c.Packages.WormholeState, false),
		b.SharedObject(feed.PriceInfoObjectID, true),
		b.PureBytes(update),
		feeCoin,
		c.clock(b),
	)
}

// QuoteCPMM emits a HopQuote event and returns the bToken amount out.
func (c *Calls) QuoteCPMM(b *Bundle, pool *domain.Pool, aToB bool, amountIn Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Scripts, "quote_script", "quote_cpmm"),
		[]string{pool.BTokenTypeA, pool.BTokenTypeB, pool.LpTokenType},
		b.SharedObject(pool.ID, false),
		amountIn,
		b.PureBool(aToB),
	)
}

// OracleArgs are the extra inputs of an oracle-priced pool.
type OracleArgs struct {
	BankA  *domain.Bank
	BankB  *domain.Bank
	PriceA Argument
	PriceB Argument
}

func oracleModule(kind domain.QuoterKind) string {
	if kind == domain.QuoterOMMV2 {
		return "omm_v2"
	}
	return "omm"
}

func oracleTypeArgs(pool *domain.Pool, o OracleArgs) []string {
	return []string{
		o.BankA.LendingMarketType,
		o.BankA.CoinType, o.BankB.CoinType,
		pool.BTokenTypeA, pool.BTokenTypeB,
		pool.LpTokenType,
	}
}

func (c *Calls) QuoteOracle(b *Bundle, pool *domain.Pool, o OracleArgs, aToB bool, amountIn Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Scripts, "quote_script", "quote_"+oracleModule(pool.Quoter)),
		oracleTypeArgs(pool, o),
		b.SharedObject(pool.ID, false),
		b.SharedObject(o.BankA.ID, false),
		b.SharedObject(o.BankB.ID, false),
		b.SharedObject(o.BankA.LendingMarketID, false),
		o.PriceA,
		o.PriceB,
		amountIn,
		b.PureBool(aToB),
		c.clock(b),
	)
}

// SwapCPMM swaps between coinA and coinB in place and returns a SwapResult.
func (c *Calls) SwapCPMM(b *Bundle, pool *domain.Pool, coinA, coinB Argument, aToB bool, amountIn, minOut Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Steamm, "cpmm", "swap"),
		[]string{pool.BTokenTypeA, pool.BTokenTypeB, pool.LpTokenType},
		b.SharedObject(pool.ID, true),
		coinA,
		coinB,
		b.PureBool(aToB),
		amountIn,
		minOut,
	)
}

func (c *Calls) SwapOracle(b *Bundle, pool *domain.Pool, o OracleArgs, coinA, coinB Argument, aToB bool, amountIn, minOut Argument) Argument {
	return b.MoveCall(c.target(c.Packages.Steamm, oracleModule(pool.Quoter), "swap"),
		oracleTypeArgs(pool, o),
		b.SharedObject(pool.ID, true),
		b.SharedObject(o.BankA.ID, false),
		b.SharedObject(o.BankB.ID, false),
		b.SharedObject(o.BankA.LendingMarketID, false),
		o.PriceA,
		o.PriceB,
		coinA,
		coinB,
		b.PureBool(aToB),
		amountIn,
		minOut,
		c.clock(b),
	)
}

// EmitRouteQuote emits the RouteQuote event closing a quote fold.
func (c *Calls) EmitRouteQuote(b *Bundle, amountIn, amountOut Argument) {
	b.MoveCall(c.target(c.Packages.Scripts, "quote_script", "emit_route_quote"), nil, amountIn, amountOut)
}

func (c *Calls) CoinZero(b *Bundle, coinType string) Argument {
	return b.MoveCall(c.target(common.SuiFramework, "coin", "zero"), []string{coinType})
}

func (c *Calls) CoinValue(b *Bundle, coinType string, coin Argument) Argument {
	return b.MoveCall(c.target(common.SuiFramework, "coin", "value"), []string{coinType}, coin)
}

func (c *Calls) DestroyZero(b *Bundle, coinType string, coin Argument) {
	b.MoveCall(c.target(common.SuiFramework, "coin", "destroy_zero"), []string{coinType}, coin)
}

// DestroyOrTransfer destroys coin if it is empty, otherwise sends it to the
// transaction sender.
func (c *Calls) DestroyOrTransfer(b *Bundle, coinType string, coin Argument) {
	b.MoveCall(c.target(c.Packages.Scripts, "utils", "destroy_or_transfer"), []string{coinType}, coin)
}
