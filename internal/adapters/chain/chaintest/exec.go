package chaintest

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

var (
	errSlippage = errors.New("ESwapExceedsSlippage")
	errAbort    = errors.New("MoveAbort")
)

// price is the value get_pyth_price returns.
type price struct {
	index uint64
	value uint64
}

// exec interprets one bundle. Results hold uint64, *coinObj, []*coinObj,
// price or nil per command.
type exec struct {
	l       *Ledger
	st      *state
	b       *builder.Bundle
	sender  string
	gas     *coinObj
	results [][]any
	created []*coinObj
	events  []domain.Event
}

func abortf(cmd int, format string, args ...any) error {
	return fmt.Errorf("%w in command %d: %s", errAbort, cmd, fmt.Sprintf(format, args...))
}

func (x *exec) run() error {
	x.gas = &coinObj{typ: domain.NormalizeType(common.SuiCoinType), amount: 1 << 60, owner: x.sender}
	for i, cmd := range x.b.Commands {
		out, err := x.step(i, cmd)
		if err != nil {
			return err
		}
		x.results = append(x.results, out)
	}
	for _, c := range x.created {
		if !c.consumed {
			return fmt.Errorf("%w: UnusedValueWithoutDrop: coin of %s (%d) left in the bundle", errAbort, c.typ, c.amount)
		}
	}
	for _, c := range x.st.coins {
		c.consumed = false
	}
	for _, c := range x.created {
		if c.owner != "" && c.id == "" {
			c.id = x.l.nextID()
			x.st.coins[c.id] = c
		}
	}
	return nil
}

func (x *exec) newCoin(typ string, amount uint64) *coinObj {
	c := &coinObj{typ: domain.NormalizeType(typ), amount: amount}
	x.created = append(x.created, c)
	return c
}

func (x *exec) step(i int, cmd builder.Command) ([]any, error) {
	switch cmd.Kind {
	case builder.CmdSplitCoins:
		src, err := x.coin(i, cmd.Coin)
		if err != nil {
			return nil, err
		}
		var out []*coinObj
		for _, a := range cmd.Amounts {
			amt, err := x.u64(i, a)
			if err != nil {
				return nil, err
			}
			if src.amount < amt {
				return nil, abortf(i, "split %d from coin holding %d", amt, src.amount)
			}
			src.amount -= amt
			out = append(out, x.newCoin(src.typ, amt))
		}
		vals := make([]any, len(out))
		for k, c := range out {
			vals[k] = c
		}
		return vals, nil

	case builder.CmdMergeCoins:
		dst, err := x.coin(i, cmd.Coin)
		if err != nil {
			return nil, err
		}
		for _, a := range cmd.Objects {
			src, err := x.coin(i, a)
			if err != nil {
				return nil, err
			}
			if src.typ != dst.typ {
				return nil, abortf(i, "merge %s into %s", src.typ, dst.typ)
			}
			if err := x.consume(i, src); err != nil {
				return nil, err
			}
			dst.amount += src.amount
			src.amount = 0
			x.drop(src)
		}
		return nil, nil

	case builder.CmdTransferObjects:
		to, err := x.address(i, cmd.Address)
		if err != nil {
			return nil, err
		}
		for _, a := range cmd.Objects {
			c, err := x.coin(i, a)
			if err != nil {
				return nil, err
			}
			if err := x.consume(i, c); err != nil {
				return nil, err
			}
			c.owner = to
		}
		return nil, nil

	case builder.CmdMoveCall:
		v, err := x.call(i, cmd.MoveCall)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	return nil, abortf(i, "unknown command kind %d", cmd.Kind)
}

// consume moves a coin by value. Owned inputs and created coins can only be
// moved once.
func (x *exec) consume(i int, c *coinObj) error {
	if c == x.gas {
		return abortf(i, "gas coin moved by value")
	}
	if c.consumed {
		return abortf(i, "coin used after move")
	}
	c.consumed = true
	return nil
}

// drop deletes an owned input object that was merged or destroyed.
func (x *exec) drop(c *coinObj) {
	if c.id != "" {
		delete(x.st.coins, c.id)
	}
}

func (x *exec) value(i int, a builder.Argument) (any, error) {
	switch a.Kind {
	case builder.ArgResult:
		if int(a.Index) >= len(x.results) {
			return nil, abortf(i, "result %d not produced yet", a.Index)
		}
		vals := x.results[a.Index]
		if len(vals) != 1 {
			return nil, abortf(i, "result %d has %d values", a.Index, len(vals))
		}
		return vals[0], nil
	case builder.ArgNestedResult:
		if int(a.Index) >= len(x.results) || int(a.Sub) >= len(x.results[a.Index]) {
			return nil, abortf(i, "nested result %d,%d missing", a.Index, a.Sub)
		}
		return x.results[a.Index][a.Sub], nil
	}
	return nil, abortf(i, "%s is not a result", a)
}

func (x *exec) pure(i int, a builder.Argument) ([]byte, error) {
	if a.Kind != builder.ArgInput || x.b.Inputs[a.Index].Kind != builder.InputPure {
		return nil, abortf(i, "%s is not a pure input", a)
	}
	return x.b.Inputs[a.Index].Pure, nil
}

func (x *exec) u64(i int, a builder.Argument) (uint64, error) {
	if a.Kind == builder.ArgInput {
		raw, err := x.pure(i, a)
		if err != nil {
			return 0, err
		}
		if len(raw) != 8 {
			return 0, abortf(i, "u64 input of %d bytes", len(raw))
		}
		return binary.LittleEndian.Uint64(raw), nil
	}
	v, err := x.value(i, a)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, abortf(i, "%s is not a u64", a)
	}
	return n, nil
}

func (x *exec) boolean(i int, a builder.Argument) (bool, error) {
	raw, err := x.pure(i, a)
	if err != nil {
		return false, err
	}
	if len(raw) != 1 {
		return false, abortf(i, "bool input of %d bytes", len(raw))
	}
	return raw[0] == 1, nil
}

func (x *exec) bytesArg(i int, a builder.Argument) ([]byte, error) {
	raw, err := x.pure(i, a)
	if err != nil {
		return nil, err
	}
	n, k := binary.Uvarint(raw)
	if k <= 0 || uint64(len(raw)-k) != n {
		return nil, abortf(i, "malformed vector<u8>")
	}
	return raw[k:], nil
}

func (x *exec) address(i int, a builder.Argument) (string, error) {
	raw, err := x.pure(i, a)
	if err != nil {
		return "", err
	}
	if len(raw) != 32 {
		return "", abortf(i, "address input of %d bytes", len(raw))
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func (x *exec) object(i int, a builder.Argument) (string, error) {
	if a.Kind != builder.ArgInput {
		return "", abortf(i, "%s is not an object input", a)
	}
	in := x.b.Inputs[a.Index]
	if in.Kind == builder.InputPure {
		return "", abortf(i, "%s is not an object input", a)
	}
	return in.ObjectID, nil
}

func (x *exec) coin(i int, a builder.Argument) (*coinObj, error) {
	switch a.Kind {
	case builder.ArgGasCoin:
		return x.gas, nil
	case builder.ArgInput:
		id, err := x.object(i, a)
		if err != nil {
			return nil, err
		}
		c, ok := x.st.coins[id]
		if !ok {
			return nil, abortf(i, "coin %s does not exist", id)
		}
		if c.owner != x.sender {
			return nil, abortf(i, "coin %s is not owned by the sender", id)
		}
		return c, nil
	}
	v, err := x.value(i, a)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*coinObj)
	if !ok {
		return nil, abortf(i, "%s is not a coin", a)
	}
	if c.consumed {
		return nil, abortf(i, "coin used after move")
	}
	return c, nil
}

func (x *exec) typedCoin(i int, a builder.Argument, typ string) (*coinObj, error) {
	c, err := x.coin(i, a)
	if err != nil {
		return nil, err
	}
	if c.typ != domain.NormalizeType(typ) {
		return nil, abortf(i, "coin is %s, expected %s", c.typ, typ)
	}
	return c, nil
}

func (x *exec) bank(i int, a builder.Argument, m *builder.MoveCall) (*Bank, error) {
	id, err := x.object(i, a)
	if err != nil {
		return nil, err
	}
	b, ok := x.st.banks[id]
	if !ok {
		return nil, abortf(i, "bank %s does not exist", id)
	}
	if len(m.TypeArgs) == 3 && domain.NormalizeType(m.TypeArgs[2]) != b.BTokenType {
		return nil, abortf(i, "bank %s is not typed %s", id, m.TypeArgs[2])
	}
	return b, nil
}

func (x *exec) pool(i int, a builder.Argument) (*Pool, error) {
	id, err := x.object(i, a)
	if err != nil {
		return nil, err
	}
	p, ok := x.st.pools[id]
	if !ok {
		return nil, abortf(i, "pool %s does not exist", id)
	}
	return p, nil
}

func (x *exec) price(i int, a builder.Argument) (price, error) {
	v, err := x.value(i, a)
	if err != nil {
		return price{}, err
	}
	p, ok := v.(price)
	if !ok {
		return price{}, abortf(i, "%s is not an oracle price", a)
	}
	return p, nil
}

func (x *exec) now() time.Time {
	return x.l.Now()
}

func (x *exec) call(i int, m *builder.MoveCall) (any, error) {
	args := m.Args
	need := func(n int) error {
		if len(args) != n {
			return abortf(i, "%s takes %d arguments, got %d", m.Target(), n, len(args))
		}
		return nil
	}

	switch m.Target() {
	case "bank_script::to_btokens", "bank_script::from_btokens":
		if err := need(4); err != nil {
			return nil, err
		}
		bank, err := x.bank(i, args[0], m)
		if err != nil {
			return nil, err
		}
		amount, err := x.u64(i, args[2])
		if err != nil {
			return nil, err
		}
		if m.Function == "to_btokens" {
			return router.MulDiv(amount, bank.RateDen, bank.Rate), nil
		}
		return router.MulDiv(amount, bank.Rate, bank.RateDen), nil

	case "bank::mint_btoken":
		if err := need(5); err != nil {
			return nil, err
		}
		bank, err := x.bank(i, args[0], m)
		if err != nil {
			return nil, err
		}
		src, err := x.typedCoin(i, args[2], bank.CoinType)
		if err != nil {
			return nil, err
		}
		amount, err := x.u64(i, args[3])
		if err != nil {
			return nil, err
		}
		if src.amount < amount {
			return nil, abortf(i, "mint %d from coin holding %d", amount, src.amount)
		}
		src.amount -= amount
		return x.newCoin(bank.BTokenType, router.MulDiv(amount, bank.RateDen, bank.Rate)), nil

	case "bank::burn_btoken":
		if err := need(5); err != nil {
			return nil, err
		}
		bank, err := x.bank(i, args[0], m)
		if err != nil {
			return nil, err
		}
		src, err := x.typedCoin(i, args[2], bank.BTokenType)
		if err != nil {
			return nil, err
		}
		amount, err := x.u64(i, args[3])
		if err != nil {
			return nil, err
		}
		if src.amount < amount {
			return nil, abortf(i, "burn %d from coin holding %d", amount, src.amount)
		}
		src.amount -= amount
		return x.newCoin(bank.CoinType, router.MulDiv(amount, bank.Rate, bank.RateDen)), nil

	case "oracles::get_pyth_price":
		if err := need(4); err != nil {
			return nil, err
		}
		id, err := x.object(i, args[1])
		if err != nil {
			return nil, err
		}
		feed, ok := x.st.feeds[id]
		if !ok {
			return nil, abortf(i, "price info %s does not exist", id)
		}
		index, err := x.u64(i, args[2])
		if err != nil {
			return nil, err
		}
		if index != feed.Index {
			return nil, abortf(i, "price info %s is not registered at %d", id, index)
		}
		if x.now().Sub(feed.PublishTime) > x.l.Staleness {
			return nil, abortf(i, "EPriceStale: feed %d published %s", feed.Index, feed.PublishTime)
		}
		return price{index: index, value: feed.Price}, nil

	case "pyth_script::update_price_feed":
		if err := need(6); err != nil {
			return nil, err
		}
		id, err := x.object(i, args[2])
		if err != nil {
			return nil, err
		}
		feed, ok := x.st.feeds[id]
		if !ok {
			return nil, abortf(i, "price info %s does not exist", id)
		}
		data, err := x.bytesArg(i, args[3])
		if err != nil {
			return nil, err
		}
		if len(data) != 16 {
			return nil, abortf(i, "invalid attestation")
		}
		fee, err := x.coin(i, args[4])
		if err != nil {
			return nil, err
		}
		if err := x.consume(i, fee); err != nil {
			return nil, err
		}
		published := time.Unix(int64(binary.LittleEndian.Uint64(data[8:])), 0)
		if published.After(feed.PublishTime) {
			feed.Price = binary.LittleEndian.Uint64(data[:8])
			feed.PublishTime = published
		}
		return nil, nil

	case "quote_script::quote_cpmm":
		if err := need(3); err != nil {
			return nil, err
		}
		p, err := x.pool(i, args[0])
		if err != nil {
			return nil, err
		}
		amount, err := x.u64(i, args[1])
		if err != nil {
			return nil, err
		}
		aToB, err := x.boolean(i, args[2])
		if err != nil {
			return nil, err
		}
		q, err := quoteCPMM(p, amount, aToB)
		if err != nil {
			return nil, abortf(i, "%s", err)
		}
		x.emitHopQuote(p, amount, aToB, q)
		return q.out, nil

	case "quote_script::quote_omm", "quote_script::quote_omm_v2":
		if err := need(9); err != nil {
			return nil, err
		}
		p, err := x.pool(i, args[0])
		if err != nil {
			return nil, err
		}
		pa, err := x.price(i, args[4])
		if err != nil {
			return nil, err
		}
		pb, err := x.price(i, args[5])
		if err != nil {
			return nil, err
		}
		amount, err := x.u64(i, args[6])
		if err != nil {
			return nil, err
		}
		aToB, err := x.boolean(i, args[7])
		if err != nil {
			return nil, err
		}
		q, err := quoteOracle(p, pa, pb, amount, aToB)
		if err != nil {
			return nil, abortf(i, "%s", err)
		}
		x.emitHopQuote(p, amount, aToB, q)
		return q.out, nil

	case "quote_script::emit_route_quote":
		if err := need(2); err != nil {
			return nil, err
		}
		in, err := x.u64(i, args[0])
		if err != nil {
			return nil, err
		}
		out, err := x.u64(i, args[1])
		if err != nil {
			return nil, err
		}
		x.emit(x.l.pkgs.RouteQuoteEventType(), map[string]any{
			"amount_in":  strconv.FormatUint(in, 10),
			"amount_out": strconv.FormatUint(out, 10),
		}, nil)
		return nil, nil

	case "cpmm::swap":
		if err := need(6); err != nil {
			return nil, err
		}
		p, err := x.pool(i, args[0])
		if err != nil {
			return nil, err
		}
		return nil, x.swap(i, p, args[1], args[2], args[3], args[4], args[5], func(amount uint64, aToB bool) (hopQuote, error) {
			return quoteCPMM(p, amount, aToB)
		})

	case "omm::swap", "omm_v2::swap":
		if err := need(12); err != nil {
			return nil, err
		}
		p, err := x.pool(i, args[0])
		if err != nil {
			return nil, err
		}
		pa, err := x.price(i, args[4])
		if err != nil {
			return nil, err
		}
		pb, err := x.price(i, args[5])
		if err != nil {
			return nil, err
		}
		return nil, x.swap(i, p, args[6], args[7], args[8], args[9], args[10], func(amount uint64, aToB bool) (hopQuote, error) {
			return quoteOracle(p, pa, pb, amount, aToB)
		})

	case "coin::zero":
		if err := need(0); err != nil {
			return nil, err
		}
		if len(m.TypeArgs) != 1 {
			return nil, abortf(i, "coin::zero needs one type argument")
		}
		return x.newCoin(m.TypeArgs[0], 0), nil

	case "coin::value":
		if err := need(1); err != nil {
			return nil, err
		}
		c, err := x.typedCoin(i, args[0], m.TypeArgs[0])
		if err != nil {
			return nil, err
		}
		return c.amount, nil

	case "coin::destroy_zero":
		if err := need(1); err != nil {
			return nil, err
		}
		c, err := x.typedCoin(i, args[0], m.TypeArgs[0])
		if err != nil {
			return nil, err
		}
		if c.amount != 0 {
			return nil, abortf(i, "ENonZero: destroy_zero on %d", c.amount)
		}
		if err := x.consume(i, c); err != nil {
			return nil, err
		}
		x.drop(c)
		return nil, nil

	case "utils::destroy_or_transfer":
		if err := need(1); err != nil {
			return nil, err
		}
		c, err := x.typedCoin(i, args[0], m.TypeArgs[0])
		if err != nil {
			return nil, err
		}
		if err := x.consume(i, c); err != nil {
			return nil, err
		}
		if c.amount == 0 {
			x.drop(c)
			return nil, nil
		}
		c.owner = x.sender
		return nil, nil
	}
	return nil, abortf(i, "unknown function %s", m.Target())
}

// swap debits amount from the input side and credits the output side, both
// coins passed by reference.
func (x *exec) swap(i int, p *Pool, coinA, coinB, aToBArg, amountArg, minOutArg builder.Argument, quote func(uint64, bool) (hopQuote, error)) error {
	a, err := x.typedCoin(i, coinA, p.BTokenTypeA)
	if err != nil {
		return err
	}
	b, err := x.typedCoin(i, coinB, p.BTokenTypeB)
	if err != nil {
		return err
	}
	aToB, err := x.boolean(i, aToBArg)
	if err != nil {
		return err
	}
	amount, err := x.u64(i, amountArg)
	if err != nil {
		return err
	}
	minOut, err := x.u64(i, minOutArg)
	if err != nil {
		return err
	}

	in, out := a, b
	if !aToB {
		in, out = b, a
	}
	if in.amount < amount {
		return abortf(i, "swap %d from coin holding %d", amount, in.amount)
	}
	q, err := quote(amount, aToB)
	if err != nil {
		return abortf(i, "%s", err)
	}
	if q.out < minOut {
		return fmt.Errorf("%w in command %d: %w: out %d below %d", errAbort, i, errSlippage, q.out, minOut)
	}

	taken := p.intake(amount)
	in.amount -= taken
	out.amount += q.out
	if aToB {
		p.ReserveA += taken
		p.ReserveB -= q.out + q.protocol
	} else {
		p.ReserveB += taken
		p.ReserveA -= q.out + q.protocol
	}
	return nil
}

type hopQuote struct {
	out      uint64
	protocol uint64
	pool     uint64
}

func splitFee(gross, feeBps uint64) hopQuote {
	fee := router.MulDiv(gross, feeBps, common.BpsDenominator)
	protocol := router.MulDiv(fee, protocolFeeShareBps, common.BpsDenominator)
	return hopQuote{out: gross - fee, protocol: protocol, pool: fee - protocol}
}

func reserves(p *Pool, aToB bool) (in, out uint64) {
	if aToB {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

func quoteCPMM(p *Pool, amount uint64, aToB bool) (hopQuote, error) {
	amount = p.intake(amount)
	resIn, resOut := reserves(p, aToB)
	if resIn == 0 || resOut == 0 {
		return hopQuote{}, errors.New("EEmptyPool")
	}
	gross := router.MulDiv(amount, resOut, resIn+amount)
	q := splitFee(gross, p.SwapFeeBps)
	if q.out == 0 {
		return hopQuote{}, errors.New("EZeroOutput")
	}
	return q, nil
}

func quoteOracle(p *Pool, pa, pb price, amount uint64, aToB bool) (hopQuote, error) {
	if pa.index != p.OracleIndexA || pb.index != p.OracleIndexB {
		return hopQuote{}, errors.New("EInvalidOracleIndex")
	}
	amount = p.intake(amount)
	priceIn, priceOut := pa.value, pb.value
	if !aToB {
		priceIn, priceOut = pb.value, pa.value
	}
	if priceOut == 0 {
		return hopQuote{}, errors.New("EZeroPrice")
	}
	q := splitFee(router.MulDiv(amount, priceIn, priceOut), p.SwapFeeBps)
	_, resOut := reserves(p, aToB)
	if q.out == 0 || q.out+q.protocol > resOut {
		return hopQuote{}, errors.New("EInsufficientLiquidity")
	}
	return q, nil
}

func (x *exec) emitHopQuote(p *Pool, amountIn uint64, aToB bool, q hopQuote) {
	var raw []byte
	if x.l.EmitBCS {
		id, _ := hex.DecodeString(p.ID[2:])
		raw = append(raw, id...)
		for _, v := range []uint64{amountIn, q.out, q.protocol, q.pool} {
			raw = binary.LittleEndian.AppendUint64(raw, v)
		}
		if aToB {
			raw = append(raw, 1)
		} else {
			raw = append(raw, 0)
		}
	}
	x.emit(x.l.pkgs.HopQuoteEventType(), map[string]any{
		"pool_id":       p.ID,
		"amount_in":     strconv.FormatUint(amountIn, 10),
		"amount_out":    strconv.FormatUint(q.out, 10),
		"protocol_fees": strconv.FormatUint(q.protocol, 10),
		"pool_fees":     strconv.FormatUint(q.pool, 10),
		"a2b":           aToB,
	}, raw)
}

func (x *exec) emit(typ string, fields map[string]any, raw []byte) {
	data, _ := sonic.Marshal(fields)
	x.events = append(x.events, domain.Event{
		Type:       typ,
		ParsedJSON: data,
		BCS:        raw,
		EventSeq:   strconv.Itoa(len(x.events)),
		Timestamp:  x.now().UnixMilli(),
	})
}
