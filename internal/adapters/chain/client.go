// Package chain talks to a fullnode over JSON-RPC: event queries, object
// reads, bundle simulation and submission.
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hxuan190/steamm-router/internal/common"
	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
	"github.com/hxuan190/steamm-router/internal/services/builder"
	"github.com/hxuan190/steamm-router/internal/services/router"
)

var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrNotShared        = errors.New("object is not shared")
	ErrInsufficientGas  = errors.New("not enough gas coins to cover the budget")
	ErrNoCoinForBalance = errors.New("no single coin holds the requested balance")
)

const (
	multiGetBatch = 50
	coinPageLimit = 50
)

type Options struct {
	RPCURL            string
	RequestsPerSecond float64
	Burst             int
	GasBudget         uint64
	VersionCacheSize  int
	// SimulationSender is the sender dev-inspect runs as.
	SimulationSender string
}

// Client implements router.Chain against a fullnode.
type Client struct {
	rpc      *rpc.Client
	limiter  *rate.Limiter
	versions *lru.Cache[string, uint64]
	gasPrice *gasPriceCache
	opts     Options
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	rc, err := rpc.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.RPCURL, err)
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.VersionCacheSize <= 0 {
		opts.VersionCacheSize = 4096
	}
	if opts.SimulationSender == "" {
		opts.SimulationSender = common.ZeroAddress
	}
	// initial shared versions never change once an object is shared
	versions, err := lru.New[string, uint64](opts.VersionCacheSize)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("version cache: %w", err)
	}
	c := &Client{
		rpc:      rc,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		versions: versions,
		opts:     opts,
	}
	c.gasPrice = &gasPriceCache{fetch: c.referenceGasPrice}
	return c, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCRequests.WithLabelValues(method, status).Inc()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// QueryEvents pages through events of one Move type in ascending order.
func (c *Client) QueryEvents(ctx context.Context, eventType, cursor string, limit int) (*domain.EventPage, error) {
	after, err := parseEventCursor(cursor)
	if err != nil {
		return nil, err
	}
	var resp eventPageResponse
	query := map[string]string{"MoveEventType": eventType}
	if err := c.call(ctx, &resp, "suix_queryEvents", query, after, limit, false); err != nil {
		return nil, err
	}
	page := &domain.EventPage{
		Events:  toDomainEvents(resp.Data),
		Cursor:  cursor,
		HasMore: resp.HasNextPage,
	}
	if resp.NextCursor != nil {
		page.Cursor = resp.NextCursor.String()
	}
	return page, nil
}

func (c *Client) multiGetObjects(ctx context.Context, ids []string, showContent bool) ([]objectResponse, error) {
	out := make([]objectResponse, 0, len(ids))
	opts := map[string]bool{"showOwner": true, "showContent": showContent}
	for start := 0; start < len(ids); start += multiGetBatch {
		end := min(start+multiGetBatch, len(ids))
		var page []objectResponse
		if err := c.call(ctx, &page, "sui_multiGetObjects", ids[start:end], opts); err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}

// resolveShared fills in the initial shared version of every shared input.
func (c *Client) resolveShared(ctx context.Context, b *builder.Bundle) error {
	versions := make(map[string]uint64)
	var missing []string
	for _, id := range b.SharedObjectIDs() {
		if v, ok := c.versions.Get(id); ok {
			versions[id] = v
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		objs, err := c.multiGetObjects(ctx, missing, false)
		if err != nil {
			return err
		}
		for i, obj := range objs {
			if obj.Data == nil {
				return fmt.Errorf("%w: %s", ErrObjectNotFound, missing[i])
			}
			if obj.Data.Owner.Shared == nil {
				return fmt.Errorf("%w: %s", ErrNotShared, missing[i])
			}
			v := obj.Data.Owner.Shared.InitialSharedVersion
			c.versions.Add(missing[i], v)
			versions[missing[i]] = v
		}
	}
	b.SetSharedVersions(versions)
	return nil
}

// Prepare resolves shared inputs and returns the bundle as TransactionKind
// bytes, ready for a wallet to add gas and sign.
func (c *Client) Prepare(ctx context.Context, b *builder.Bundle) ([]byte, error) {
	if err := c.resolveShared(ctx, b); err != nil {
		return nil, err
	}
	return b.EncodeKind()
}

// Simulate dev-inspects the bundle. Aborts come back as an unsuccessful
// result; only transport problems are errors.
func (c *Client) Simulate(ctx context.Context, b *builder.Bundle) (*domain.SimulationResult, error) {
	if err := c.resolveShared(ctx, b); err != nil {
		return nil, err
	}
	kind, err := b.EncodeKind()
	if err != nil {
		return nil, err
	}

	var resp devInspectResponse
	if err := c.call(ctx, &resp, "sui_devInspectTransactionBlock",
		c.opts.SimulationSender, base64.StdEncoding.EncodeToString(kind), nil, nil); err != nil {
		return nil, err
	}

	res := &domain.SimulationResult{
		Success: resp.Effects.Status.Status == "success" && resp.Error == "",
		Events:  toDomainEvents(resp.Events),
		GasUsed: resp.Effects.GasUsed.total(),
	}
	if !res.Success {
		res.Error = resp.Effects.Status.Error
		if res.Error == "" {
			res.Error = resp.Error
		}
		res.InsufficientFunds = containsAny(res.Error, "InsufficientCoinBalance", "InsufficientGas")
		res.SlippageExceeded = containsAny(res.Error, "ESwapExceedsSlippage", "EOutputTooLow")
	}
	return res, nil
}

// Submit signs and executes the bundle, waiting for local execution.
func (c *Client) Submit(ctx context.Context, b *builder.Bundle, signer router.Signer) (*domain.ExecutionResult, error) {
	if err := c.resolveShared(ctx, b); err != nil {
		return nil, err
	}
	sender := domain.NormalizeAddress(signer.Address())

	price, err := c.gasPrice.get(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := c.gasPayment(ctx, sender, b)
	if err != nil {
		return nil, err
	}
	txBytes, err := b.EncodeTransactionData(sender, builder.GasData{
		Payment: payment,
		Owner:   sender,
		Price:   price,
		Budget:  c.opts.GasBudget,
	})
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(ctx, txBytes)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	var resp executeResponse
	opts := map[string]bool{"showEffects": true, "showEvents": true, "showBalanceChanges": true}
	if err := c.call(ctx, &resp, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes), []string{sig}, opts, "WaitForLocalExecution"); err != nil {
		return nil, err
	}
	res := resp.toDomain()
	log.Debug().Str("digest", res.Digest).Bool("success", res.Success).Uint64("gas", res.GasUsed).Msg("[chainClient] transaction executed")
	return res, nil
}

// gasPayment picks SUI coins covering the budget, skipping any the bundle
// already spends as inputs.
func (c *Client) gasPayment(ctx context.Context, owner string, b *builder.Bundle) ([]domain.ObjectRef, error) {
	used := make(map[string]struct{})
	for _, in := range b.Inputs {
		if in.Kind == builder.InputOwned {
			used[in.ObjectID] = struct{}{}
		}
	}
	var (
		refs  []domain.ObjectRef
		total uint64
	)
	err := c.eachCoin(ctx, owner, common.SuiCoinType, func(coin domain.CoinRef) bool {
		if _, skip := used[coin.ObjectID]; skip {
			return true
		}
		refs = append(refs, coin.ObjectRef)
		total += coin.Balance
		return total < c.opts.GasBudget
	})
	if err != nil {
		return nil, err
	}
	if total < c.opts.GasBudget {
		return nil, fmt.Errorf("%w: have %d, budget %d", ErrInsufficientGas, total, c.opts.GasBudget)
	}
	return refs, nil
}

func (c *Client) eachCoin(ctx context.Context, owner, coinType string, fn func(domain.CoinRef) bool) error {
	var cursor *string
	for {
		var page coinPageResponse
		if err := c.call(ctx, &page, "suix_getCoins", owner, coinType, cursor, coinPageLimit); err != nil {
			return err
		}
		for _, coin := range page.Data {
			if !fn(coin.toDomain()) {
				return nil
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return nil
		}
		cursor = page.NextCursor
	}
}

// SelectCoin returns the first coin of coinType holding at least amount.
func (c *Client) SelectCoin(ctx context.Context, owner, coinType string, amount uint64) (domain.CoinRef, error) {
	var found *domain.CoinRef
	err := c.eachCoin(ctx, domain.NormalizeAddress(owner), coinType, func(coin domain.CoinRef) bool {
		if coin.Balance >= amount {
			found = &coin
			return false
		}
		return true
	})
	if err != nil {
		return domain.CoinRef{}, err
	}
	if found == nil {
		return domain.CoinRef{}, fmt.Errorf("%w: %d of %s", ErrNoCoinForBalance, amount, coinType)
	}
	return *found, nil
}

// PublishTime reads the timestamp of the attestation stored in the feed's
// price info object.
func (c *Client) PublishTime(ctx context.Context, feed *domain.OracleFeed) (time.Time, error) {
	objs, err := c.multiGetObjects(ctx, []string{feed.PriceInfoObjectID}, true)
	if err != nil {
		return time.Time{}, err
	}
	if len(objs) != 1 || objs[0].Data == nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrObjectNotFound, feed.PriceInfoObjectID)
	}
	var content priceInfoContent
	if err := sonic.Unmarshal(objs[0].Data.Content, &content); err != nil {
		return time.Time{}, fmt.Errorf("decode price info %s: %w", feed.PriceInfoObjectID, err)
	}
	secs, err := strconv.ParseInt(content.Fields.PriceInfo.Fields.PriceFeed.Fields.Price.Fields.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode price info %s: %w", feed.PriceInfoObjectID, err)
	}
	return time.Unix(secs, 0), nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
