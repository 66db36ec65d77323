// Package oracle fetches price attestations from a Pyth Hermes endpoint.
package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

var ErrNoAttestation = errors.New("hermes returned no attestation for feed")

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Binary struct {
		Encoding string   `json:"encoding"`
		Data     []string `json:"data"`
	} `json:"binary"`
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

type Hermes struct {
	baseURL string
	http    *http.Client
}

func NewHermes(baseURL string, timeout time.Duration) *Hermes {
	return &Hermes{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Latest returns the newest attestation for the feed, with the update bytes
// to post on chain.
func (h *Hermes) Latest(ctx context.Context, feedID string) (*domain.PriceUpdate, error) {
	q := url.Values{}
	q.Add("ids[]", strings.TrimPrefix(feedID, "0x"))
	q.Set("encoding", "base64")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v2/updates/price/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	metrics.RPCDuration.WithLabelValues("hermes_latest").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCRequests.WithLabelValues("hermes_latest", "error").Inc()
		return nil, fmt.Errorf("hermes: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RPCRequests.WithLabelValues("hermes_latest", "error").Inc()
		return nil, fmt.Errorf("hermes: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RPCRequests.WithLabelValues("hermes_latest", "error").Inc()
		return nil, fmt.Errorf("hermes: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	metrics.RPCRequests.WithLabelValues("hermes_latest", "ok").Inc()

	var out hermesResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("hermes: decode: %w", err)
	}
	return parseLatest(feedID, &out)
}

func parseLatest(feedID string, out *hermesResponse) (*domain.PriceUpdate, error) {
	if len(out.Parsed) == 0 || len(out.Binary.Data) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoAttestation, feedID)
	}
	data, err := base64.StdEncoding.DecodeString(out.Binary.Data[0])
	if err != nil {
		return nil, fmt.Errorf("hermes: update data: %w", err)
	}
	p := out.Parsed[0].Price
	price, err := scaled(p.Price, p.Expo)
	if err != nil {
		return nil, err
	}
	conf, err := scaled(p.Conf, p.Expo)
	if err != nil {
		return nil, err
	}
	return &domain.PriceUpdate{
		FeedID:      feedID,
		Data:        data,
		Price:       price,
		Confidence:  conf,
		PublishTime: time.Unix(p.PublishTime, 0),
	}, nil
}

func scaled(mantissa string, expo int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(mantissa)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("hermes: price %q: %w", mantissa, err)
	}
	return d.Shift(expo), nil
}

// PublishTimeReader reads the attestation currently stored on chain.
type PublishTimeReader interface {
	PublishTime(ctx context.Context, feed *domain.OracleFeed) (time.Time, error)
}

// Source pairs the on-chain view of a feed with Hermes for fresh updates.
type Source struct {
	Chain  PublishTimeReader
	Hermes *Hermes
}

func (s *Source) PublishTime(ctx context.Context, feed *domain.OracleFeed) (time.Time, error) {
	return s.Chain.PublishTime(ctx, feed)
}

func (s *Source) LatestUpdate(ctx context.Context, feed *domain.OracleFeed) (*domain.PriceUpdate, error) {
	return s.Hermes.Latest(ctx, feed.FeedID)
}
