package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/hxuan190/steamm-router/internal/domain"
)

// EventCursor resumes an event query after the event it names.
type EventCursor struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

func (c *EventCursor) String() string {
	if c == nil {
		return ""
	}
	return c.TxDigest + "/" + c.EventSeq
}

func parseEventCursor(s string) (*EventCursor, error) {
	if s == "" {
		return nil, nil
	}
	digest, seq, ok := strings.Cut(s, "/")
	if !ok || digest == "" || seq == "" {
		return nil, fmt.Errorf("invalid event cursor %q", s)
	}
	return &EventCursor{TxDigest: digest, EventSeq: seq}, nil
}

type rpcEvent struct {
	ID          EventCursor     `json:"id"`
	Type        string          `json:"type"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	BCS         string          `json:"bcs"`
	BCSEncoding string          `json:"bcsEncoding"`
	TimestampMs string          `json:"timestampMs"`
}

func (e rpcEvent) toDomain() domain.Event {
	ev := domain.Event{
		Type:       e.Type,
		ParsedJSON: e.ParsedJSON,
		TxDigest:   e.ID.TxDigest,
		EventSeq:   e.ID.EventSeq,
	}
	ev.Timestamp, _ = strconv.ParseInt(e.TimestampMs, 10, 64)
	if e.BCS != "" {
		// Older nodes omit bcsEncoding and send base58.
		if e.BCSEncoding == "base64" {
			ev.BCS, _ = base64.StdEncoding.DecodeString(e.BCS)
		} else {
			ev.BCS, _ = base58.Decode(e.BCS)
		}
	}
	return ev
}

func toDomainEvents(in []rpcEvent) []domain.Event {
	out := make([]domain.Event, len(in))
	for i, e := range in {
		out[i] = e.toDomain()
	}
	return out
}

type eventPageResponse struct {
	Data        []rpcEvent   `json:"data"`
	NextCursor  *EventCursor `json:"nextCursor"`
	HasNextPage bool         `json:"hasNextPage"`
}

type executionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type gasCostSummary struct {
	ComputationCost string `json:"computationCost"`
	StorageCost     string `json:"storageCost"`
	StorageRebate   string `json:"storageRebate"`
}

// Net gas charged; the rebate can exceed the rest.
func (g gasCostSummary) total() uint64 {
	c, _ := strconv.ParseInt(g.ComputationCost, 10, 64)
	s, _ := strconv.ParseInt(g.StorageCost, 10, 64)
	r, _ := strconv.ParseInt(g.StorageRebate, 10, 64)
	if t := c + s - r; t > 0 {
		return uint64(t)
	}
	return 0
}

type transactionEffects struct {
	Status  executionStatus `json:"status"`
	GasUsed gasCostSummary  `json:"gasUsed"`
}

type devInspectResponse struct {
	Effects transactionEffects `json:"effects"`
	Events  []rpcEvent         `json:"events"`
	Error   string             `json:"error"`
}

type objectOwner struct {
	AddressOwner string `json:"AddressOwner"`
	ObjectOwner  string `json:"ObjectOwner"`
	Shared       *struct {
		InitialSharedVersion uint64 `json:"initial_shared_version"`
	} `json:"Shared"`
}

type rpcBalanceChange struct {
	Owner    objectOwner `json:"owner"`
	CoinType string      `json:"coinType"`
	Amount   string      `json:"amount"`
}

type executeResponse struct {
	Digest         string             `json:"digest"`
	Effects        transactionEffects `json:"effects"`
	Events         []rpcEvent         `json:"events"`
	BalanceChanges []rpcBalanceChange `json:"balanceChanges"`
}

func (r *executeResponse) toDomain() *domain.ExecutionResult {
	res := &domain.ExecutionResult{
		Digest:  r.Digest,
		Success: r.Effects.Status.Status == "success",
		Error:   r.Effects.Status.Error,
		Events:  toDomainEvents(r.Events),
		GasUsed: r.Effects.GasUsed.total(),
	}
	for _, bc := range r.BalanceChanges {
		amount, err := strconv.ParseInt(bc.Amount, 10, 64)
		if err != nil || bc.Owner.AddressOwner == "" {
			continue
		}
		res.BalanceChanges = append(res.BalanceChanges, domain.BalanceChange{
			Owner:    domain.NormalizeAddress(bc.Owner.AddressOwner),
			CoinType: domain.NormalizeType(bc.CoinType),
			Amount:   amount,
		})
	}
	return res
}

type objectResponse struct {
	Data *struct {
		ObjectID string          `json:"objectId"`
		Version  string          `json:"version"`
		Digest   string          `json:"digest"`
		Owner    objectOwner     `json:"owner"`
		Content  json.RawMessage `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// priceInfoContent is the slice of a Pyth PriceInfoObject the router reads.
type priceInfoContent struct {
	Fields struct {
		PriceInfo struct {
			Fields struct {
				PriceFeed struct {
					Fields struct {
						Price struct {
							Fields struct {
								Timestamp string `json:"timestamp"`
							} `json:"fields"`
						} `json:"price"`
					} `json:"fields"`
				} `json:"price_feed"`
			} `json:"fields"`
		} `json:"price_info"`
	} `json:"fields"`
}

type coinResponse struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

type coinPageResponse struct {
	Data        []coinResponse `json:"data"`
	NextCursor  *string        `json:"nextCursor"`
	HasNextPage bool           `json:"hasNextPage"`
}

func (c coinResponse) toDomain() domain.CoinRef {
	version, _ := strconv.ParseUint(c.Version, 10, 64)
	balance, _ := strconv.ParseUint(c.Balance, 10, 64)
	return domain.CoinRef{
		ObjectRef: domain.ObjectRef{
			ObjectID: domain.NormalizeAddress(c.CoinObjectID),
			Version:  version,
			Digest:   c.Digest,
		},
		CoinType: domain.NormalizeType(c.CoinType),
		Balance:  balance,
	}
}
