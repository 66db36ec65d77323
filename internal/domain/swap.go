package domain

import (
	"encoding/json"
	"strconv"
)

// ObjectRef pins an owned object to a version.
type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest"`
}

// CoinRef is the coin a swap is paid from. When FromGas is set the swap
// amount is split off the gas coin instead.
type CoinRef struct {
	ObjectRef
	CoinType string `json:"coinType"`
	Balance  uint64 `json:"balance"`
	FromGas  bool   `json:"fromGas,omitempty"`
}

// Event is an emitted Move event. ParsedJSON is the node's JSON rendering of
// the event struct; BCS holds the raw bytes when the source returns them.
type Event struct {
	Type       string          `json:"type"`
	ParsedJSON json.RawMessage `json:"parsedJson"`
	BCS        []byte          `json:"-"`
	TxDigest   string          `json:"txDigest"`
	EventSeq   string          `json:"eventSeq"`
	Timestamp  int64           `json:"timestampMs"`
}

// EventPage is one page of an ascending event query. Cursor is opaque to
// callers and resumes after the last event of the page.
type EventPage struct {
	Events  []Event
	Cursor  string
	HasMore bool
}

type SimulationResult struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Events  []Event `json:"events"`
	GasUsed uint64  `json:"gasUsed"`

	InsufficientFunds bool `json:"insufficientFunds"`
	SlippageExceeded  bool `json:"slippageExceeded"`
}

type BalanceChange struct {
	Owner    string `json:"owner"`
	CoinType string `json:"coinType"`
	Amount   int64  `json:"amount"`
}

type ExecutionResult struct {
	Digest         string          `json:"digest"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	Events         []Event         `json:"events"`
	BalanceChanges []BalanceChange `json:"balanceChanges"`
	GasUsed        uint64          `json:"gasUsed"`

	// Filled by the executor from balance changes of the output coin type.
	AmountOut uint64 `json:"amountOut"`
}

// ExecutionStage is one state of a route execution, in bundle order.
type ExecutionStage struct {
	Name string `json:"name"`
	Hop  int    `json:"hop,omitempty"`
}

const (
	StageMinted     = "minted"
	StageSwapping   = "swapping"
	StageUnwrapping = "unwrapping"
	StageSettled    = "settled"
)

func (s ExecutionStage) String() string {
	if s.Name == StageSwapping {
		return s.Name + "(" + strconv.Itoa(s.Hop) + ")"
	}
	return s.Name
}

// SwapRequest asks to route Amount of InputType into OutputType for Sender.
// A nil InputCoin lets the router pick one; a nil SlippageBps uses the
// configured default.
type SwapRequest struct {
	Sender      string
	Recipient   string
	InputType   string
	OutputType  string
	Amount      uint64
	SlippageBps *uint16
	InputCoin   *CoinRef
}
