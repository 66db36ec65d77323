package builder

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"

	"github.com/hxuan190/steamm-router/internal/domain"
)

var (
	ErrForwardReference = errors.New("argument references a later command")
	ErrBadTarget        = errors.New("move call target must be package::module::function")
	ErrUnresolvedShared = errors.New("shared object version not resolved")
)

type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument points at a bundle input or at the value produced by an earlier
// command. Results are only known once the command executes on chain.
type Argument struct {
	Kind  ArgumentKind
	Index uint16
	Sub   uint16
}

// Nested selects one value of a command that returns several.
func (a Argument) Nested(sub uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: a.Index, Sub: sub}
}

func (a Argument) String() string {
	switch a.Kind {
	case ArgGasCoin:
		return "Gas"
	case ArgInput:
		return fmt.Sprintf("Input(%d)", a.Index)
	case ArgResult:
		return fmt.Sprintf("Result(%d)", a.Index)
	default:
		return fmt.Sprintf("NestedResult(%d,%d)", a.Index, a.Sub)
	}
}

type InputKind uint8

const (
	InputPure InputKind = iota
	InputOwned
	InputShared
)

type Input struct {
	Kind     InputKind
	Pure     []byte
	ObjectID string

	Ref                  domain.ObjectRef
	Mutable              bool
	InitialSharedVersion uint64
}

type CommandKind uint8

const (
	CmdMoveCall CommandKind = iota
	CmdTransferObjects
	CmdSplitCoins
	CmdMergeCoins
)

type MoveCall struct {
	Package  string
	Module   string
	Function string
	TypeArgs []string
	Args     []Argument
}

func (m *MoveCall) Target() string {
	return m.Module + "::" + m.Function
}

type Command struct {
	Kind     CommandKind
	MoveCall *MoveCall

	// TransferObjects: Objects to Address. MergeCoins: Objects into Coin.
	// SplitCoins: Amounts out of Coin.
	Objects []Argument
	Address Argument
	Coin    Argument
	Amounts []Argument
}

// Bundle is an ordered list of commands executed atomically. Later commands
// may consume the results of earlier ones by position.
type Bundle struct {
	Inputs   []Input
	Commands []Command

	objects map[string]uint16
	err     error
}

func New() *Bundle {
	return &Bundle{objects: make(map[string]uint16)}
}

// Err returns the first construction error, if any.
func (b *Bundle) Err() error {
	return b.err
}

func (b *Bundle) Gas() Argument {
	return Argument{Kind: ArgGasCoin}
}

func (b *Bundle) pure(data []byte) Argument {
	b.Inputs = append(b.Inputs, Input{Kind: InputPure, Pure: data})
	return Argument{Kind: ArgInput, Index: uint16(len(b.Inputs) - 1)}
}

func (b *Bundle) PureU64(v uint64) Argument {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint64(v, binary.LittleEndian)
	return b.pure(buf.Bytes())
}

func (b *Bundle) PureBool(v bool) Argument {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteBool(v)
	return b.pure(buf.Bytes())
}

// PureBytes passes a vector<u8>.
func (b *Bundle) PureBytes(v []byte) Argument {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteBytes(v, true)
	return b.pure(buf.Bytes())
}

func (b *Bundle) PureAddress(addr string) Argument {
	raw, err := decodeAddress(addr)
	if err != nil {
		b.fail(err)
	}
	return b.pure(raw)
}

// SharedObject adds a shared object input once; asking for it again mutably
// upgrades the existing input.
func (b *Bundle) SharedObject(id string, mutable bool) Argument {
	id = domain.NormalizeAddress(id)
	if idx, ok := b.objects[id]; ok {
		if mutable {
			b.Inputs[idx].Mutable = true
		}
		return Argument{Kind: ArgInput, Index: idx}
	}
	b.Inputs = append(b.Inputs, Input{Kind: InputShared, ObjectID: id, Mutable: mutable})
	idx := uint16(len(b.Inputs) - 1)
	b.objects[id] = idx
	return Argument{Kind: ArgInput, Index: idx}
}

func (b *Bundle) OwnedObject(ref domain.ObjectRef) Argument {
	id := domain.NormalizeAddress(ref.ObjectID)
	if idx, ok := b.objects[id]; ok {
		return Argument{Kind: ArgInput, Index: idx}
	}
	ref.ObjectID = id
	b.Inputs = append(b.Inputs, Input{Kind: InputOwned, ObjectID: id, Ref: ref})
	idx := uint16(len(b.Inputs) - 1)
	b.objects[id] = idx
	return Argument{Kind: ArgInput, Index: idx}
}

// MoveCall appends a call to target ("package::module::function") and returns
// its result.
func (b *Bundle) MoveCall(target string, typeArgs []string, args ...Argument) Argument {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		b.fail(fmt.Errorf("%w: %q", ErrBadTarget, target))
		parts = []string{"0x0", "", ""}
	}
	b.checkArgs(args...)
	b.Commands = append(b.Commands, Command{
		Kind: CmdMoveCall,
		MoveCall: &MoveCall{
			Package:  domain.NormalizeAddress(parts[0]),
			Module:   parts[1],
			Function: parts[2],
			TypeArgs: typeArgs,
			Args:     args,
		},
	})
	return b.lastResult()
}

// SplitCoins returns one result; pick each new coin with Nested(i).
func (b *Bundle) SplitCoins(coin Argument, amounts ...Argument) Argument {
	b.checkArgs(coin)
	b.checkArgs(amounts...)
	b.Commands = append(b.Commands, Command{Kind: CmdSplitCoins, Coin: coin, Amounts: amounts})
	return b.lastResult()
}

func (b *Bundle) MergeCoins(dest Argument, sources ...Argument) {
	b.checkArgs(dest)
	b.checkArgs(sources...)
	b.Commands = append(b.Commands, Command{Kind: CmdMergeCoins, Coin: dest, Objects: sources})
}

func (b *Bundle) TransferObjects(objects []Argument, recipient Argument) {
	b.checkArgs(objects...)
	b.checkArgs(recipient)
	b.Commands = append(b.Commands, Command{Kind: CmdTransferObjects, Objects: objects, Address: recipient})
}

func (b *Bundle) lastResult() Argument {
	return Argument{Kind: ArgResult, Index: uint16(len(b.Commands) - 1)}
}

func (b *Bundle) checkArgs(args ...Argument) {
	next := uint16(len(b.Commands))
	for _, a := range args {
		switch a.Kind {
		case ArgResult, ArgNestedResult:
			if a.Index >= next {
				b.fail(fmt.Errorf("%w: %s in command %d", ErrForwardReference, a, next))
			}
		case ArgInput:
			if int(a.Index) >= len(b.Inputs) {
				b.fail(fmt.Errorf("input %d out of range", a.Index))
			}
		}
	}
}

func (b *Bundle) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// SharedObjectIDs lists shared inputs whose initial version is still unknown.
func (b *Bundle) SharedObjectIDs() []string {
	var ids []string
	for _, in := range b.Inputs {
		if in.Kind == InputShared && in.InitialSharedVersion == 0 {
			ids = append(ids, in.ObjectID)
		}
	}
	return ids
}

func (b *Bundle) SetSharedVersions(versions map[string]uint64) {
	for i := range b.Inputs {
		in := &b.Inputs[i]
		if in.Kind != InputShared {
			continue
		}
		if v, ok := versions[in.ObjectID]; ok {
			in.InitialSharedVersion = v
		}
	}
}

// CountCalls returns how many move calls in the bundle hit module::function.
func (b *Bundle) CountCalls(moduleFunction string) int {
	n := 0
	for _, c := range b.Commands {
		if c.Kind == CmdMoveCall && c.MoveCall.Target() == moduleFunction {
			n++
		}
	}
	return n
}

func decodeAddress(addr string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(domain.NormalizeAddress(addr), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid address %q: length %d", addr, len(raw))
	}
	return raw, nil
}
