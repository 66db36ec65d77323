package builder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"

	"github.com/hxuan190/steamm-router/internal/domain"
)

// GasData is the payment section of a committed transaction.
type GasData struct {
	Payment []domain.ObjectRef
	Owner   string
	Price   uint64
	Budget  uint64
}

// EncodeKind serializes the bundle as a programmable TransactionKind, the
// form dev-inspect accepts.
func (b *Bundle) EncodeKind() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := b.encodeKind(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTransactionData serializes a V1 TransactionData with no expiration.
func (b *Bundle) EncodeTransactionData(sender string, gas GasData) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)

	if err := enc.WriteUVarInt(0); err != nil { // V1
		return nil, err
	}
	if err := b.encodeKind(enc); err != nil {
		return nil, err
	}
	if err := writeAddress(enc, sender); err != nil {
		return nil, err
	}
	if err := enc.WriteUVarInt(len(gas.Payment)); err != nil {
		return nil, err
	}
	for _, ref := range gas.Payment {
		if err := writeObjectRef(enc, ref); err != nil {
			return nil, err
		}
	}
	owner := gas.Owner
	if owner == "" {
		owner = sender
	}
	if err := writeAddress(enc, owner); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(gas.Price, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(gas.Budget, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUVarInt(0); err != nil { // TransactionExpiration::None
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Bundle) encodeKind(enc *bin.Encoder) error {
	if b.err != nil {
		return b.err
	}
	if err := enc.WriteUVarInt(0); err != nil { // ProgrammableTransaction
		return err
	}

	if err := enc.WriteUVarInt(len(b.Inputs)); err != nil {
		return err
	}
	for i, in := range b.Inputs {
		if err := writeInput(enc, in); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	if err := enc.WriteUVarInt(len(b.Commands)); err != nil {
		return err
	}
	for i, cmd := range b.Commands {
		if err := writeCommand(enc, cmd); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

func writeInput(enc *bin.Encoder, in Input) error {
	switch in.Kind {
	case InputPure:
		if err := enc.WriteUVarInt(0); err != nil {
			return err
		}
		return enc.WriteBytes(in.Pure, true)
	case InputOwned:
		if err := enc.WriteUVarInt(1); err != nil {
			return err
		}
		if err := enc.WriteUVarInt(0); err != nil { // ImmOrOwnedObject
			return err
		}
		return writeObjectRef(enc, in.Ref)
	case InputShared:
		if in.InitialSharedVersion == 0 {
			return fmt.Errorf("%w: %s", ErrUnresolvedShared, in.ObjectID)
		}
		if err := enc.WriteUVarInt(1); err != nil {
			return err
		}
		if err := enc.WriteUVarInt(1); err != nil { // SharedObject
			return err
		}
		if err := writeAddress(enc, in.ObjectID); err != nil {
			return err
		}
		if err := enc.WriteUint64(in.InitialSharedVersion, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteBool(in.Mutable)
	}
	return fmt.Errorf("unknown input kind %d", in.Kind)
}

func writeCommand(enc *bin.Encoder, cmd Command) error {
	if err := enc.WriteUVarInt(int(cmd.Kind)); err != nil {
		return err
	}
	switch cmd.Kind {
	case CmdMoveCall:
		mc := cmd.MoveCall
		if err := writeAddress(enc, mc.Package); err != nil {
			return err
		}
		if err := enc.WriteString(mc.Module); err != nil {
			return err
		}
		if err := enc.WriteString(mc.Function); err != nil {
			return err
		}
		if err := enc.WriteUVarInt(len(mc.TypeArgs)); err != nil {
			return err
		}
		for _, ta := range mc.TypeArgs {
			tag, err := ParseTypeTag(ta)
			if err != nil {
				return err
			}
			if err := tag.encode(enc); err != nil {
				return err
			}
		}
		return writeArgs(enc, mc.Args)
	case CmdTransferObjects:
		if err := writeArgs(enc, cmd.Objects); err != nil {
			return err
		}
		return writeArg(enc, cmd.Address)
	case CmdSplitCoins:
		if err := writeArg(enc, cmd.Coin); err != nil {
			return err
		}
		return writeArgs(enc, cmd.Amounts)
	case CmdMergeCoins:
		if err := writeArg(enc, cmd.Coin); err != nil {
			return err
		}
		return writeArgs(enc, cmd.Objects)
	}
	return fmt.Errorf("unknown command kind %d", cmd.Kind)
}

func writeArgs(enc *bin.Encoder, args []Argument) error {
	if err := enc.WriteUVarInt(len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if err := writeArg(enc, a); err != nil {
			return err
		}
	}
	return nil
}

func writeArg(enc *bin.Encoder, a Argument) error {
	if err := enc.WriteUVarInt(int(a.Kind)); err != nil {
		return err
	}
	switch a.Kind {
	case ArgInput, ArgResult:
		return enc.WriteUint16(a.Index, binary.LittleEndian)
	case ArgNestedResult:
		if err := enc.WriteUint16(a.Index, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteUint16(a.Sub, binary.LittleEndian)
	}
	return nil
}

func writeAddress(enc *bin.Encoder, addr string) error {
	raw, err := decodeAddress(addr)
	if err != nil {
		return err
	}
	return enc.WriteBytes(raw, false)
}

func writeObjectRef(enc *bin.Encoder, ref domain.ObjectRef) error {
	if err := writeAddress(enc, ref.ObjectID); err != nil {
		return err
	}
	if err := enc.WriteUint64(ref.Version, binary.LittleEndian); err != nil {
		return err
	}
	digest, err := base58.Decode(ref.Digest)
	if err != nil {
		return fmt.Errorf("invalid digest %q: %w", ref.Digest, err)
	}
	if len(digest) != 32 {
		return fmt.Errorf("invalid digest %q: length %d", ref.Digest, len(digest))
	}
	return enc.WriteBytes(digest, true)
}
