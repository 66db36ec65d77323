package builder

import (
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
)

// Move TypeTag variant indices.
const (
	tagBool uint8 = iota
	tagU8
	tagU64
	tagU128
	tagAddress
	tagSigner
	tagVector
	tagStruct
	tagU16
	tagU32
	tagU256
)

var primitiveTags = map[string]uint8{
	"bool":    tagBool,
	"u8":      tagU8,
	"u16":     tagU16,
	"u32":     tagU32,
	"u64":     tagU64,
	"u128":    tagU128,
	"u256":    tagU256,
	"address": tagAddress,
	"signer":  tagSigner,
}

// TypeTag is a parsed Move type.
type TypeTag struct {
	Primitive string
	Vector    *TypeTag

	Address string
	Module  string
	Name    string
	Params  []TypeTag
}

// ParseTypeTag parses "0x2::coin::Coin<0x2::sui::SUI>", "vector<u8>", "u64".
func ParseTypeTag(s string) (TypeTag, error) {
	p := &typeParser{src: strings.ReplaceAll(s, " ", "")}
	tag, err := p.parse()
	if err != nil {
		return TypeTag{}, err
	}
	if p.pos != len(p.src) {
		return TypeTag{}, fmt.Errorf("invalid type tag %q: trailing input at %d", s, p.pos)
	}
	return tag, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) parse() (TypeTag, error) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>,", rune(p.src[p.pos])) {
		p.pos++
	}
	head := p.src[start:p.pos]
	if head == "" {
		return TypeTag{}, fmt.Errorf("invalid type tag %q: empty name at %d", p.src, start)
	}

	if _, ok := primitiveTags[head]; ok {
		return TypeTag{Primitive: head}, nil
	}

	var params []TypeTag
	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		p.pos++
		for {
			param, err := p.parse()
			if err != nil {
				return TypeTag{}, err
			}
			params = append(params, param)
			if p.pos >= len(p.src) {
				return TypeTag{}, fmt.Errorf("invalid type tag %q: unclosed '<'", p.src)
			}
			c := p.src[p.pos]
			p.pos++
			if c == '>' {
				break
			}
			if c != ',' {
				return TypeTag{}, fmt.Errorf("invalid type tag %q: unexpected %q", p.src, c)
			}
		}
	}

	if head == "vector" {
		if len(params) != 1 {
			return TypeTag{}, fmt.Errorf("invalid type tag %q: vector takes one parameter", p.src)
		}
		return TypeTag{Vector: &params[0]}, nil
	}

	parts := strings.Split(head, "::")
	if len(parts) != 3 {
		return TypeTag{}, fmt.Errorf("invalid type tag %q: expected address::module::name", p.src)
	}
	return TypeTag{Address: parts[0], Module: parts[1], Name: parts[2], Params: params}, nil
}

func (t TypeTag) encode(enc *bin.Encoder) error {
	switch {
	case t.Primitive != "":
		return enc.WriteUVarInt(int(primitiveTags[t.Primitive]))
	case t.Vector != nil:
		if err := enc.WriteUVarInt(int(tagVector)); err != nil {
			return err
		}
		return t.Vector.encode(enc)
	}

	if err := enc.WriteUVarInt(int(tagStruct)); err != nil {
		return err
	}
	addr, err := decodeAddress(t.Address)
	if err != nil {
		return err
	}
	if err := enc.WriteBytes(addr, false); err != nil {
		return err
	}
	if err := enc.WriteString(t.Module); err != nil {
		return err
	}
	if err := enc.WriteString(t.Name); err != nil {
		return err
	}
	if err := enc.WriteUVarInt(len(t.Params)); err != nil {
		return err
	}
	for _, param := range t.Params {
		if err := param.encode(enc); err != nil {
			return err
		}
	}
	return nil
}
