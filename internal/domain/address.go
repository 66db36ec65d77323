package domain

import (
	"strings"
)

const addressHexLen = 64

// NormalizeAddress lowercases an object id or package address and pads it to
// the full 32-byte hex form with a 0x prefix.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	a = strings.TrimPrefix(a, "0x")
	if len(a) < addressHexLen {
		a = strings.Repeat("0", addressHexLen-len(a)) + a
	}
	return "0x" + a
}

// NormalizeType rewrites every address inside a Move type tag to its long
// form, so "0x2::sui::SUI" and "0000..0002::sui::SUI" compare equal.
func NormalizeType(typeTag string) string {
	var (
		out strings.Builder
		tok strings.Builder
	)
	flush := func() {
		if tok.Len() == 0 {
			return
		}
		t := tok.String()
		if i := strings.Index(t, "::"); i > 0 {
			t = NormalizeAddress(t[:i]) + t[i:]
		}
		out.WriteString(t)
		tok.Reset()
	}
	for _, r := range strings.TrimSpace(typeTag) {
		switch r {
		case '<', '>', ',':
			flush()
			out.WriteRune(r)
		case ' ':
			flush()
		default:
			tok.WriteRune(r)
		}
	}
	flush()
	return out.String()
}

// StructBase strips generic parameters from a struct tag.
func StructBase(typeTag string) string {
	if i := strings.IndexByte(typeTag, '<'); i >= 0 {
		return typeTag[:i]
	}
	return typeTag
}

// ShortType returns "module::Name" of a struct tag, for logs.
func ShortType(typeTag string) string {
	parts := strings.Split(StructBase(typeTag), "::")
	if len(parts) < 3 {
		return typeTag
	}
	return parts[len(parts)-2] + "::" + parts[len(parts)-1]
}
