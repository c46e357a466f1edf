// Package item defines the identifier of one unit of capture work.
package item

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// MaxHexDigits is the widest hex string an ID can be parsed from.
const MaxHexDigits = 32

// ErrInvalidID is returned when a string cannot be parsed into an ID.
var ErrInvalidID = errors.New("invalid item id")

// ID is an unsigned 128-bit card identifier. The zero value is ID 0.
type ID struct {
	Hi uint64
	Lo uint64
}

// FromUint64 builds an ID from a 64-bit value.
func FromUint64(v uint64) ID {
	return ID{Lo: v}
}

// ParseHex parses up to 32 hex digits (no prefix, no sign).
func ParseHex(s string) (ID, error) {
	if s == "" || len(s) > MaxHexDigits {
		return ID{}, fmt.Errorf("%w: hex %q must have 1-%d digits", ErrInvalidID, s, MaxHexDigits)
	}
	var hiPart, loPart string
	if len(s) > 16 {
		hiPart, loPart = s[:len(s)-16], s[len(s)-16:]
	} else {
		loPart = s
	}
	var id ID
	if hiPart != "" {
		hi, err := strconv.ParseUint(hiPart, 16, 64)
		if err != nil {
			return ID{}, fmt.Errorf("%w: hex %q", ErrInvalidID, s)
		}
		id.Hi = hi
	}
	lo, err := strconv.ParseUint(loPart, 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: hex %q", ErrInvalidID, s)
	}
	id.Lo = lo
	return id, nil
}

// ParseDecimal parses the canonical base-10 form produced by String.
// Signs and leading zeros are rejected so that every ID has exactly one
// spelling on disk.
func ParseDecimal(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty decimal", ErrInvalidID)
	}
	if len(s) > 1 && s[0] == '0' {
		return ID{}, fmt.Errorf("%w: decimal %q has leading zeros", ErrInvalidID, s)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return ID{}, fmt.Errorf("%w: decimal %q", ErrInvalidID, s)
	}
	if len(s) <= 19 {
		v, err := strconv.ParseUint(s, 10, 64)
		if err == nil {
			return FromUint64(v), nil
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.BitLen() > 128 {
		return ID{}, fmt.Errorf("%w: decimal %q out of range", ErrInvalidID, s)
	}
	return fromBig(n), nil
}

// String renders the ID in base 10.
func (id ID) String() string {
	if id.Hi == 0 {
		return strconv.FormatUint(id.Lo, 10)
	}
	return id.Big().String()
}

// Hex renders the ID as lower-case hex without padding.
func (id ID) Hex() string {
	if id.Hi == 0 {
		return strconv.FormatUint(id.Lo, 16)
	}
	return fmt.Sprintf("%x%016x", id.Hi, id.Lo)
}

// Big returns the ID as a big.Int.
func (id ID) Big() *big.Int {
	n := new(big.Int).SetUint64(id.Hi)
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(id.Lo))
}

// Compare returns -1, 0 or +1.
func (id ID) Compare(other ID) int {
	switch {
	case id.Hi < other.Hi:
		return -1
	case id.Hi > other.Hi:
		return 1
	case id.Lo < other.Lo:
		return -1
	case id.Lo > other.Lo:
		return 1
	default:
		return 0
	}
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

func fromBig(n *big.Int) ID {
	lo := new(big.Int).And(n, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(n, 64)
	return ID{Hi: hi.Uint64(), Lo: lo.Uint64()}
}
