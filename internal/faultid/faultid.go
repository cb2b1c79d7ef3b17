// Package faultid canonicalizes the fault identifiers found in device logs.
//
// The log producer spells the same fault as "165", "0x165" or "0x0165"
// depending on the emitting module. Every spelling normalizes to one
// canonical form, "0x" followed by exactly four upper-case hex digits, so
// identifiers above 0xFFFF are rejected.
package faultid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned when a fault identifier cannot be parsed.
var ErrInvalidFormat = errors.New("invalid fault id format")

// MaxValue is the largest identifier that fits the four-digit canonical form.
const MaxValue = 0xFFFF

// FormatError describes an identifier that failed to normalize.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid fault id format %q: %s", e.Raw, e.Reason)
}

// Is reports whether target is ErrInvalidFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// ID is a normalized fault identifier.
type ID struct {
	// Raw is the value as supplied by the caller or found in a log line.
	Raw string `json:"raw"`
	// Canonical is the zero-padded form, e.g. 0x0165.
	Canonical string `json:"canonical"`
	// NoZero is Canonical with leading zeros of the payload removed, e.g. 0x165.
	NoZero string `json:"no_zero_variant"`
	// Value is the numeric value of the identifier.
	Value uint64 `json:"value"`
}

// Normalize parses raw and returns its canonical form.
//
// Accepted inputs are hex with a 0x prefix ("0x165", "0X0165") and bare
// digit strings ("165"). Log producers drop the prefix but keep the hex
// payload, so a bare digit string is read as that payload and "165"
// normalizes to 0x0165. Anything else is rejected with ErrInvalidFormat.
func Normalize(raw string) (ID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ID{}, &FormatError{Raw: raw, Reason: "empty"}
	}

	var (
		value uint64
		err   error
	)
	switch {
	case strings.HasPrefix(s, "0X"):
		payload := s[2:]
		if payload == "" {
			return ID{}, &FormatError{Raw: raw, Reason: "missing hex digits after 0x"}
		}
		if !isHex(payload) {
			return ID{}, &FormatError{Raw: raw, Reason: "non-hex digits after 0x"}
		}
		value, err = strconv.ParseUint(payload, 16, 64)
	case isDigits(s):
		value, err = strconv.ParseUint(s, 16, 64)
	default:
		return ID{}, &FormatError{Raw: raw, Reason: "expected digits or a 0x-prefixed hex value"}
	}
	if err != nil || value > MaxValue {
		return ID{}, &FormatError{Raw: raw, Reason: "value exceeds 0xFFFF"}
	}

	return fromValue(raw, value), nil
}

// fromValue builds an ID from a parsed value no larger than MaxValue.
func fromValue(raw string, value uint64) ID {
	payload := fmt.Sprintf("%04X", value)
	noZero := strings.TrimLeft(payload, "0")
	if noZero == "" {
		noZero = "0"
	}
	return ID{
		Raw:       raw,
		Canonical: "0x" + payload,
		NoZero:    "0x" + noZero,
		Value:     value,
	}
}

// MustNormalize is like Normalize but panics on error.
// It is intended for identifiers known at compile time.
func MustNormalize(raw string) ID {
	id, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical form.
func (id ID) String() string {
	return id.Canonical
}

// Variants returns the spellings searched for in log text: the canonical
// form first, then the no-zero form when it differs.
func (id ID) Variants() []string {
	if id.NoZero == id.Canonical {
		return []string{id.Canonical}
	}
	return []string{id.Canonical, id.NoZero}
}

// Matches reports whether token is one of the searched spellings of id.
// The comparison ignores case.
func (id ID) Matches(token string) bool {
	for _, v := range id.Variants() {
		if strings.EqualFold(token, v) {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
