package core

import (
	"encoding/hex"
	"fmt"
)

// NodeName is the 256-bit identifier a node derives from its signing key.
// Nodes whose names share an address prefix belong to the same section.
type NodeName [32]byte

// Hex returns the full hexadecimal representation of the name.
func (n NodeName) Hex() string { return hex.EncodeToString(n[:]) }

// Short returns a shortened hex form (first 4 + last 4 hex chars), handy for
// log lines.
func (n NodeName) Short() string {
	full := n.Hex()
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

// Age is a node's tenure counter. It only ever increases and doubles the
// node's reward weight per step (§4.3.2).
type Age uint8

// MinRewardAge excludes freshly joined nodes from age-weighted distribution.
const MinRewardAge Age = 6

// AccountID identifies a RewardAccount once it has been bound to a node.
// It has no structure beyond uniqueness within a section.
type AccountID string

// Token is a nonnegative amount of nanos, the network's smallest unit of
// internal currency. All arithmetic on Token values must saturate or fail
// explicitly; it must never wrap (spec §3, §9 "Integer-safe economics").
type Token uint64

// MaxTokenSupply is the global cap, in nanos, on rewards a section may ever
// hold as "managed" supply (spec §6).
const MaxTokenSupply uint64 = 1 << 32

// Add returns a+b, or an error if the sum would overflow uint64.
func (t Token) Add(o Token) (Token, error) {
	sum := t + o
	if sum < t {
		return 0, fmt.Errorf("token: add overflow (%d + %d)", t, o)
	}
	return sum, nil
}

// Sub returns t-o, or an error if o > t (checked subtraction, never wraps).
func (t Token) Sub(o Token) (Token, error) {
	if o > t {
		return 0, fmt.Errorf("token: subtract underflow (%d - %d)", t, o)
	}
	return t - o, nil
}
