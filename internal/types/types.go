// Package types holds small shared value types used across the portfolio
// tracker: chain identifiers, asset symbols, roles and price sources.
package types

import (
	"fmt"
	"strings"
)

// ChainID identifies an EVM chain by its numeric chain id.
type ChainID uint64

// Well-known chain ids.
const (
	ChainEthereum ChainID = 1
	ChainBSC      ChainID = 56
	ChainPolygon  ChainID = 137
)

// NativeSymbol returns the native asset symbol for a chain.
func (c ChainID) NativeSymbol() string {
	if c == ChainBSC {
		return "BNB"
	}
	return "ETH"
}

func (c ChainID) String() string {
	return fmt.Sprintf("%d", c)
}

// NormalizeSymbol canonicalizes an asset symbol for use as a cache or
// history key. Symbols are compared case-insensitively everywhere.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeAddress lowercases a hex address so lookups are case-insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Role is an on-chain permission level resolved from the role manager
// contract. The zero value means no role has been granted.
type Role uint8

const (
	RoleNone Role = iota
	RoleAdmin
	RoleViewer
)

// RoleFromUint8 maps the contract's numeric role value to a Role.
// Unknown values map to RoleNone.
func RoleFromUint8(value uint8) Role {
	switch value {
	case 1:
		return RoleAdmin
	case 2:
		return RoleViewer
	default:
		return RoleNone
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleViewer:
		return "viewer"
	default:
		return "none"
	}
}

// PriceSource tags where a quote came from so consumers can detect
// degraded pricing.
type PriceSource string

const (
	// SourceCache means the quote was served from the live cache tier.
	SourceCache PriceSource = "cache"
	// SourceHistory means the quote came from a recorded history point.
	SourceHistory PriceSource = "history"
	// SourceProvider means the quote came from the external market provider.
	SourceProvider PriceSource = "coingecko"
	// SourceStatic means the quote came from the configured static table.
	SourceStatic PriceSource = "static"
)

// Degraded reports whether a quote source is a fallback tier rather than a
// fresh or recently cached provider price.
func (s PriceSource) Degraded() bool {
	return s == SourceHistory || s == SourceStatic
}
