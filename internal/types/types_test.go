package types

import "testing"

func TestNativeSymbol(t *testing.T) {
	tests := []struct {
		chain ChainID
		want  string
	}{
		{ChainEthereum, "ETH"},
		{ChainBSC, "BNB"},
		{ChainPolygon, "ETH"},
		{ChainID(42161), "ETH"},
	}

	for _, tt := range tests {
		if got := tt.chain.NativeSymbol(); got != tt.want {
			t.Errorf("NativeSymbol(%d) = %v, want %v", tt.chain, got, tt.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"eth", "ETH"},
		{" Usdc ", "USDC"},
		{"WBTC", "WBTC"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoleFromUint8(t *testing.T) {
	tests := []struct {
		value uint8
		want  Role
	}{
		{0, RoleNone},
		{1, RoleAdmin},
		{2, RoleViewer},
		{3, RoleNone},
		{255, RoleNone},
	}

	for _, tt := range tests {
		if got := RoleFromUint8(tt.value); got != tt.want {
			t.Errorf("RoleFromUint8(%d) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestPriceSourceDegraded(t *testing.T) {
	if SourceCache.Degraded() || SourceProvider.Degraded() {
		t.Error("cache and provider sources must not be marked degraded")
	}
	if !SourceHistory.Degraded() || !SourceStatic.Degraded() {
		t.Error("history and static sources must be marked degraded")
	}
}
