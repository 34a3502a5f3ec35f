package model

import (
	"encoding/json"
)

// Zap record kinds.
const (
	ZapKindIn            = "zap_in"
	ZapKindInRebalancing = "zap_in_rebalancing"
	ZapKindOut           = "zap_out"
)

// ZapRecord is the normalized representation of an executed zap for storage.
// Amounts are decimal strings in base units.
type ZapRecord struct {
	ChainID         uint64 `json:"chain_id"`
	Kind            string `json:"kind"`
	Caller          string `json:"caller"`
	Pair            string `json:"pair"`
	Token0          string `json:"token0"`
	Token1          string `json:"token1"`
	Amount0In       string `json:"amount0_in,omitempty"`
	Amount1In       string `json:"amount1_in,omitempty"`
	SwapTokenIn     string `json:"swap_token_in,omitempty"`
	SwapAmountIn    string `json:"swap_amount_in"`
	SwapAmountOut   string `json:"swap_amount_out"`
	LiquidityMinted string `json:"liquidity_minted,omitempty"`
	LiquidityBurned string `json:"liquidity_burned,omitempty"`
	TokenOut        string `json:"token_out,omitempty"`
	AmountOut       string `json:"amount_out,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// MarshalJSON ensures ZapRecord is encoded with stable field names.
func (zr ZapRecord) MarshalJSON() ([]byte, error) {
	type Alias ZapRecord
	return json.Marshal(Alias(zr))
}

// UnmarshalJSON decodes a ZapRecord from JSON.
func (zr *ZapRecord) UnmarshalJSON(data []byte) error {
	type Alias ZapRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*zr = ZapRecord(a)
	return nil
}
