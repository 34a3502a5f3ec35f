package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestZapRecordRoundTrip(t *testing.T) {
	record := ZapRecord{
		ChainID:         56,
		Kind:            ZapKindIn,
		Caller:          "0x0000000000000000000000000000000000000a11",
		Pair:            "0x00000000000000000000000000000000000000ab",
		Token0:          "0x000000000000000000000000000000000000000a",
		Token1:          "0x000000000000000000000000000000000000000b",
		Amount0In:       "1000000000000000000",
		SwapTokenIn:     "0x000000000000000000000000000000000000000a",
		SwapAmountIn:    "500500125375391111",
		SwapAmountOut:   "499498875625388953",
		LiquidityMinted: "499499125124640328",
		CreatedAt:       "2024-01-01T00:00:00Z",
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"swap_amount_in":"500500125375391111"`) {
		t.Fatalf("unexpected encoding: %s", data)
	}
	// Zero-value zap-out fields stay out of zap-in records.
	if strings.Contains(string(data), "liquidity_burned") {
		t.Fatalf("empty field encoded: %s", data)
	}

	var decoded ZapRecord
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != record {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, record)
	}
}
