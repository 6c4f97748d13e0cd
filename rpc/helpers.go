package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"premarket/crypto"
)

func nowUnix() int64 {
	return time.Now().Unix()
}

func parseBech32Address(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseHexID(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid id length %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	value, err := parseNonNegativeBigInt(raw)
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseNonNegativeBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func idString(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func addressString(raw [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, raw[:]).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
