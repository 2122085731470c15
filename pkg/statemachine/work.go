// Copyright 2025 Certen Protocol

package statemachine

import "math/big"

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	maxUint64  = new(big.Int).SetUint64(^uint64(0))
)

// work interprets h as a 256-bit big-endian integer H and returns the
// deterministic leading-zero-based work estimate: u64::MAX if H == 0,
// otherwise floor((2^256 - 1) / (H + 1)) truncated to u64::MAX. Every
// replica must compute the identical value for the identical hash.
func work(h [32]byte) uint64 {
	H := new(big.Int).SetBytes(h[:])
	if H.Sign() == 0 {
		return ^uint64(0)
	}

	denom := new(big.Int).Add(H, big.NewInt(1))
	w := new(big.Int).Div(maxUint256, denom)
	if w.Cmp(maxUint64) > 0 {
		return ^uint64(0)
	}
	return w.Uint64()
}
