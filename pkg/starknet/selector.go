package starknet

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// SelectorFromName returns the entry point selector for a function name:
// keccak256(name) truncated to 250 bits.
func SelectorFromName(name string) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(big.Int).SetBytes(h.Sum(nil))
	return v.And(v, mask250)
}
