package starknet

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Call is a single contract invocation: a view call or one element of a
// multicall executed by an account.
type Call struct {
	ContractAddress string   `json:"contract_address"`
	Entrypoint      string   `json:"entrypoint"`
	Calldata        []string `json:"calldata"`
}

// ReceiptStatus is the normalized outcome of a transaction receipt.
type ReceiptStatus string

const (
	StatusAcceptedOnL1 ReceiptStatus = "ACCEPTED_ON_L1"
	StatusAcceptedOnL2 ReceiptStatus = "ACCEPTED_ON_L2"
	StatusRejected     ReceiptStatus = "REJECTED"
	StatusOther        ReceiptStatus = "OTHER"
)

// Accepted reports final acceptance on either layer.
func (s ReceiptStatus) Accepted() bool {
	return s == StatusAcceptedOnL1 || s == StatusAcceptedOnL2
}

type Receipt struct {
	TransactionHash string
	Status          ReceiptStatus
	// Raw status fields as returned by the node.
	FinalityStatus  string
	ExecutionStatus string
	RevertReason    string
}

var (
	ErrMalformedResponse   = errors.New("malformed contract response")
	ErrTransactionRejected = errors.New("transaction rejected")
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Starknet JSON-RPC error codes used by the client.
const (
	codeContractNotFound = 20
	codeTxHashNotFound   = 29
)

// IsContractNotFound reports whether err is the node's "contract not found" error.
func IsContractNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == codeContractNotFound
}

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// JoinU256 reconstructs value = high*2^128 + low.
func JoinU256(low, high *big.Int) *big.Int {
	v := new(big.Int).Mul(high, two128)
	return v.Add(v, low)
}

// SplitU256 splits v into its low and high 128-bit halves.
func SplitU256(v *big.Int) (low, high *big.Int) {
	high, low = new(big.Int).QuoRem(v, two128, new(big.Int))
	return low, high
}

// DecodeU256 decodes a (low, high) pair returned by a view call.
func DecodeU256(values []*big.Int) (*big.Int, error) {
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: expected 2 felts for u256, got %d", ErrMalformedResponse, len(values))
	}
	return JoinU256(values[0], values[1]), nil
}

// Felt formats v as a 0x-prefixed hex felt.
func Felt(v *big.Int) string {
	return "0x" + v.Text(16)
}

// ParseFelt parses a 0x-prefixed hex (or decimal) felt.
func ParseFelt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid felt %q", ErrMalformedResponse, s)
	}
	return v, nil
}

// U256Calldata encodes v as the two calldata felts (low, high).
func U256Calldata(v *big.Int) []string {
	low, high := SplitU256(v)
	return []string{Felt(low), Felt(high)}
}
