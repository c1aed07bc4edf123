package starknet

import (
	"context"
	"fmt"
	"math/big"
)

// Entry points of the ERC-20 token and the tipping contract.
const (
	EntrypointBalanceOf = "balanceOf"
	EntrypointAllowance = "allowance"
	EntrypointApprove   = "approve"
	EntrypointTip       = "tip"
	EntrypointGetTips   = "get_tips"
)

func (c *Client) callU256(ctx context.Context, call Call) (*big.Int, error) {
	values, err := c.CallContract(ctx, call)
	if err != nil {
		return nil, err
	}
	v, err := DecodeU256(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Entrypoint, err)
	}
	return v, nil
}

// BalanceOf returns owner's raw token balance.
func (c *Client) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	return c.callU256(ctx, Call{
		ContractAddress: token,
		Entrypoint:      EntrypointBalanceOf,
		Calldata:        []string{owner},
	})
}

// Allowance returns how much spender may move from owner's balance.
func (c *Client) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return c.callU256(ctx, Call{
		ContractAddress: token,
		Entrypoint:      EntrypointAllowance,
		Calldata:        []string{owner, spender},
	})
}

// TotalTips returns the cumulative raw amount tipped to creator.
func (c *Client) TotalTips(ctx context.Context, contract, creator string) (*big.Int, error) {
	return c.callU256(ctx, Call{
		ContractAddress: contract,
		Entrypoint:      EntrypointGetTips,
		Calldata:        []string{creator},
	})
}

// ApproveCall builds approve(spender, amount).
func ApproveCall(token, spender string, amount *big.Int) Call {
	return Call{
		ContractAddress: token,
		Entrypoint:      EntrypointApprove,
		Calldata:        append([]string{spender}, U256Calldata(amount)...),
	}
}

// TipCall builds tip(recipient, amount).
func TipCall(contract, recipient string, amount *big.Int) Call {
	return Call{
		ContractAddress: contract,
		Entrypoint:      EntrypointTip,
		Calldata:        append([]string{recipient}, U256Calldata(amount)...),
	}
}
