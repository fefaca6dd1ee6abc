package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CallbackToken wraps a Transferor and invokes hooks around transfer
// calls. It stands in for an adversarial asset whose transfer path
// calls back into the protocol mid-operation; the reentrancy tests
// use it to prove nested entry is rejected.
type CallbackToken struct {
	Inner Transferor

	// OnTransfer runs before the wrapped Transfer; its return value
	// is ignored so the hook can attempt (and fail) a reentrant call
	// without masking the underlying transfer result.
	OnTransfer func(from, to common.Address, amount decimal.Decimal)
	// OnTransferFrom runs before the wrapped TransferFrom.
	OnTransferFrom func(spender, from, to common.Address, amount decimal.Decimal)
	// FailTransfers forces every Transfer to report failure.
	FailTransfers bool
	// FailPulls forces every TransferFrom to report failure.
	FailPulls bool
}

var _ Transferor = (*CallbackToken)(nil)

func (c *CallbackToken) Transfer(from, to common.Address, amount decimal.Decimal) bool {
	if c.OnTransfer != nil {
		c.OnTransfer(from, to, amount)
	}
	if c.FailTransfers {
		return false
	}
	return c.Inner.Transfer(from, to, amount)
}

func (c *CallbackToken) TransferFrom(spender, from, to common.Address, amount decimal.Decimal) bool {
	if c.OnTransferFrom != nil {
		c.OnTransferFrom(spender, from, to, amount)
	}
	if c.FailPulls {
		return false
	}
	return c.Inner.TransferFrom(spender, from, to, amount)
}

func (c *CallbackToken) Approve(owner, spender common.Address, amount decimal.Decimal) bool {
	return c.Inner.Approve(owner, spender, amount)
}

func (c *CallbackToken) BalanceOf(owner common.Address) decimal.Decimal {
	return c.Inner.BalanceOf(owner)
}
