// Package token models the external asset-transfer interface the
// custody programs depend on. Transfers report failure through a
// boolean return; callers convert false into their own fault.
package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Transferor is the asset-transfer capability for one asset. All
// failures are reported via the boolean return, never assumed away.
type Transferor interface {
	// Transfer moves amount out of from's own balance.
	Transfer(from, to common.Address, amount decimal.Decimal) bool
	// TransferFrom moves amount from an owner using spender's allowance.
	TransferFrom(spender, from, to common.Address, amount decimal.Decimal) bool
	// Approve grants spender an allowance over owner's balance.
	Approve(owner, spender common.Address, amount decimal.Decimal) bool
	// BalanceOf returns the current balance of owner.
	BalanceOf(owner common.Address) decimal.Decimal
}

// Directory resolves asset identifiers to their transfer capabilities
type Directory struct {
	mu     sync.RWMutex
	assets map[common.Address]Transferor
}

// NewDirectory creates an empty asset directory
func NewDirectory() *Directory {
	return &Directory{assets: make(map[common.Address]Transferor)}
}

// Register binds an asset identifier to its transfer capability
func (d *Directory) Register(asset common.Address, t Transferor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assets[asset] = t
}

// Lookup returns the capability for an asset, if registered
func (d *Directory) Lookup(asset common.Address) (Transferor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.assets[asset]
	return t, ok
}

// BootstrapDirectory registers a fresh in-memory token for each
// configured asset and mints custody an execution inventory in each.
// Local deployments only; chain-backed assets register their own
// Transferor instead.
func BootstrapDirectory(assets []common.Address, custody common.Address, inventory decimal.Decimal) *Directory {
	d := NewDirectory()
	for _, asset := range assets {
		tok := NewToken()
		tok.Mint(custody, inventory)
		d.Register(asset, tok)
	}
	return d
}

// Token is an in-memory transferor used for local deployments and tests
type Token struct {
	mu         sync.Mutex
	balances   map[common.Address]decimal.Decimal
	allowances map[common.Address]map[common.Address]decimal.Decimal
}

var _ Transferor = (*Token)(nil)

// NewToken creates a token with no balances
func NewToken() *Token {
	return &Token{
		balances:   make(map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

// Mint credits freshly created units to an owner
func (t *Token) Mint(owner common.Address, amount decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = t.balance(owner).Add(amount)
}

func (t *Token) balance(owner common.Address) decimal.Decimal {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return decimal.Zero
}

// Transfer implements Transferor
func (t *Token) Transfer(from, to common.Address, amount decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount.IsNegative() || t.balance(from).LessThan(amount) {
		return false
	}
	t.balances[from] = t.balance(from).Sub(amount)
	t.balances[to] = t.balance(to).Add(amount)
	return true
}

// TransferFrom implements Transferor
func (t *Token) TransferFrom(spender, from, to common.Address, amount decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount.IsNegative() || t.balance(from).LessThan(amount) {
		return false
	}
	allowed := t.allowance(from, spender)
	if allowed.LessThan(amount) {
		return false
	}
	if _, ok := t.allowances[from]; !ok {
		t.allowances[from] = make(map[common.Address]decimal.Decimal)
	}
	t.allowances[from][spender] = allowed.Sub(amount)
	t.balances[from] = t.balance(from).Sub(amount)
	t.balances[to] = t.balance(to).Add(amount)
	return true
}

func (t *Token) allowance(owner, spender common.Address) decimal.Decimal {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return decimal.Zero
}

// Approve implements Transferor
func (t *Token) Approve(owner, spender common.Address, amount decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount.IsNegative() {
		return false
	}
	if _, ok := t.allowances[owner]; !ok {
		t.allowances[owner] = make(map[common.Address]decimal.Decimal)
	}
	t.allowances[owner][spender] = amount
	return true
}

// BalanceOf implements Transferor
func (t *Token) BalanceOf(owner common.Address) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance(owner)
}
