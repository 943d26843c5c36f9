package token

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated transfer
	// exceeds the spender's approved allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token: amount must be non-negative")
)

// Token is the fungible token interface the staking components consume. Any
// failure must be treated as fatal to the enclosing operation.
type Token interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is a state-backed fungible token with ERC20-style allowances.
type Ledger struct {
	state  ledgerState
	symbol string
}

// NewLedger constructs a token ledger for the given symbol backed by the
// provided state accessor.
func NewLedger(state ledgerState, symbol string) *Ledger {
	return &Ledger{state: state, symbol: symbol}
}

// Symbol returns the token symbol the ledger was constructed with.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) balanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%x", l.symbol, addr))
}

func (l *Ledger) allowanceKey(owner, spender [20]byte) []byte {
	return []byte(fmt.Sprintf("token/%s/allowance/%x/%x", l.symbol, owner, spender))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(fmt.Sprintf("token/%s/supply", l.symbol))
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) readBig(key []byte) (*big.Int, error) {
	var stored big.Int
	ok, err := l.state.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// BalanceOf returns the current balance for the address.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	return l.readBig(l.balanceKey(addr))
}

// TotalSupply returns the total minted supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.readBig(l.supplyKey())
}

// Allowance returns the amount the spender may move from the owner's balance.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return l.readBig(l.allowanceKey(owner, spender))
}

// Mint credits freshly created units to the address. Supply bootstrap only;
// the staking flow never mints.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(l.balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	return l.state.KVPut(l.supplyKey(), new(big.Int).Add(supply, amount))
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.state.KVPut(l.allowanceKey(owner, spender), amount)
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.KVPut(l.balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.KVPut(l.balanceKey(to), new(big.Int).Add(toBalance, amount))
}

// Transfer moves amount from one balance to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	return l.move(from, to, amount)
}

// TransferFrom moves amount out of the owner's balance on behalf of the
// spender, consuming allowance.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	return l.state.KVPut(l.allowanceKey(from, spender), new(big.Int).Sub(allowance, amount))
}
